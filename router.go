package walletcore

import (
	"context"
	"log/slog"

	"github.com/offerhaven/walletcore/relay"
)

// Router dispatches wallet requests to whichever backend currently holds a
// connection. The remote relay session always wins when both backends report
// connected; the injected provider is only eligible on desktop platforms.
type Router struct {
	remote   RemoteBackend
	injected InjectedBackend
	mobile   bool
	logger   *slog.Logger
}

type RouterOption func(*Router)

// WithMobile marks the runtime as a mobile platform. Injected providers are
// never routed to on mobile; the extension surface does not exist there.
func WithMobile(mobile bool) RouterOption {
	return func(r *Router) { r.mobile = mobile }
}

func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

func NewRouter(remote RemoteBackend, injected InjectedBackend, opts ...RouterOption) *Router {
	r := &Router{
		remote:   remote,
		injected: injected,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Active reports which backend a request would be routed to right now.
func (r *Router) Active() Backend {
	if r.remote != nil && r.remote.Connected() {
		return BackendRemote
	}
	if r.injectedUsable() {
		return BackendInjected
	}
	return BackendNone
}

// Address returns the wallet address of the active backend, or "" when no
// backend is connected.
func (r *Router) Address() string {
	switch r.Active() {
	case BackendRemote:
		return r.remote.Address()
	case BackendInjected:
		return r.injected.Address()
	default:
		return ""
	}
}

// Request routes a wallet request to the active backend. A stale-session
// failure on the remote backend clears the local session before the error is
// returned, so the next call sees a disconnected remote instead of retrying
// against a dead topic.
func (r *Router) Request(ctx context.Context, method string, params any) (any, error) {
	if r.remote != nil && r.remote.Connected() {
		result, err := r.remote.Request(ctx, method, params)
		if err != nil && Classify(err) == CategoryStaleSession {
			r.logger.Warn("remote session stale, clearing local state", "method", method)
			r.remote.Reset()
		}
		return result, err
	}
	if r.injectedUsable() {
		return r.injected.Request(ctx, method, params)
	}
	return nil, NewWalletError(ErrCodeNoWalletConnected, "no wallet connected", nil)
}

// ConnectRemote starts a remote pairing, tearing down any injected connection
// first so the two backends never hold live sessions at once.
func (r *Router) ConnectRemote(ctx context.Context) (relay.ConnectResult, error) {
	if r.remote == nil {
		return relay.ConnectResult{}, NewWalletError(ErrCodeConnectionFailed, "remote backend not configured", nil)
	}
	if r.injected != nil && r.injected.Connected() {
		r.logger.Info("disconnecting injected wallet before remote pairing")
		r.injected.Disconnect(ctx)
	}
	return r.remote.Connect(ctx)
}

// ConnectInjected connects the injected provider, tearing down any remote
// session first. Not permitted on mobile platforms.
func (r *Router) ConnectInjected(ctx context.Context) ([]string, error) {
	if r.mobile {
		return nil, NewWalletError(ErrCodeNoWalletConnected, "injected wallets are not available on mobile", nil)
	}
	if r.injected == nil || !r.injected.Available() {
		return nil, NewWalletError(ErrCodeNoWalletConnected, "no injected wallet detected", nil)
	}
	if r.remote != nil && r.remote.Connected() {
		r.logger.Info("disconnecting remote session before injected connect")
		r.remote.Disconnect(ctx)
	}
	return r.injected.Connect(ctx)
}

// Disconnect tears down whichever backend the target names. BackendNone
// disconnects both.
func (r *Router) Disconnect(ctx context.Context, target Backend) {
	if (target == BackendRemote || target == BackendNone) && r.remote != nil {
		r.remote.Disconnect(ctx)
	}
	if (target == BackendInjected || target == BackendNone) && r.injected != nil {
		r.injected.Disconnect(ctx)
	}
}

func (r *Router) injectedUsable() bool {
	return !r.mobile && r.injected != nil && r.injected.Available() && r.injected.Connected()
}
