package injected

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultDetectInterval is how often the adapter re-probes for a provider.
// Injection is not guaranteed to have happened by the time the adapter is
// constructed.
const DefaultDetectInterval = 2 * time.Second

// takeOfferAliases are the method names recognized, case-insensitively, as
// an offer submission.
var takeOfferAliases = []string{"chia_takeOffer", "takeOffer", "take_offer"}

// connectStrategy is one handshake shape tried against a provider. Failures
// are swallowed; the first strategy yielding a non-empty address list wins.
type connectStrategy struct {
	name string
	run  func(ctx context.Context, p Provider) (any, error)
}

var connectStrategies = []connectStrategy{
	{
		name: "direct connect",
		run: func(ctx context.Context, p Provider) (any, error) {
			c, ok := p.(Connector)
			if !ok {
				return nil, ErrMethodNotFound
			}
			return c.Connect(ctx)
		},
	},
	{
		name: "request accounts",
		run: func(ctx context.Context, p Provider) (any, error) {
			return p.Request(ctx, "requestAccounts", nil)
		},
	},
	{
		name: "login",
		run: func(ctx context.Context, p Provider) (any, error) {
			return p.Request(ctx, "chia_logIn", nil)
		},
	},
	{
		// Last resort: read whatever is already authorized, no prompt.
		name: "current accounts",
		run: func(ctx context.Context, p Provider) (any, error) {
			return p.Request(ctx, "chia_accounts", nil)
		},
	},
}

// Adapter wraps a locally injected wallet provider behind a stable
// connect/disconnect/request surface.
type Adapter struct {
	mu        sync.RWMutex
	provider  Provider
	connected bool
	addresses []string

	locate   func() Provider
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithDetectInterval overrides the provider re-detection interval.
func WithDetectInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithAdapterLogger sets the adapter's logger.
func WithAdapterLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter creates an adapter that discovers its provider through locate.
// locate returns nil while no wallet is injected; it is re-polled on a fixed
// interval once StartDetection runs.
func NewAdapter(locate func() Provider, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		locate:   locate,
		interval: DefaultDetectInterval,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.detect()
	return a
}

// StartDetection begins the background re-detection loop. It returns
// immediately; the loop ends when ctx is done or Close is called.
func (a *Adapter) StartDetection(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.detect()
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			}
		}
	}()
}

// Close stops the detection loop.
func (a *Adapter) Close() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func (a *Adapter) detect() {
	p := a.locate()

	a.mu.Lock()
	defer a.mu.Unlock()
	if p == nil && a.provider != nil {
		// Provider withdrawn out from under us; connection state with it.
		a.connected = false
		a.addresses = nil
	}
	a.provider = p
}

// Available reports whether a provider is currently injected.
func (a *Adapter) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.provider != nil
}

// Connected reports whether a connect handshake has succeeded and not been
// torn down.
func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// Addresses returns the normalized address list from the last successful
// connect.
func (a *Adapter) Addresses() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.addresses...)
}

// Address returns the primary (first) connected address, or "".
func (a *Adapter) Address() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.addresses) == 0 {
		return ""
	}
	return a.addresses[0]
}

// Connect attempts each handshake strategy in order and adopts the first
// non-empty normalized address list. Individual strategy failures are
// swallowed; only exhausting every strategy is an error.
func (a *Adapter) Connect(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	p := a.provider
	a.mu.RUnlock()
	if p == nil {
		return nil, errors.New("injected: no wallet provider detected")
	}

	for _, strategy := range connectStrategies {
		result, err := strategy.run(ctx, p)
		if err != nil {
			a.logger.Debug("injected: connect strategy failed",
				"strategy", strategy.name, "err", err)
			continue
		}
		if addrs := NormalizeAddresses(result); len(addrs) > 0 {
			a.mu.Lock()
			a.connected = true
			a.addresses = addrs
			a.mu.Unlock()
			return addrs, nil
		}
	}
	return nil, errors.New("injected: unable to connect wallet")
}

// Disconnect best-effort invokes the provider's disconnect and always clears
// local connection state.
func (a *Adapter) Disconnect(ctx context.Context) {
	a.mu.RLock()
	p := a.provider
	a.mu.RUnlock()

	if d, ok := p.(Disconnector); ok {
		if err := d.Disconnect(ctx); err != nil {
			a.logger.Debug("injected: provider disconnect failed", "err", err)
		}
	}

	a.mu.Lock()
	a.connected = false
	a.addresses = nil
	a.mu.Unlock()
}

// Request forwards a wallet RPC to the provider. Take-offer variants are
// recognized by alias, their offer parameter validated up front, and their
// result normalized to a transaction identifier string.
func (a *Adapter) Request(ctx context.Context, method string, params any) (any, error) {
	a.mu.RLock()
	p := a.provider
	a.mu.RUnlock()
	if p == nil {
		return nil, errors.New("injected: no wallet provider detected")
	}

	if isTakeOfferMethod(method) {
		return a.takeOffer(ctx, p, params)
	}

	result, err := p.Request(ctx, method, params)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, ErrMethodNotFound) {
		return nil, err
	}

	// The unified surface lacks the method; probe dedicated entry points.
	switch {
	case strings.EqualFold(method, "connect"):
		if c, ok := p.(Connector); ok {
			return c.Connect(ctx)
		}
	case strings.EqualFold(method, "disconnect"):
		if d, ok := p.(Disconnector); ok {
			return nil, d.Disconnect(ctx)
		}
	}
	return nil, fmt.Errorf("injected: unsupported method %q", method)
}

func (a *Adapter) takeOffer(ctx context.Context, p Provider, params any) (any, error) {
	offer := ExtractOfferParam(params)
	if offer == "" {
		return nil, errors.New("injected: take-offer params carry no offer string")
	}

	result, err := p.Request(ctx, "takeOffer", map[string]any{"offer": offer})
	if err != nil {
		if !errors.Is(err, ErrMethodNotFound) {
			return nil, err
		}
		taker, ok := p.(OfferTaker)
		if !ok {
			return nil, fmt.Errorf("injected: unsupported method %q", "takeOffer")
		}
		result, err = taker.TakeOffer(ctx, offer)
		if err != nil {
			return nil, err
		}
	}
	return NormalizeTxID(result), nil
}

func isTakeOfferMethod(method string) bool {
	for _, alias := range takeOfferAliases {
		if strings.EqualFold(method, alias) {
			return true
		}
	}
	return false
}
