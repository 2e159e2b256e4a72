package walletcore

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/offerhaven/walletcore/injected"
	"github.com/offerhaven/walletcore/relay"
)

// OfferPrefix marks a raw serialized offer document. Anything without it is
// treated as an offer id and resolved through the marketplace.
const OfferPrefix = "offer1"

// OfferResolver turns an offer id into a serialized offer document.
type OfferResolver interface {
	ResolveOffer(ctx context.Context, id string) (string, error)
}

// SettleStatus is the terminal state of a settlement attempt.
type SettleStatus string

const (
	SettleSuccess SettleStatus = "success"
	SettleFailed  SettleStatus = "failed"
)

// Outcome is the result of one settlement attempt, shaped for the surface
// that shows it: TxID on success, classified error details on failure.
type Outcome struct {
	Status   SettleStatus
	TxID     string
	Category Category
	Message  string
	Notify   bool
}

// DefaultSettlementTTL bounds how long a successful outcome answers retries
// for the same offer document.
const DefaultSettlementTTL = 2 * time.Minute

// Flow drives offer settlement end to end: capture, connect-if-needed,
// resolution, submission, and error disposition. One attempt runs at a time.
type Flow struct {
	router   *Router
	resolver OfferResolver
	pending  *pendingState
	cache    *SettlementCache
	logger   *slog.Logger
	uriSink  func(uri string)
	notify   func(message string)
	mobile   bool
	now      func() time.Time

	mu           sync.Mutex
	busy         bool
	cooldownTill time.Time
}

type FlowOption func(*Flow)

// WithURISink registers a callback that receives the pairing URI whenever a
// settlement needs to establish a remote session first.
func WithURISink(sink func(uri string)) FlowOption {
	return func(f *Flow) { f.uriSink = sink }
}

// WithNotifier registers a callback for user-facing failure messages.
func WithNotifier(notify func(message string)) FlowOption {
	return func(f *Flow) { f.notify = notify }
}

func WithFlowMobile(mobile bool) FlowOption {
	return func(f *Flow) { f.mobile = mobile }
}

func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) { f.logger = logger }
}

func WithSessionStore(store SessionStore) FlowOption {
	return func(f *Flow) { f.pending = newPendingState(store) }
}

func NewFlow(router *Router, resolver OfferResolver, opts ...FlowOption) *Flow {
	f := &Flow{
		router:  router,
		cache:   NewSettlementCache(DefaultSettlementTTL),
		logger:  slog.Default(),
		now:     time.Now,
		pending: newPendingState(nil),
	}
	f.resolver = resolver
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CapturePending records an offer found in navigation parameters for
// settlement once a wallet connection exists. If a wallet is already
// connected the caller should follow up with Settle or OnConnected.
func (f *Flow) CapturePending(params map[string]string) bool {
	offer := ExtractPendingOffer(params)
	if offer.Empty() {
		return false
	}
	f.pending.capture(offer)
	f.logger.Info("pending offer captured", "has_document", offer.Offer != "")
	return true
}

// HasPending reports whether a captured offer is waiting.
func (f *Flow) HasPending() bool { return f.pending.peek() }

// OnConnected consumes and settles the pending offer, if any. Call it after a
// wallet connection is established. The pending slot is cleared whether or
// not the attempt succeeds.
func (f *Flow) OnConnected(ctx context.Context) (Outcome, bool) {
	offer := f.pending.take()
	if offer.Empty() {
		return Outcome{}, false
	}
	ref := offer.Offer
	if ref == "" {
		ref = offer.OfferID
	}
	return f.Settle(ctx, ref), true
}

// Settle runs one settlement attempt for ref, which is either a raw offer
// document or an offer id. Concurrent calls beyond the first fail fast, as do
// calls inside the cooldown window left by a pending-approval conflict.
func (f *Flow) Settle(ctx context.Context, ref string) Outcome {
	if out, ok := f.gate(); !ok {
		return out
	}
	defer f.end()

	if err := f.ensureConnected(ctx); err != nil {
		return f.dispose(err)
	}

	doc, err := f.resolve(ctx, ref)
	if err != nil {
		return f.dispose(err)
	}

	// The document text fully determines the spend: a retry for the same
	// document inside the TTL window answers from cache instead of asking
	// the wallet to sign again.
	key := SettlementKey(doc)
	var done chan struct{}
	for {
		status, cached, ch := f.cache.CheckAndMark(key)
		if status == AttemptCached {
			f.logger.Info("offer already settled", "tx_id", cached.TxID)
			return cached
		}
		if status == AttemptNew {
			done = ch
			break
		}
		if _, _, err := f.cache.WaitForResult(ctx, key, ch); err != nil {
			return f.dispose(err)
		}
	}

	result, err := f.router.Request(ctx, relay.MethodTakeOffer, map[string]any{"offer": doc})
	if err != nil {
		f.cache.Fail(key, done)
		return f.dispose(err)
	}

	txID := injected.NormalizeTxID(result)
	out := Outcome{Status: SettleSuccess, TxID: txID}
	f.cache.Complete(key, out, done)
	f.logger.Info("offer settled", "tx_id", txID)
	return out
}

// Status summarizes wallet state for display surfaces.
func (f *Flow) Status() WalletStatus {
	f.mu.Lock()
	busy := f.busy || f.now().Before(f.cooldownTill)
	f.mu.Unlock()
	return WalletStatus{
		Backend: f.router.Active(),
		Address: f.router.Address(),
		Pending: f.pending.peek(),
		Busy:    busy,
	}
}

type WalletStatus struct {
	Backend Backend
	Address string
	Pending bool
	Busy    bool
}

// gate admits one attempt at a time and rejects anything inside an active
// cooldown window. Gate rejections report the earlier failure's category but
// carry none of its side effects: the teardown, notification, and cooldown
// already happened once.
func (f *Flow) gate() (Outcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return Outcome{
			Status:   SettleFailed,
			Category: CategoryGeneric,
			Message:  "a settlement attempt is already in progress",
		}, false
	}
	if f.now().Before(f.cooldownTill) {
		return Outcome{
			Status:   SettleFailed,
			Category: CategoryPendingApproval,
			Message:  "wallet is still processing a previous request, try reconnecting",
		}, false
	}
	f.busy = true
	return Outcome{}, true
}

func (f *Flow) end() {
	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()
}

// ensureConnected establishes a wallet connection when none exists. Desktop
// prefers the injected provider; mobile only ever pairs remotely. A remote
// pairing blocks until the wallet approves or the context expires.
func (f *Flow) ensureConnected(ctx context.Context) error {
	if f.router.Active() != BackendNone {
		return nil
	}
	if !f.mobile {
		if _, err := f.router.ConnectInjected(ctx); err == nil {
			return nil
		} else {
			f.logger.Debug("injected connect unavailable, falling back to remote", "error", err)
		}
	}
	result, err := f.router.ConnectRemote(ctx)
	if err != nil {
		return err
	}
	if f.uriSink != nil && result.URI != "" {
		f.uriSink(result.URI)
	}
	select {
	case err := <-result.Approved:
		return err
	case <-ctx.Done():
		return NewWalletError(ErrCodeConnectionFailed, "wallet connection timed out", nil)
	}
}

func (f *Flow) resolve(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, OfferPrefix) {
		return ref, nil
	}
	if f.resolver == nil {
		return "", NewWalletError(ErrCodeOfferNotFound, "no offer resolver configured", map[string]any{"id": ref})
	}
	doc, err := f.resolver.ResolveOffer(ctx, ref)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(doc, OfferPrefix) {
		return "", NewWalletError(ErrCodeOfferNotFound, "resolved document is not an offer", map[string]any{"id": ref})
	}
	return doc, nil
}

// dispose classifies a failure, applies its backend reset and cooldown, and
// surfaces the user-facing message.
func (f *Flow) dispose(err error) Outcome {
	d := DispositionFor(err)
	f.logger.Warn("settlement failed", "category", string(d.Category), "error", err)

	switch d.ResetTarget {
	case BackendRemote:
		// Stale sessions are cleared locally only; the remote topic is
		// already dead and a disconnect round-trip would just time out.
		if f.router.remote != nil {
			f.router.remote.Reset()
		}
	case BackendInjected:
		f.router.Disconnect(context.Background(), BackendInjected)
	}
	if d.Cooldown > 0 {
		f.mu.Lock()
		f.cooldownTill = f.now().Add(d.Cooldown)
		f.mu.Unlock()
	}
	msg := d.UserMessage
	if msg == "" && err != nil {
		msg = err.Error()
	}
	if d.Notify && f.notify != nil {
		f.notify(msg)
	}
	return Outcome{
		Status:   SettleFailed,
		Category: d.Category,
		Message:  msg,
		Notify:   d.Notify,
	}
}
