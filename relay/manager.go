package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

// DefaultReconcileInterval is how often local session state is compared
// against the client. Multi-second on purpose: staleness between tabs is
// tolerated by design.
const DefaultReconcileInterval = 5 * time.Second

var (
	// ErrConnectInFlight is returned when Connect is invoked while a previous
	// connect still awaits approval. Callers treat it as a no-op.
	ErrConnectInFlight = errors.New("relay: connect already in flight")

	// ErrApprovalRejected marks an intentional wallet-side rejection of the
	// connection request, so callers can suppress user-facing noise.
	ErrApprovalRejected = errors.New("relay: connection request rejected")

	// ErrNoSession is returned by Request when no session is established.
	ErrNoSession = errors.New("relay: no session established")
)

var rejectionPattern = regexp.MustCompile(`(?i)reject|den(y|ied)|cancel|close`)

// ConnectResult carries the pairing URI for out-of-band approval (QR or
// manual entry) and the channel that resolves when the wallet approves or
// rejects.
type ConnectResult struct {
	URI      string
	Approved <-chan error
}

// SessionManager owns the pairing → approval → session lifecycle over a
// relay client, including persistence recovery and cross-tab reconciliation.
// It is explicitly constructed and disposed; there is no ambient singleton.
type SessionManager struct {
	client   Client
	chainID  string
	logger   *slog.Logger
	interval time.Duration

	mu         sync.Mutex
	session    *Session
	connecting bool

	unsubscribe func()
	kick        chan struct{}
	stopOnce    sync.Once
	stop        chan struct{}
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithChainID overrides the chain identifier requested on sessions.
func WithChainID(chainID string) ManagerOption {
	return func(m *SessionManager) {
		if chainID != "" {
			m.chainID = chainID
		}
	}
}

// WithReconcileInterval overrides the reconciliation polling interval.
func WithReconcileInterval(d time.Duration) ManagerOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewSessionManager wraps the raw client in the defect Guard, subscribes to
// its session events, and adopts the most recent persisted session from a
// prior run, if any.
func NewSessionManager(raw Client, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		client:   Guard(raw),
		chainID:  ChainChiaMainnet,
		logger:   slog.Default(),
		interval: DefaultReconcileInterval,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.unsubscribe = m.client.Subscribe(m.handleEvent)
	m.reconcileNow()
	return m
}

// Start runs the reconciliation loop until ctx is done or Close is called.
func (m *SessionManager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.reconcileNow()
			case <-m.kick:
				m.reconcileNow()
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			}
		}
	}()
}

// Close tears the manager down: the reconcile loop stops and the event
// subscription is removed. The session itself is left untouched.
func (m *SessionManager) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
	})
}

// Session returns a copy of the current session, if one is established.
func (m *SessionManager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Connected reports whether a session is established.
func (m *SessionManager) Connected() bool {
	_, ok := m.Session()
	return ok
}

// Address returns the primary account address of the current session, or "".
func (m *SessionManager) Address() string {
	s, ok := m.Session()
	if !ok {
		return ""
	}
	return s.Address()
}

// Connect starts a fresh pairing and returns its URI for out-of-band
// approval. Approval is awaited asynchronously; the result channel yields nil
// on adoption, ErrApprovalRejected on intentional rejection, or the raw
// failure otherwise.
//
// A connect already in flight makes this a no-op (ErrConnectInFlight).
// Pairings are never reused: a brand-new one is requested every time, as the
// anti-staleness policy demands.
func (m *SessionManager) Connect(ctx context.Context) (ConnectResult, error) {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return ConnectResult{}, ErrConnectInFlight
	}
	m.connecting = true
	m.mu.Unlock()

	pairing, approval, err := m.client.Pair(ctx)
	if err != nil {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
		return ConnectResult{}, fmt.Errorf("relay: pairing failed: %w", err)
	}

	approved := make(chan error, 1)
	go func() {
		defer close(approved)

		session, err := approval(ctx)

		m.mu.Lock()
		m.connecting = false
		if err == nil {
			m.session = &session
			m.mu.Unlock()
			m.logger.Info("relay: session established",
				"topic", session.Topic, "peer", session.PeerName)
			approved <- nil
			return
		}
		m.mu.Unlock()

		if rejectionPattern.MatchString(err.Error()) {
			err = fmt.Errorf("%w: %v", ErrApprovalRejected, err)
		}
		approved <- err
	}()

	m.logger.Debug("relay: pairing created", "topic", pairing.Topic)
	return ConnectResult{URI: pairing.URI, Approved: approved}, nil
}

// Disconnect ends the session. The remote disconnect is best-effort; known
// pairings are purged regardless of its outcome, so an orphaned pairing
// cannot make the next connect's approval silently fail.
func (m *SessionManager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()

	if session != nil {
		if err := m.client.Disconnect(ctx, session.Topic, "user disconnected"); err != nil {
			m.logger.Debug("relay: remote disconnect failed", "err", err)
		}
	}

	for _, p := range m.client.Pairings() {
		m.client.PurgePairing(p.Topic)
	}
}

// Reset clears local session state without a remote disconnect call. Used
// after session/pairing integrity failures: the remote side already considers
// the session gone, and the next action must go through a full Connect.
func (m *SessionManager) Reset() {
	m.mu.Lock()
	m.session = nil
	m.connecting = false
	m.mu.Unlock()
	m.logger.Debug("relay: local session state reset")
}

// Request performs a wallet RPC over the established session.
func (m *SessionManager) Request(ctx context.Context, method string, params any) (any, error) {
	session, ok := m.Session()
	if !ok {
		return nil, ErrNoSession
	}
	return m.client.Request(ctx, session.Topic, m.chainID, method, params)
}

// NotifyStoreChanged nudges the reconcile loop, typically from a storage
// change notification raised by a sibling tab or process.
func (m *SessionManager) NotifyStoreChanged() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// reconcileNow compares local state against the client's valid sessions and
// applies the pure Reconcile decision.
func (m *SessionManager) reconcileNow() {
	reported := ValidSessions(m.client.Sessions(), m.client.Pairings())

	m.mu.Lock()
	defer m.mu.Unlock()

	action, session := Reconcile(m.session, reported)
	switch action {
	case ReconcileAdopt:
		m.session = &session
		m.logger.Debug("relay: adopted session from store", "topic", session.Topic)
	case ReconcileClear:
		m.session = nil
		m.logger.Debug("relay: cleared stale local session")
	}
}

func (m *SessionManager) handleEvent(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || ev.Topic != m.session.Topic {
		return
	}

	switch ev.Kind {
	case EventSessionUpdate:
		if len(ev.Accounts) > 0 {
			m.session.Accounts = ev.Accounts
		}
		if ev.ChainID != "" {
			m.session.ChainID = ev.ChainID
		}
	case EventSessionDelete:
		m.session = nil
		m.logger.Info("relay: session deleted by peer", "topic", ev.Topic)
	case EventSessionEvent:
		m.logger.Debug("relay: session event", "name", ev.Name, "topic", ev.Topic)
	}
}
