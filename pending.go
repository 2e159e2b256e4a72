package walletcore

import (
	"sync"
)

// Session mirror keys for a captured pending offer. They survive a reload of
// the embedding surface but not a new session.
const (
	PendingOfferKey   = "walletcore.pending.offer"
	PendingOfferIDKey = "walletcore.pending.offer_id"
)

// Navigation parameters recognized as carrying an offer document, in
// precedence order, followed by the offer-id parameter.
var (
	offerParamNames = []string{"offer", "marketplace_offer", "o"}
	offerIDParam    = "offer_id"
)

// SessionStore is ephemeral per-session string storage used to mirror a
// pending offer across surface reloads. Implementations must tolerate
// concurrent use.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MemorySessionStore is a process-local SessionStore.
type MemorySessionStore struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{m: make(map[string]string)}
}

func (s *MemorySessionStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemorySessionStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *MemorySessionStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// PendingOffer is an offer captured from navigation parameters, held until a
// wallet connection exists to settle it. At most one of Offer / OfferID is
// set; a raw document wins over an id.
type PendingOffer struct {
	Offer   string
	OfferID string
}

func (p PendingOffer) Empty() bool { return p.Offer == "" && p.OfferID == "" }

// ExtractPendingOffer pulls a pending offer out of navigation parameters.
// The first populated offer parameter wins; offer_id is only consulted when
// no offer document parameter is present.
func ExtractPendingOffer(params map[string]string) PendingOffer {
	for _, name := range offerParamNames {
		if v := params[name]; v != "" {
			return PendingOffer{Offer: v}
		}
	}
	if v := params[offerIDParam]; v != "" {
		return PendingOffer{OfferID: v}
	}
	return PendingOffer{}
}

// pendingState holds the captured offer in memory with a SessionStore mirror.
// Consumption is one-shot: once an attempt resolves, both copies are cleared
// regardless of outcome.
type pendingState struct {
	mu      sync.Mutex
	pending PendingOffer
	session SessionStore
}

func newPendingState(session SessionStore) *pendingState {
	return &pendingState{session: session}
}

// capture records a pending offer, replacing any earlier one.
func (p *pendingState) capture(offer PendingOffer) {
	if offer.Empty() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = offer
	if p.session != nil {
		if offer.Offer != "" {
			p.session.Set(PendingOfferKey, offer.Offer)
			p.session.Delete(PendingOfferIDKey)
		} else {
			p.session.Set(PendingOfferIDKey, offer.OfferID)
			p.session.Delete(PendingOfferKey)
		}
	}
}

// take removes and returns the pending offer, restoring from the session
// mirror when the in-memory copy was lost to a reload.
func (p *pendingState) take() PendingOffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	offer := p.pending
	if offer.Empty() && p.session != nil {
		if v, ok := p.session.Get(PendingOfferKey); ok && v != "" {
			offer = PendingOffer{Offer: v}
		} else if v, ok := p.session.Get(PendingOfferIDKey); ok && v != "" {
			offer = PendingOffer{OfferID: v}
		}
	}
	p.pending = PendingOffer{}
	if p.session != nil {
		p.session.Delete(PendingOfferKey)
		p.session.Delete(PendingOfferIDKey)
	}
	return offer
}

// peek reports whether a pending offer exists without consuming it.
func (p *pendingState) peek() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending.Empty() {
		return true
	}
	if p.session == nil {
		return false
	}
	if v, ok := p.session.Get(PendingOfferKey); ok && v != "" {
		return true
	}
	if v, ok := p.session.Get(PendingOfferIDKey); ok && v != "" {
		return true
	}
	return false
}
