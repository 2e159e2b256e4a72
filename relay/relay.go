// Package relay owns the relay-based wallet session lifecycle: pairing,
// approval, the settled session, and its persistence and recovery across
// processes sharing one store.
//
// The relay wire protocol is a given external contract; this package layers
// client-side orchestration over it. Known relay-library defects are isolated
// in a decorator (see Guard) instead of being patched into the client.
package relay

import (
	"context"
	"time"
)

// Required namespace for wallet sessions. The wallet must grant these methods
// on the configured chain; no events are required.
const (
	ChainChiaMainnet = "chia:mainnet"

	MethodSignMessageByID      = "chia_signMessageById"
	MethodSignMessageByAddress = "chia_signMessageByAddress"
	MethodTakeOffer            = "chia_takeOffer"
)

// RequiredMethods lists the RPC methods a session proposal asks for.
var RequiredMethods = []string{
	MethodSignMessageByID,
	MethodSignMessageByAddress,
	MethodTakeOffer,
}

// Session is an established relay session: an authorized, addressable channel
// to a wallet, identified by its topic.
//
// A session is only valid in combination with its originating pairing; a
// session whose pairing has been purged must be treated as absent.
type Session struct {
	Topic        string    `json:"topic"`
	PairingTopic string    `json:"pairingTopic"`
	ChainID      string    `json:"chainId"`
	Accounts     []string  `json:"accounts"`
	PeerName     string    `json:"peerName"`
	Expiry       time.Time `json:"expiry"`
}

// Address returns the session's primary account address, or "".
func (s Session) Address() string {
	if len(s.Accounts) == 0 {
		return ""
	}
	return s.Accounts[0]
}

// Pairing is the pre-session handshake record. Pairings are single-use here:
// every connect creates a fresh one and stale ones are purged rather than
// reused, because reuse is the primary source of "no matching key" failures.
type Pairing struct {
	Topic  string `json:"topic"`
	URI    string `json:"uri"`
	Active bool   `json:"active"`
}

// Approval resolves once the out-of-band wallet approves or rejects the
// pairing. It blocks on an external human action; there is no engineered
// timeout, cancellation comes from ctx.
type Approval func(ctx context.Context) (Session, error)

// EventKind names the relay-delivered session notifications.
type EventKind string

const (
	EventSessionUpdate EventKind = "session_update"
	EventSessionDelete EventKind = "session_delete"
	EventSessionEvent  EventKind = "session_event"
)

// Event is a relay-delivered session notification. Update events carry the
// refreshed account list; generic events carry their name and payload.
type Event struct {
	Kind     EventKind
	Topic    string
	Accounts []string
	ChainID  string
	Name     string
	Data     any
}

// Client is the consumed relay-client contract. Transport implements it over
// a websocket; tests implement it in memory so the session manager can be
// driven with synthetic events.
type Client interface {
	// Pair creates a fresh pairing and returns it with its approval future.
	Pair(ctx context.Context) (Pairing, Approval, error)

	// Request performs a wallet RPC over an established session topic.
	Request(ctx context.Context, topic, chainID, method string, params any) (any, error)

	// Disconnect sends a user-initiated disconnect for the session topic.
	Disconnect(ctx context.Context, topic, reason string) error

	// Sessions returns the client's persisted sessions, oldest first.
	Sessions() []Session

	// Pairings returns the client's known pairings.
	Pairings() []Pairing

	// PurgePairing removes a pairing record.
	PurgePairing(topic string)

	// CleanupDuplicatePairings is the client's internal duplicate-pairing
	// sweep. The stock implementation is defective (spurious "no matching
	// key" errors); Guard neutralizes it.
	CleanupDuplicatePairings() error

	// Subscribe registers an event listener and returns its remover.
	Subscribe(fn func(Event)) (unsubscribe func())
}
