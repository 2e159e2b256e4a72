// Package injected drives a locally injected wallet provider: a wallet
// implementation reachable in-process without a relay hop. Provider method
// surfaces vary across wallet versions, so connection handshakes, address
// lists and transaction results are normalized through small ordered matcher
// lists rather than a single fixed shape.
package injected

import (
	"context"
	"errors"
)

// Provider is the unified request surface every injected wallet exposes.
// Implementations that support dedicated entry points additionally implement
// the optional capability interfaces below; the adapter detects them the way
// page scripts probe for methods on the injected object.
type Provider interface {
	Request(ctx context.Context, method string, params any) (any, error)
}

// Connector is implemented by providers with a dedicated connect handshake.
type Connector interface {
	Connect(ctx context.Context) (any, error)
}

// Disconnector is implemented by providers with a dedicated disconnect call.
type Disconnector interface {
	Disconnect(ctx context.Context) error
}

// OfferTaker is implemented by legacy providers exposing a dedicated
// take-offer method instead of routing it through Request.
type OfferTaker interface {
	TakeOffer(ctx context.Context, offer string) (any, error)
}

// ErrMethodNotFound is returned by providers for methods missing from their
// surface. The adapter uses it to fall through to capability interfaces.
var ErrMethodNotFound = errors.New("injected: method not found")
