package walletcore

import (
	"context"

	"github.com/offerhaven/walletcore/injected"
	"github.com/offerhaven/walletcore/relay"
)

// Backend identifies which wallet transport services a request. Exactly one
// may be active at a time; the value is derived from connection state, never
// stored.
type Backend int

const (
	BackendNone Backend = iota
	BackendRemote
	BackendInjected
)

func (b Backend) String() string {
	switch b {
	case BackendRemote:
		return "remote"
	case BackendInjected:
		return "injected"
	default:
		return "none"
	}
}

// RemoteBackend is the slice of the relay session manager the router and
// settlement flow depend on. *relay.SessionManager implements it.
type RemoteBackend interface {
	Connected() bool
	Address() string
	Connect(ctx context.Context) (relay.ConnectResult, error)
	Disconnect(ctx context.Context)
	Reset()
	Request(ctx context.Context, method string, params any) (any, error)
}

var _ RemoteBackend = (*relay.SessionManager)(nil)

// InjectedBackend is the slice of the injected wallet adapter the router and
// settlement flow depend on. *injected.Adapter implements it.
type InjectedBackend interface {
	Available() bool
	Connected() bool
	Address() string
	Connect(ctx context.Context) ([]string, error)
	Disconnect(ctx context.Context)
	Request(ctx context.Context, method string, params any) (any, error)
}

var _ InjectedBackend = (*injected.Adapter)(nil)
