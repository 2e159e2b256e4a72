package injected

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeProvider scripts the unified Request surface per method name.
type fakeProvider struct {
	responses map[string]any
	errs      map[string]error
	calls     []string
}

func (f *fakeProvider) Request(ctx context.Context, method string, params any) (any, error) {
	f.calls = append(f.calls, method)
	if err, ok := f.errs[method]; ok {
		return nil, err
	}
	if resp, ok := f.responses[method]; ok {
		return resp, nil
	}
	return nil, ErrMethodNotFound
}

// connectableProvider adds the dedicated connect/disconnect surface.
type connectableProvider struct {
	fakeProvider
	connectResult any
	connectErr    error
	disconnects   int
}

func (p *connectableProvider) Connect(ctx context.Context) (any, error) {
	p.calls = append(p.calls, "Connect")
	return p.connectResult, p.connectErr
}

func (p *connectableProvider) Disconnect(ctx context.Context) error {
	p.disconnects++
	return nil
}

// legacyOfferProvider only exposes the dedicated take-offer method.
type legacyOfferProvider struct {
	fakeProvider
	offers []string
	result any
}

func (p *legacyOfferProvider) TakeOffer(ctx context.Context, offer string) (any, error) {
	p.offers = append(p.offers, offer)
	return p.result, nil
}

func newAdapterFor(p Provider) *Adapter {
	return NewAdapter(func() Provider { return p })
}

func TestConnectFallbackOrder(t *testing.T) {
	t.Run("only login strategy supported", func(t *testing.T) {
		// First two strategies fail: no Connect method, requestAccounts
		// errors. The third (chia_logIn) must carry the day.
		p := &fakeProvider{
			errs:      map[string]error{"requestAccounts": errors.New("not supported")},
			responses: map[string]any{"chia_logIn": []any{"xch1login"}},
		}
		a := newAdapterFor(p)

		addrs, err := a.Connect(context.Background())
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if len(addrs) != 1 || addrs[0] != "xch1login" {
			t.Errorf("addresses = %v", addrs)
		}
		if !a.Connected() {
			t.Error("adapter not marked connected")
		}
	})

	t.Run("direct connect wins when present", func(t *testing.T) {
		p := &connectableProvider{connectResult: map[string]any{"accounts": []any{"xch1direct"}}}
		a := newAdapterFor(p)

		addrs, err := a.Connect(context.Background())
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if addrs[0] != "xch1direct" {
			t.Errorf("addresses = %v", addrs)
		}
		for _, call := range p.calls {
			if call == "requestAccounts" {
				t.Error("fallback strategy ran despite direct connect success")
			}
		}
	})

	t.Run("empty results keep falling through", func(t *testing.T) {
		// Direct connect "succeeds" with an empty list; the prompt-free
		// account query is the only one with substance.
		p := &connectableProvider{connectResult: []any{}}
		p.responses = map[string]any{"chia_accounts": []any{"xch1existing"}}
		p.errs = map[string]error{
			"requestAccounts": errors.New("rejected"),
			"chia_logIn":      errors.New("rejected"),
		}
		a := newAdapterFor(p)

		addrs, err := a.Connect(context.Background())
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if addrs[0] != "xch1existing" {
			t.Errorf("addresses = %v", addrs)
		}
	})

	t.Run("all strategies exhausted", func(t *testing.T) {
		a := newAdapterFor(&fakeProvider{})
		if _, err := a.Connect(context.Background()); err == nil {
			t.Fatal("Connect succeeded with no usable strategy")
		}
		if a.Connected() {
			t.Error("adapter marked connected after failed connect")
		}
	})

	t.Run("no provider detected", func(t *testing.T) {
		a := NewAdapter(func() Provider { return nil })
		if a.Available() {
			t.Error("Available with nil locator result")
		}
		if _, err := a.Connect(context.Background()); err == nil {
			t.Fatal("Connect succeeded without a provider")
		}
	})
}

func TestDisconnectClearsStateUnconditionally(t *testing.T) {
	p := &connectableProvider{connectResult: []any{"xch1abc"}}
	a := newAdapterFor(p)

	if _, err := a.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	a.Disconnect(context.Background())

	if p.disconnects != 1 {
		t.Errorf("provider disconnect called %d times, want 1", p.disconnects)
	}
	if a.Connected() || a.Address() != "" {
		t.Error("local state not cleared")
	}

	// A provider with no disconnect surface still clears local state.
	plain := &fakeProvider{responses: map[string]any{"requestAccounts": []any{"xch1abc"}}}
	b := newAdapterFor(plain)
	if _, err := b.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.Disconnect(context.Background())
	if b.Connected() {
		t.Error("local state not cleared without Disconnector")
	}
}

func TestRequestTakeOffer(t *testing.T) {
	t.Run("alias matching is case-insensitive", func(t *testing.T) {
		for _, method := range []string{"chia_takeOffer", "CHIA_TAKEOFFER", "takeoffer", "Take_Offer"} {
			p := &fakeProvider{responses: map[string]any{"takeOffer": map[string]any{"id": "tx999"}}}
			a := newAdapterFor(p)

			result, err := a.Request(context.Background(), method, map[string]any{"offer": "offer1xyz"})
			if err != nil {
				t.Fatalf("%s: %v", method, err)
			}
			if result != "tx999" {
				t.Errorf("%s: result = %v, want tx999", method, result)
			}
		}
	})

	t.Run("missing offer fails fast", func(t *testing.T) {
		p := &fakeProvider{responses: map[string]any{"takeOffer": "tx1"}}
		a := newAdapterFor(p)

		_, err := a.Request(context.Background(), "takeOffer", map[string]any{"fee": 1})
		if err == nil || !strings.Contains(err.Error(), "offer") {
			t.Errorf("err = %v, want offer extraction failure", err)
		}
		if len(p.calls) != 0 {
			t.Errorf("provider called despite missing offer: %v", p.calls)
		}
	})

	t.Run("legacy dedicated method fallback", func(t *testing.T) {
		p := &legacyOfferProvider{result: map[string]any{"txId": "tx42"}}
		a := newAdapterFor(p)

		result, err := a.Request(context.Background(), "takeOffer", "offer1xyz")
		if err != nil {
			t.Fatal(err)
		}
		if result != "tx42" {
			t.Errorf("result = %v, want tx42", result)
		}
		if len(p.offers) != 1 || p.offers[0] != "offer1xyz" {
			t.Errorf("dedicated method received %v", p.offers)
		}
	})

	t.Run("opaque success normalizes to sentinel", func(t *testing.T) {
		p := &fakeProvider{responses: map[string]any{"takeOffer": map[string]any{"status": "ok"}}}
		a := newAdapterFor(p)

		result, err := a.Request(context.Background(), "takeOffer", "offer1xyz")
		if err != nil {
			t.Fatal(err)
		}
		if result != SubmittedTxID {
			t.Errorf("result = %v, want %q", result, SubmittedTxID)
		}
	})

	t.Run("provider error propagates", func(t *testing.T) {
		p := &fakeProvider{errs: map[string]error{"takeOffer": errors.New("user rejected the request")}}
		a := newAdapterFor(p)

		if _, err := a.Request(context.Background(), "takeOffer", "offer1xyz"); err == nil {
			t.Fatal("provider error swallowed")
		}
	})
}

func TestRequestOtherMethods(t *testing.T) {
	t.Run("forwarded to unified surface", func(t *testing.T) {
		p := &fakeProvider{responses: map[string]any{"chia_signMessageById": "sig"}}
		a := newAdapterFor(p)

		result, err := a.Request(context.Background(), "chia_signMessageById", map[string]any{"message": "m"})
		if err != nil || result != "sig" {
			t.Errorf("result = %v, %v", result, err)
		}
	})

	t.Run("unsupported method", func(t *testing.T) {
		a := newAdapterFor(&fakeProvider{})
		_, err := a.Request(context.Background(), "chia_unheardOf", nil)
		if err == nil || !strings.Contains(err.Error(), "unsupported") {
			t.Errorf("err = %v, want unsupported", err)
		}
	})

	t.Run("connect method falls through to dedicated surface", func(t *testing.T) {
		p := &connectableProvider{connectResult: []any{"xch1abc"}}
		a := newAdapterFor(p)

		result, err := a.Request(context.Background(), "connect", nil)
		if err != nil {
			t.Fatal(err)
		}
		if NormalizeAddresses(result) == nil {
			t.Errorf("result = %v", result)
		}
	})
}

func TestDetectionTracksProvider(t *testing.T) {
	var current Provider
	a := NewAdapter(func() Provider { return current })

	if a.Available() {
		t.Fatal("available before injection")
	}

	current = &fakeProvider{responses: map[string]any{"requestAccounts": []any{"xch1abc"}}}
	a.detect()
	if !a.Available() {
		t.Fatal("not available after injection")
	}
	if _, err := a.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Provider withdrawn: availability and connection state drop together.
	current = nil
	a.detect()
	if a.Available() || a.Connected() {
		t.Error("state survived provider withdrawal")
	}
}
