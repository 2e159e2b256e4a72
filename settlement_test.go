package walletcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeResolver struct {
	docs  map[string]string
	err   error
	calls int
}

func (f *fakeResolver) ResolveOffer(ctx context.Context, id string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	doc, ok := f.docs[id]
	if !ok {
		return "", NewWalletError(ErrCodeOfferNotFound, "offer not found", map[string]any{"id": id})
	}
	return doc, nil
}

func TestFlowSettleByID(t *testing.T) {
	remote := &fakeRemote{}
	inj := &fakeInjected{
		available:     true,
		connected:     true,
		requestResult: map[string]any{"id": "tx999"},
	}
	resolver := &fakeResolver{docs: map[string]string{"abc123": "offer1xyzpayload"}}
	flow := NewFlow(NewRouter(remote, inj), resolver)

	out := flow.Settle(context.Background(), "abc123")
	if out.Status != SettleSuccess {
		t.Fatalf("Settle() = %+v, want success", out)
	}
	if out.TxID != "tx999" {
		t.Errorf("TxID = %q, want tx999", out.TxID)
	}
	if inj.lastMethod != "chia_takeOffer" {
		t.Errorf("method = %q, want chia_takeOffer", inj.lastMethod)
	}
	params, ok := inj.lastParams.(map[string]any)
	if !ok || params["offer"] != "offer1xyzpayload" {
		t.Errorf("params = %v, want resolved document under offer key", inj.lastParams)
	}
	if remote.resets != 0 || inj.disconnects != 0 {
		t.Error("successful settlement must not tear anything down")
	}
}

func TestFlowRawDocumentSkipsResolver(t *testing.T) {
	inj := &fakeInjected{available: true, connected: true, requestResult: "tx1"}
	resolver := &fakeResolver{}
	flow := NewFlow(NewRouter(&fakeRemote{}, inj), resolver)

	out := flow.Settle(context.Background(), "offer1rawdocument")
	if out.Status != SettleSuccess {
		t.Fatalf("Settle() = %+v, want success", out)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times, want 0 for a raw document", resolver.calls)
	}
}

func TestFlowResolverFailure(t *testing.T) {
	var notified []string
	flow := NewFlow(
		NewRouter(&fakeRemote{}, &fakeInjected{available: true, connected: true}),
		&fakeResolver{err: NewWalletError(ErrCodeOfferNotFound, "offer not found", nil)},
		WithNotifier(func(msg string) { notified = append(notified, msg) }),
	)

	out := flow.Settle(context.Background(), "nope")
	if out.Status != SettleFailed {
		t.Fatalf("Settle() = %+v, want failure", out)
	}
	if out.Category != CategoryGeneric {
		t.Errorf("category = %v, want generic", out.Category)
	}
	if len(notified) != 1 {
		t.Fatalf("notifications = %v, want one", notified)
	}
}

func TestFlowPendingApprovalConflict(t *testing.T) {
	inj := &fakeInjected{
		available:  true,
		connected:  true,
		requestErr: errors.New("please request after current approval resolve"),
	}
	var notified []string
	clock := time.Unix(1000, 0)
	flow := NewFlow(
		NewRouter(&fakeRemote{}, inj),
		nil,
		WithNotifier(func(msg string) { notified = append(notified, msg) }),
	)
	flow.now = func() time.Time { return clock }

	out := flow.Settle(context.Background(), "offer1doc")
	if out.Category != CategoryPendingApproval {
		t.Fatalf("category = %v, want pending approval", out.Category)
	}
	if inj.disconnects != 1 {
		t.Errorf("injected disconnects = %d, want 1", inj.disconnects)
	}
	if len(notified) != 1 {
		t.Fatalf("notifications = %v, want one", notified)
	}

	// Inside the cooldown window a new attempt fails fast without reaching
	// the provider.
	requestsBefore := inj.requests
	inj.connected = true
	out = flow.Settle(context.Background(), "offer1doc")
	if out.Category != CategoryPendingApproval {
		t.Fatalf("cooldown attempt category = %v", out.Category)
	}
	if inj.requests != requestsBefore {
		t.Errorf("provider reached during cooldown: %d requests", inj.requests)
	}

	// After the cooldown the flow tries again.
	clock = clock.Add(DefaultCooldown + time.Second)
	inj.requestErr = nil
	inj.requestResult = "txdone"
	out = flow.Settle(context.Background(), "offer1doc")
	if out.Status != SettleSuccess {
		t.Fatalf("post-cooldown Settle() = %+v, want success", out)
	}
}

func TestFlowRetrySameDocumentIsIdempotent(t *testing.T) {
	inj := &fakeInjected{available: true, connected: true, requestResult: map[string]any{"id": "tx999"}}
	flow := NewFlow(NewRouter(&fakeRemote{}, inj), nil)

	first := flow.Settle(context.Background(), "offer1samedoc")
	if first.Status != SettleSuccess {
		t.Fatalf("first Settle() = %+v", first)
	}
	second := flow.Settle(context.Background(), "offer1samedoc")
	if second.Status != SettleSuccess || second.TxID != "tx999" {
		t.Fatalf("retry Settle() = %+v", second)
	}
	if inj.requests != 1 {
		t.Errorf("provider asked to sign %d times, want 1", inj.requests)
	}

	// A failed attempt is never cached.
	inj.requestErr = errors.New("rpc timeout")
	if out := flow.Settle(context.Background(), "offer1otherdoc"); out.Status != SettleFailed {
		t.Fatalf("Settle() = %+v, want failure", out)
	}
	inj.requestErr = nil
	inj.requests = 0
	if out := flow.Settle(context.Background(), "offer1otherdoc"); out.Status != SettleSuccess {
		t.Fatalf("retry after failure = %+v", out)
	}
	if inj.requests != 1 {
		t.Errorf("retry after failure reached provider %d times, want 1", inj.requests)
	}
}

func TestFlowCooldownDoesNotExtendOnBlockedAttempts(t *testing.T) {
	inj := &fakeInjected{
		available:  true,
		connected:  true,
		requestErr: errors.New("please request after current approval resolve"),
	}
	var notified []string
	clock := time.Unix(1000, 0)
	flow := NewFlow(NewRouter(&fakeRemote{}, inj), nil,
		WithNotifier(func(msg string) { notified = append(notified, msg) }))
	flow.now = func() time.Time { return clock }

	if out := flow.Settle(context.Background(), "offer1doc"); out.Category != CategoryPendingApproval {
		t.Fatalf("category = %v", out.Category)
	}
	disconnects := inj.disconnects
	inj.connected = true

	// Hammering inside the window keeps getting rejected, but must not
	// re-notify, re-disconnect, or push the window out.
	for i := 0; i < 3; i++ {
		clock = clock.Add(time.Second)
		if out := flow.Settle(context.Background(), "offer1doc"); out.Category != CategoryPendingApproval {
			t.Fatalf("blocked attempt %d category = %v", i, out.Category)
		}
	}
	if len(notified) != 1 {
		t.Errorf("notifications = %v, want exactly one", notified)
	}
	if inj.disconnects != disconnects {
		t.Errorf("blocked attempts tore down the adapter: %d disconnects", inj.disconnects)
	}

	// The window still ends DefaultCooldown after the original failure.
	clock = time.Unix(1000, 0).Add(DefaultCooldown + time.Second)
	inj.requestErr = nil
	inj.requestResult = "txdone"
	if out := flow.Settle(context.Background(), "offer1doc"); out.Status != SettleSuccess {
		t.Fatalf("post-cooldown Settle() = %+v, want success", out)
	}
}

func TestFlowStaleRemoteSession(t *testing.T) {
	remote := &fakeRemote{connected: true, requestErr: errors.New("session not found for topic f00")}
	flow := NewFlow(NewRouter(remote, &fakeInjected{}), nil)

	out := flow.Settle(context.Background(), "offer1doc")
	if out.Category != CategoryStaleSession {
		t.Fatalf("category = %v, want stale session", out.Category)
	}
	if remote.resets == 0 {
		t.Error("stale session must clear local remote state")
	}
	if remote.disconnects != 0 {
		t.Error("stale recovery must not round-trip a remote disconnect")
	}
}

func TestFlowUserRejectionIsQuiet(t *testing.T) {
	inj := &fakeInjected{
		available:  true,
		connected:  true,
		requestErr: errors.New("user rejected the offer"),
	}
	var notified []string
	flow := NewFlow(NewRouter(&fakeRemote{}, inj), nil,
		WithNotifier(func(msg string) { notified = append(notified, msg) }))

	out := flow.Settle(context.Background(), "offer1doc")
	if out.Category != CategoryUserRejected {
		t.Fatalf("category = %v, want user rejected", out.Category)
	}
	if out.Notify || len(notified) != 0 {
		t.Errorf("rejection surfaced a notification: %+v %v", out, notified)
	}
	if inj.disconnects != 0 {
		t.Error("rejection must leave the connection intact")
	}
}

func TestFlowBusyGuard(t *testing.T) {
	flow := NewFlow(NewRouter(&fakeRemote{}, &fakeInjected{available: true, connected: true}), nil)
	flow.busy = true

	out := flow.Settle(context.Background(), "offer1doc")
	if out.Status != SettleFailed {
		t.Fatalf("Settle() = %+v, want busy failure", out)
	}
}

func TestFlowConnectsInjectedFirstOnDesktop(t *testing.T) {
	inj := &fakeInjected{available: true, requestResult: "tx1"}
	remote := &fakeRemote{}
	flow := NewFlow(NewRouter(remote, inj), nil)

	out := flow.Settle(context.Background(), "offer1doc")
	if out.Status != SettleSuccess {
		t.Fatalf("Settle() = %+v, want success", out)
	}
	if !inj.Connected() {
		t.Error("injected provider was not connected")
	}
	if remote.requests != 0 {
		t.Errorf("remote received %d requests, want 0", remote.requests)
	}
}

func TestFlowConnectsRemoteOnMobile(t *testing.T) {
	inj := &fakeInjected{available: true}
	remote := &fakeRemote{requestResult: map[string]any{"txId": "tx42"}}
	var uris []string
	flow := NewFlow(
		NewRouter(remote, inj, WithMobile(true)),
		nil,
		WithFlowMobile(true),
		WithURISink(func(uri string) { uris = append(uris, uri) }),
	)

	out := flow.Settle(context.Background(), "offer1doc")
	if out.Status != SettleSuccess {
		t.Fatalf("Settle() = %+v, want success", out)
	}
	if out.TxID != "tx42" {
		t.Errorf("TxID = %q, want tx42", out.TxID)
	}
	if len(uris) != 1 {
		t.Errorf("uri sink received %v, want one pairing URI", uris)
	}
	if inj.Connected() {
		t.Error("injected provider connected on mobile")
	}
}

func TestFlowPendingOfferLifecycle(t *testing.T) {
	session := NewMemorySessionStore()
	inj := &fakeInjected{available: true, connected: true, requestResult: map[string]any{"id": "tx999"}}
	resolver := &fakeResolver{docs: map[string]string{"abc123": "offer1xyzpayload"}}
	flow := NewFlow(NewRouter(&fakeRemote{}, inj), resolver, WithSessionStore(session))

	if flow.CapturePending(map[string]string{"offer_id": "abc123"}) != true {
		t.Fatal("CapturePending() = false")
	}
	if !flow.HasPending() {
		t.Fatal("HasPending() = false after capture")
	}
	if _, ok := session.Get(PendingOfferIDKey); !ok {
		t.Fatal("session mirror missing after capture")
	}

	out, ran := flow.OnConnected(context.Background())
	if !ran {
		t.Fatal("OnConnected() did not run a settlement")
	}
	if out.Status != SettleSuccess || out.TxID != "tx999" {
		t.Fatalf("OnConnected() = %+v", out)
	}
	if flow.HasPending() {
		t.Error("pending offer survived consumption")
	}
	if _, ok := session.Get(PendingOfferIDKey); ok {
		t.Error("session mirror survived consumption")
	}

	// A second connection-established event must not resubmit.
	requestsAfter := inj.requests
	if _, ran := flow.OnConnected(context.Background()); ran {
		t.Error("OnConnected() re-ran a consumed offer")
	}
	if inj.requests != requestsAfter {
		t.Errorf("provider reached again: %d requests", inj.requests)
	}

	// Consumption is one-shot even on failure.
	flow.CapturePending(map[string]string{"offer": "offer1willfail"})
	inj.requestErr = errors.New("rpc timeout")
	if out, ran := flow.OnConnected(context.Background()); !ran || out.Status != SettleFailed {
		t.Fatalf("OnConnected() = %+v, %v", out, ran)
	}
	if flow.HasPending() {
		t.Error("failed attempt must still clear the pending slot")
	}
}

func TestFlowStatus(t *testing.T) {
	remote := &fakeRemote{connected: true, address: "xch1remote"}
	flow := NewFlow(NewRouter(remote, &fakeInjected{}), nil)
	flow.CapturePending(map[string]string{"offer": "offer1doc"})

	st := flow.Status()
	if st.Backend != BackendRemote {
		t.Errorf("Backend = %v, want remote", st.Backend)
	}
	if st.Address != "xch1remote" {
		t.Errorf("Address = %q", st.Address)
	}
	if !st.Pending {
		t.Error("Pending = false, want true")
	}
}
