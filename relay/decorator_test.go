package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsBenignSettleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"settle race", errors.New("No matching key. pairing: abc123"), true},
		{"mixed case", errors.New("no matching key. Pairing topic missing"), true},
		{"no matching key alone", errors.New("no matching key. session: s1"), false},
		{"unrelated", errors.New("user rejected"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBenignSettleError(tt.err); got != tt.want {
				t.Errorf("IsBenignSettleError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGuardNeutralizesCleanup(t *testing.T) {
	client := newFakeClient()
	guarded := Guard(client)

	if err := guarded.CleanupDuplicatePairings(); err != nil {
		t.Errorf("guarded cleanup returned %v, want nil", err)
	}
	if client.cleanupCalls != 0 {
		t.Error("guarded cleanup invoked the defective sweep")
	}

	// Guarding twice must not stack.
	if Guard(guarded) != guarded {
		t.Error("double Guard produced a new wrapper")
	}
}

func TestGuardAdoptsSessionDespiteBenignSettleError(t *testing.T) {
	client := newFakeClient()
	client.approveErr = errors.New("no matching key. pairing: pairing-1")
	guarded := Guard(client)

	pairing, approval, err := guarded.Pair(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// The session settles out-of-band while the error surfaces.
	settled := testSession("session-1")
	settled.PairingTopic = pairing.Topic
	client.mu.Lock()
	client.sessions = append(client.sessions, settled)
	client.mu.Unlock()

	session, err := approval(context.Background())
	if err != nil {
		t.Fatalf("approval: %v", err)
	}
	if session.Topic != "session-1" {
		t.Errorf("adopted %q", session.Topic)
	}
}

func TestGuardPropagatesRealApprovalErrors(t *testing.T) {
	client := newFakeClient()
	client.approveErr = errors.New("user rejected the session proposal")
	guarded := Guard(client)

	_, approval, err := guarded.Pair(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := approval(context.Background()); err == nil {
		t.Fatal("real approval error swallowed")
	}
}

func TestGuardBenignErrorWithoutSettledSession(t *testing.T) {
	client := newFakeClient()
	client.approveErr = errors.New("no matching key. pairing: pairing-1")
	guarded := Guard(client)

	_, approval, err := guarded.Pair(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if _, err := approval(context.Background()); err == nil {
		t.Fatal("benign error with no settled session reported success")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("settle wait took unreasonably long")
	}
}
