package relay

// ReconcileAction is the outcome of comparing locally held session state
// against what the underlying client reports.
type ReconcileAction int

const (
	// ReconcileNone means local state already matches the client.
	ReconcileNone ReconcileAction = iota

	// ReconcileAdopt means the client holds a session the local state lacks
	// (or a newer one); the returned session should be adopted.
	ReconcileAdopt

	// ReconcileClear means local state claims a session the client no longer
	// has; local state should be cleared.
	ReconcileClear
)

// Reconcile is the pure cross-tab reconciliation predicate: given the locally
// held session (nil when none) and the sessions the client currently reports,
// it decides the next state. The caller owns filtering reported down to valid
// sessions (see ValidSessions) and wiring the decision to timers and storage
// notifications.
func Reconcile(local *Session, reported []Session) (ReconcileAction, Session) {
	if len(reported) == 0 {
		if local != nil {
			return ReconcileClear, Session{}
		}
		return ReconcileNone, Session{}
	}

	latest := mostRecent(reported)
	if local == nil {
		return ReconcileAdopt, latest
	}
	for _, s := range reported {
		if s.Topic == local.Topic {
			return ReconcileNone, Session{}
		}
	}
	// Local session vanished from the client but another settled, most
	// likely from a sibling tab; follow it.
	return ReconcileAdopt, latest
}

// ValidSessions filters sessions down to those whose originating pairing
// still exists. An orphaned session (pairing purged) is treated as absent,
// not as an error.
func ValidSessions(sessions []Session, pairings []Pairing) []Session {
	known := make(map[string]struct{}, len(pairings))
	for _, p := range pairings {
		known[p.Topic] = struct{}{}
	}

	valid := sessions[:0:0]
	for _, s := range sessions {
		if s.PairingTopic == "" {
			valid = append(valid, s)
			continue
		}
		if _, ok := known[s.PairingTopic]; ok {
			valid = append(valid, s)
		}
	}
	return valid
}

// mostRecent picks the session with the latest expiry, ties going to the
// later list position (clients append new sessions).
func mostRecent(sessions []Session) Session {
	best := sessions[0]
	for _, s := range sessions[1:] {
		if !s.Expiry.Before(best.Expiry) {
			best = s
		}
	}
	return best
}
