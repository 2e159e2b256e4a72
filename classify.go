package walletcore

import (
	"errors"
	"regexp"
	"time"

	"github.com/offerhaven/walletcore/relay"
)

// Category is the error class a failed wallet operation falls into. Every
// RPC call site classifies its own failure; raw provider errors never reach
// the presentation layer unclassified.
type Category string

const (
	// CategoryUserRejected: the wallet-side human declined or closed the
	// request. Intentional, so never surfaced as an alarming error.
	CategoryUserRejected Category = ErrCodeUserRejected

	// CategoryStaleSession: the remote session or pairing no longer exists
	// on the relay side. Recovery is a local reset, never a remote
	// disconnect - the remote side already considers the session gone.
	CategoryStaleSession Category = ErrCodeStaleSession

	// CategoryPendingApproval: the injected provider is still processing a
	// prior request. Recovery is disconnecting the injected adapter plus a
	// short cooldown.
	CategoryPendingApproval Category = ErrCodePendingApproval

	// CategoryInsufficientFunds: coin selection failed; reported verbatim,
	// no reset.
	CategoryInsufficientFunds Category = ErrCodeInsufficientFunds

	// CategoryGeneric: everything else; raw message, no side effects.
	CategoryGeneric Category = ErrCodeGenericFailure
)

// Message vocabularies, matched against the raw error text. "missing or
// invalid" is the malformed-history marker some relay builds emit instead of
// a proper session-not-found.
var (
	rejectedPattern = regexp.MustCompile(`(?i)reject|den(y|ied)|cancel|close`)
	stalePattern    = regexp.MustCompile(`(?i)session not found|no matching key|pairing|missing or invalid`)
	pendingPattern  = regexp.MustCompile(`(?i)request after current approval resolve`)
	fundsPattern    = regexp.MustCompile(`(?i)coin selection error|no spendable coins|insufficient funds`)
)

// Classify maps a wallet-operation failure to its category.
func Classify(err error) Category {
	if err == nil {
		return CategoryGeneric
	}
	if errors.Is(err, relay.ErrApprovalRejected) {
		return CategoryUserRejected
	}
	var werr *WalletError
	if errors.As(err, &werr) {
		switch werr.Code {
		case ErrCodeUserRejected:
			return CategoryUserRejected
		case ErrCodeStaleSession:
			return CategoryStaleSession
		case ErrCodePendingApproval:
			return CategoryPendingApproval
		case ErrCodeInsufficientFunds:
			return CategoryInsufficientFunds
		}
	}

	msg := err.Error()
	switch {
	case pendingPattern.MatchString(msg):
		return CategoryPendingApproval
	case fundsPattern.MatchString(msg):
		return CategoryInsufficientFunds
	case rejectedPattern.MatchString(msg):
		// Checked before the stale vocabulary: a wallet's "user rejected
		// pairing request" is a rejection, not a stale pairing.
		return CategoryUserRejected
	case stalePattern.MatchString(msg):
		return CategoryStaleSession
	default:
		return CategoryGeneric
	}
}

// Disposition describes what a failure category does besides failing: which
// backend gets torn down, whether a cooldown applies, and whether the user
// sees a notification.
type Disposition struct {
	Category    Category
	ResetTarget Backend
	Cooldown    time.Duration
	Notify      bool
	UserMessage string
}

// DefaultCooldown blocks retries after a pending-approval conflict long
// enough for the provider to settle its prior request.
const DefaultCooldown = 5 * time.Second

// DispositionFor classifies err and returns the full recovery policy for its
// category. UserMessage is empty when the raw message should be shown as-is.
func DispositionFor(err error) Disposition {
	category := Classify(err)
	switch category {
	case CategoryUserRejected:
		return Disposition{Category: category, ResetTarget: BackendNone, Notify: false}
	case CategoryStaleSession:
		return Disposition{
			Category:    category,
			ResetTarget: BackendRemote,
			Notify:      true,
			UserMessage: "wallet connection lost, please reconnect",
		}
	case CategoryPendingApproval:
		return Disposition{
			Category:    category,
			ResetTarget: BackendInjected,
			Cooldown:    DefaultCooldown,
			Notify:      true,
			UserMessage: "wallet is still processing a previous request, try reconnecting",
		}
	case CategoryInsufficientFunds:
		return Disposition{Category: category, ResetTarget: BackendNone, Notify: true}
	default:
		return Disposition{Category: CategoryGeneric, ResetTarget: BackendNone, Notify: true}
	}
}
