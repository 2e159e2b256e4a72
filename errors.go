package walletcore

import "fmt"

// WalletError represents a wallet-operation error with a stable code callers
// can branch on.
type WalletError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeUserRejected      = "user_rejected"
	ErrCodeStaleSession      = "stale_session"
	ErrCodePendingApproval   = "pending_approval_conflict"
	ErrCodeInsufficientFunds = "insufficient_funds"
	ErrCodeGenericFailure    = "generic_failure"
	ErrCodeNoWalletConnected = "no_wallet_connected"
	ErrCodeOfferNotFound     = "offer_not_found"
	ErrCodeConnectionFailed  = "connection_failed"
)

// NewWalletError creates a new wallet error
func NewWalletError(code, message string, details map[string]any) *WalletError {
	return &WalletError{
		Code:    code,
		Message: message,
		Details: details,
	}
}
