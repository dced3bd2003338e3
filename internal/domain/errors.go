package domain

import "fmt"

// FailureKind classifies why an access decision failed. Handlers map kinds to
// HTTP statuses; the orchestrator maps them to audit descriptions.
type FailureKind string

const (
	KindRateLimited        FailureKind = "rate_limited"
	KindNotFound           FailureKind = "not_found"
	KindInvalidState       FailureKind = "invalid_state"
	KindIneligible         FailureKind = "ineligible"
	KindNoLockConfigured   FailureKind = "no_lock_configured"
	KindDoorNotConfigured  FailureKind = "door_not_configured"
	KindGatewayFailure     FailureKind = "gateway_failure"
	KindConfigurationError FailureKind = "configuration_error"
)

// AccessError carries a failure kind plus a guest-presentable message. The
// wrapped error keeps the internal detail for logs.
type AccessError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *AccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AccessError) Unwrap() error { return e.Err }

func NewAccessError(kind FailureKind, message string, err error) *AccessError {
	return &AccessError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the failure kind from an error chain, or "" for plain errors.
func KindOf(err error) FailureKind {
	for err != nil {
		if ae, ok := err.(*AccessError); ok {
			return ae.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
