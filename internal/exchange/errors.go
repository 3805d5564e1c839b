package exchange

import "fmt"

// NetworkError wraps a transport-level failure (timeout, connection
// refused, unreadable body). Transient; callers apply their documented
// fallback or surface it.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RejectedError is a venue-level rejection, surfaced verbatim to the
// operator and never retried automatically.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("exchange rejected request: code=%s msg=%s", e.Code, e.Message)
}
