package gateway

import "fmt"

// ValidationError reports a request rejected locally, before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// GatewayError reports a failed exchange with the provider. Rejected is set
// when the provider answered and declined; otherwise the outcome is unknown
// (timeout, transport failure, throttling, unreadable response). NotFound is
// set only when a status check was answered with "no such order".
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
	Rejected   bool
	NotFound   bool
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s failed: status=%d %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("gateway %s failed: %s", e.Op, msg)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ProviderMessage returns the message supplied by the provider, if any.
func (e *GatewayError) ProviderMessage() string {
	return e.Message
}
