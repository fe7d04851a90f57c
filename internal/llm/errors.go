package llm

import "fmt"

// ConfigError means the client cannot be constructed; callers should fail
// fast at startup rather than surface it mid-request.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("completion client misconfigured: %s", e.Reason)
}

// AuthError means the upstream rejected the client's credentials.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("completion auth rejected (status %d)", e.Status)
}

// BadRequestError means the upstream rejected the request as malformed.
type BadRequestError struct {
	Status int
	Body   string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("completion request rejected (status %d): %s", e.Status, e.Body)
}

// RateLimitError is returned on 429. Retrying is the caller's choice; the
// client never retries.
type RateLimitError struct {
	Status int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("completion rate limited (status %d)", e.Status)
}

// ServerError covers 5xx-class upstream failures.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("completion upstream error (status %d): %s", e.Status, e.Body)
}

// TransportError covers network-level failures, timeouts included.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("completion transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means the response did not match the wire contract or its
// content did not satisfy the requested output schema.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion response unusable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("completion response unusable: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
