package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeConnectionLost     = "connection_lost"
	ErrCodeSendFailed         = "send_failed"
	ErrCodeOperationFailed    = "operation_failed"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeInvalidMessage     = "invalid_message"
)

// ErrStoreUnavailable is reported when the availability guard rejects a store operation.
var ErrStoreUnavailable = errors.New("store unavailable")

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
