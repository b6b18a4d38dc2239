package models

import "errors"

// ErrorKind classifies a generation failure. Transient kinds are retried by
// the inference client; structural kinds are surfaced immediately.
type ErrorKind string

const (
	ErrKindNetworkUnavailable ErrorKind = "NETWORK_UNAVAILABLE"
	ErrKindTimeout            ErrorKind = "TIMEOUT"
	ErrKindModelNotFound      ErrorKind = "MODEL_NOT_FOUND"
	ErrKindInvalidResponse    ErrorKind = "INVALID_RESPONSE"
	ErrKindValidationFailed   ErrorKind = "VALIDATION_FAILED"
	ErrKindUpstreamError      ErrorKind = "UPSTREAM_ERROR"
)

// ErrorInfo carries the failure classification attached to a
// GenerationResult. Retryable is pre-computed so callers never have to
// inspect transport-level detail to decide on retry eligibility.
type ErrorInfo struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

func (e *ErrorInfo) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewErrorInfo builds an ErrorInfo with Retryable derived from the kind.
// Only NetworkUnavailable and Timeout are transient.
func NewErrorInfo(kind ErrorKind, message string) *ErrorInfo {
	return &ErrorInfo{
		Kind:      kind,
		Message:   message,
		Retryable: kind == ErrKindNetworkUnavailable || kind == ErrKindTimeout,
	}
}

// AsErrorInfo extracts an ErrorInfo from an error chain. If err carries no
// classification it is reported as an upstream error.
func AsErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var info *ErrorInfo
	if errors.As(err, &info) {
		return info
	}
	return NewErrorInfo(ErrKindUpstreamError, err.Error())
}
