package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrProviderNotFound    = errors.New("no provider supports the requested model")
	ErrProviderDisabled    = errors.New("provider is disabled and has no fallback")
	ErrFallbackCycle       = errors.New("provider fallback chain contains a cycle")
	ErrNoAvailableAccounts = errors.New("no available accounts in pool")
	ErrInsufficientBalance = errors.New("insufficient caps balance")
	ErrPricingNotFound     = errors.New("no pricing configured for model")
	ErrJobNotStoppable     = errors.New("job does not allow stopping")
	ErrJobNotPending       = errors.New("job is not in a pending state")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrAlreadyExists       = errors.New("entity already exists")
)

// Error codes emitted by the provider-transport classifier. Upstream error
// shapes are mapped to these at the transport boundary so nothing downstream
// has to inspect provider-specific payloads.
const (
	CodeContextLengthExceeded = "context_length_exceeded"
	CodeRequestTooLarge       = "request_too_large"
	CodeContentPolicy         = "content_policy_violation"
	CodeInvalidInput          = "invalid_input"
	CodeRateLimited           = "rate_limited"
	CodeQuotaExhausted        = "quota_exhausted"
	CodeUpstreamTimeout       = "upstream_timeout"
	CodeMalformedResponse     = "malformed_response"
	CodeAccountBanned         = "account_banned"
	CodeInternal              = "internal_error"
)

// GenerationError is the normalized form of any upstream failure.
// Retryable controls whether the dispatcher may try a fallback provider;
// AccountFault controls whether the pooled account is penalized.
// RemainingTimeout (ms) is preserved for rate-limit errors so callers can
// render a retry countdown.
type GenerationError struct {
	Code             string
	Message          string
	Retryable        bool
	AccountFault     bool
	RemainingTimeout int64
	cause            error
}

func (e *GenerationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *GenerationError) Unwrap() error { return e.cause }

// NewGenerationError wraps cause with a classified code. Retryability and
// account fault follow from the code.
func NewGenerationError(code, message string, cause error) *GenerationError {
	e := &GenerationError{Code: code, Message: message, cause: cause}
	switch code {
	case CodeContextLengthExceeded, CodeRequestTooLarge, CodeContentPolicy, CodeInvalidInput:
		// caused by the request, not the route or the account
		e.Retryable = false
		e.AccountFault = false
	case CodeRateLimited, CodeQuotaExhausted, CodeUpstreamTimeout, CodeMalformedResponse, CodeAccountBanned:
		e.Retryable = true
		e.AccountFault = true
	default:
		e.Retryable = true
		e.AccountFault = false
	}
	return e
}

// AsGenerationError extracts a *GenerationError from err's chain.
func AsGenerationError(err error) (*GenerationError, bool) {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsRetryable reports whether err may be retried against a fallback provider.
// Unclassified errors are treated as retryable infrastructure failures.
func IsRetryable(err error) bool {
	if ge, ok := AsGenerationError(err); ok {
		return ge.Retryable
	}
	return true
}

// IsAccountFault reports whether err should count against the account that
// served the request. Unclassified errors do not penalize accounts.
func IsAccountFault(err error) bool {
	if ge, ok := AsGenerationError(err); ok {
		return ge.AccountFault
	}
	return false
}

// ErrorCode returns the classified code for err, or CodeInternal.
func ErrorCode(err error) string {
	if ge, ok := AsGenerationError(err); ok {
		return ge.Code
	}
	return CodeInternal
}
