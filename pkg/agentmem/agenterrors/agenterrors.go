// Package agenterrors classifies failures from Store calls so the coordination
// runtime can decide whether to retry, back off, or surface the failure.
package agenterrors

import (
	"errors"
	"strings"
)

// Code identifies a class of Store error. Codes are stable and appear in the
// {ok:false, error:{code,...}} envelope returned by the Store's HTTP API.
type Code string

const (
	CodeTransient       Code = "transient"
	CodeRateLimited     Code = "rate_limited"
	CodeUnauthorized    Code = "unauthorized"
	CodeDerivationLimit Code = "derivation_limit"
	CodeIntegrity       Code = "integrity"
	CodeDuplicate       Code = "duplicate"
	CodeNotFound        Code = "not_found"
	CodeInvalid         Code = "invalid"
	CodeUnknown         Code = "unknown"
)

// StoreError is a structured error returned by the Store.
type StoreError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Code) + ": " + e.Message
}

// New constructs a StoreError.
func New(code Code, message string) *StoreError {
	return &StoreError{Code: code, Message: message}
}

// AsStoreError unwraps err into a *StoreError, if it is (or wraps) one.
func AsStoreError(err error) (*StoreError, bool) {
	if err == nil {
		return nil, false
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// containsAny reports whether the lowercased error message contains any pattern.
func containsAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is a transient network failure (timeout, 5xx,
// connection reset) that should count toward the circuit breaker and be retried.
func IsTransient(err error) bool {
	if se, ok := AsStoreError(err); ok {
		return se.Code == CodeTransient || se.Status >= 500
	}
	return containsAny(err, []string{
		"timeout", "timed out", "deadline exceeded", "connection reset",
		"connection refused", "econnreset", "eof", "503", "502", "504",
	})
}

// IsRateLimited reports whether err indicates the caller should back off and
// retry after the Store's advertised retry-after window.
func IsRateLimited(err error) bool {
	if se, ok := AsStoreError(err); ok {
		return se.Code == CodeRateLimited || se.Status == 429
	}
	return containsAny(err, []string{"rate limit", "429", "too many requests"})
}

// IsAuthError reports whether err is a fatal authorization failure. Auth
// failures are never counted as a Store outage (they do not touch the
// circuit breaker).
func IsAuthError(err error) bool {
	if se, ok := AsStoreError(err); ok {
		return se.Code == CodeUnauthorized || se.Status == 401 || se.Status == 403
	}
	return containsAny(err, []string{"unauthorized", "401", "forbidden", "403", "invalid token", "missing credentials"})
}

// IsDerivationLimit reports whether err is a non-retryable derivation-depth or
// duplicate-content rejection from the derivation guard (C8).
func IsDerivationLimit(err error) bool {
	if se, ok := AsStoreError(err); ok {
		return se.Code == CodeDerivationLimit || se.Code == CodeDuplicate
	}
	return containsAny(err, []string{"derivation-limit", "derivation limit", "duplicate memory"})
}

// IsIntegrityFailure reports whether err surfaced from a memory-chain verify
// call. Integrity failures are never thrown into hot paths; callers only see
// them when they explicitly call verify.
func IsIntegrityFailure(err error) bool {
	if se, ok := AsStoreError(err); ok {
		return se.Code == CodeIntegrity
	}
	return containsAny(err, []string{"chain broken", "hash mismatch", "integrity"})
}

// FormatUserFacingError turns a Store error into a short operator-facing
// message, picking the most specific category that matches.
func FormatUserFacingError(err error) string {
	if err == nil {
		return "no error"
	}
	switch {
	case IsAuthError(err):
		return "Store rejected credentials; check agent identity configuration."
	case IsDerivationLimit(err):
		return "Write rejected: derivation depth exceeded or duplicate content."
	case IsRateLimited(err):
		return "Store is rate-limiting this agent; back off and retry shortly."
	case IsTransient(err):
		return "Store is temporarily unreachable; local fallback will be used."
	case IsIntegrityFailure(err):
		return "Memory chain integrity check failed."
	default:
		msg := err.Error()
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		return msg
	}
}
