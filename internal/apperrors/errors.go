// Package apperrors provides the tagged error taxonomy shared across the
// memory store, lifecycle engine, and extraction layer.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the semantic category of an Error.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindDatabase       Kind = "database"
	KindVectorStore    Kind = "vector_store"
	KindLLM            Kind = "llm_error"
	KindRateLimit      Kind = "rate_limit"
	KindParse          Kind = "parse_error"
	KindConfiguration  Kind = "configuration_error"
)

// Error is the tagged error type every component returns instead of ad-hoc
// strings. Callers should use errors.As to recover the Kind-specific fields.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Kind-specific fields, only the ones relevant to Kind are populated.
	Resource    string        // not_found
	ResourceID  string        // not_found
	Field       string        // validation
	Provider    string        // llm_error
	RetryAfter  time.Duration // rate_limit
	RawResponse string        // parse_error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, target) report true when target is an *Error of
// the same Kind, whatever its other fields; prefer errors.As(err, &target)
// and inspecting Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NotFound builds a not_found error for a workspace-scoped lookup miss.
func NotFound(resource, id string) *Error {
	return &Error{
		Kind:       KindNotFound,
		Message:    fmt.Sprintf("%s %s not found", resource, id),
		Resource:   resource,
		ResourceID: id,
	}
}

// Validation builds a validation error for a specific field.
func Validation(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict builds a conflict error, typically from a unique-key violation.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Database wraps an underlying relational failure.
func Database(message string, cause error) *Error {
	return &Error{Kind: KindDatabase, Message: message, Cause: cause}
}

// VectorStore wraps an underlying vector index failure.
func VectorStore(message string, cause error) *Error {
	return &Error{Kind: KindVectorStore, Message: message, Cause: cause}
}

// LLM wraps an underlying LLM provider failure.
func LLM(provider, message string, cause error) *Error {
	return &Error{Kind: KindLLM, Message: message, Provider: provider, Cause: cause}
}

// RateLimit builds a rate_limit error carrying a retry-after hint.
func RateLimit(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// Parse builds a parse_error, optionally carrying the raw response that
// failed to parse for debugging.
func Parse(message, rawResponse string) *Error {
	return &Error{Kind: KindParse, Message: message, RawResponse: rawResponse}
}

// Configuration builds a configuration_error.
func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// Is* helpers are convenience wrappers over IsKind for the common cases.

func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

func IsNotFound(err error) bool   { return IsKind(err, KindNotFound) }
func IsValidation(err error) bool { return IsKind(err, KindValidation) }
func IsConflict(err error) bool   { return IsKind(err, KindConflict) }
func IsRateLimit(err error) bool  { return IsKind(err, KindRateLimit) }

// ClassifyLLMError maps a vendor error message to the taxonomy, matching
// the extraction pipeline's error propagation policy.
func ClassifyLLMError(provider string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "rate limit", "429", "too many requests"):
		return RateLimit(0)
	case containsAny(msg, "json", "parse", "unmarshal", "malformed"):
		return Parse(msg, "")
	default:
		return LLM(provider, msg, err)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if indexFold(s, sub) >= 0 {
			return true
		}
	}
	return false
}

// indexFold is a tiny case-insensitive substring search, avoiding a
// strings.ToLower allocation per call site.
func indexFold(s, sub string) int {
	if len(sub) == 0 {
		return 0
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if equalFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
