package ingestion

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthenticated means there is no actor to attribute persisted rows to.
var ErrUnauthenticated = errors.New("no authenticated user to attribute articles to")

// PersistenceError reports that fetched articles could not be stored.
type PersistenceError struct {
	Reason string
	Cause  error
}

func (e *PersistenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to persist articles: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("failed to persist articles: %s", e.Reason)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// FetchError reports a failed webhook call.
type FetchError struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	var sb strings.Builder
	sb.WriteString("fetch error for ")
	sb.WriteString(e.URL)
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf(": HTTP %d", e.StatusCode))
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	return sb.String()
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// FieldError is a single schema violation.
type FieldError struct {
	Field   string
	Message string
}

// SchemaError lists every violation found in a webhook response.
type SchemaError struct {
	Errors []FieldError
}

func (e *SchemaError) Error() string {
	var sb strings.Builder
	sb.WriteString("webhook response failed validation:")
	for i, fe := range e.Errors {
		sb.WriteString(fmt.Sprintf(" %d. %s: %s;", i+1, fe.Field, fe.Message))
	}
	return strings.TrimSuffix(sb.String(), ";")
}
