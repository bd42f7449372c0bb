// Package server provides the HTTP REST API for newsroom authoring sessions.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/ingestion"
	"github.com/jonathan/newsroom/internal/session"
	"github.com/jonathan/newsroom/internal/workflow"
)

// ErrSessionNotFound indicates the session does not exist or was evicted
type ErrSessionNotFound struct {
	ID string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}

// ErrSourceNotFound indicates an ingest request named an unknown news source
type ErrSourceNotFound struct {
	ID string
}

func (e *ErrSourceNotFound) Error() string {
	return fmt.Sprintf("news source not found: %s", e.ID)
}

// ErrDraftNotFound indicates the draft does not exist for the caller
type ErrDraftNotFound struct {
	ID uuid.UUID
}

func (e *ErrDraftNotFound) Error() string {
	return fmt.Sprintf("draft not found: %s", e.ID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		sessionNotFound *ErrSessionNotFound
		sourceNotFound  *ErrSourceNotFound
		draftNotFound   *ErrDraftNotFound
		validation      *ErrValidation
		unknownStep     *workflow.UnknownStepError
		fetchErr        *ingestion.FetchError
		schemaErr       *ingestion.SchemaError
	)

	switch {
	case errors.As(err, &sessionNotFound), errors.As(err, &sourceNotFound),
		errors.As(err, &draftNotFound), errors.Is(err, session.ErrDraftNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, ingestion.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &validation), errors.As(err, &unknownStep), errors.Is(err, workflow.ErrNoSuchTitle):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrIngestionRunning), errors.Is(err, session.ErrNothingToCancel),
		errors.Is(err, session.ErrActorConflict):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrIngestionDisabled), errors.Is(err, session.ErrDraftsDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &fetchErr), errors.As(err, &schemaErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
