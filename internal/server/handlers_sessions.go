package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/ingestion"
	"github.com/jonathan/newsroom/internal/processing"
	"github.com/jonathan/newsroom/internal/server/middleware"
	"github.com/jonathan/newsroom/internal/session"
	"github.com/jonathan/newsroom/internal/types"
	"github.com/jonathan/newsroom/internal/workflow"
)

const (
	maxRequestBody    = 1 << 20
	sseKeepAlive      = 15 * time.Second
	sourceLookupLimit = 5 * time.Second
)

// validatable is implemented by request types in internal/types.
type validatable interface {
	Validate() error
}

// decodeRequest reads a JSON body into req and validates it.
func decodeRequest(w http.ResponseWriter, r *http.Request, req validatable) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(req); err != nil {
		return &ErrValidation{Field: "body", Message: "invalid JSON request body"}
	}
	if err := req.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError converts validator output into an ErrValidation for the first failing field.
func validationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		ve := validationErrors[0]
		return &ErrValidation{Field: ve.Field(), Message: ve.Tag()}
	}
	return &ErrValidation{Field: "body", Message: "invalid request"}
}

// lookupSession resolves the {id} path value to a live session.
func (s *Server) lookupSession(r *http.Request) (*session.Session, error) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &ErrSessionNotFound{ID: raw}
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, &ErrSessionNotFound{ID: raw}
	}
	return sess, nil
}

// withSession runs fn for the session named in the path and writes any error it returns.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	sess, err := s.lookupSession(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := fn(sess); err != nil {
		s.writeError(w, err)
	}
}

// stepView describes a step for responses.
func stepView(step workflow.Step) (name, label string, index int) {
	return string(step), workflow.StepRegistry[step].Label, step.Index()
}

// -----------------------------------------------------------------------------
// Session lifecycle
// -----------------------------------------------------------------------------

// handleCreateSession starts a session. A valid bearer token authenticates it.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.GetActorID(r)
	if err != nil {
		actor = uuid.Nil
	}
	sess := s.sessions.Create(actor)
	s.jsonResponse(w, http.StatusCreated, types.CreateSessionResponse{
		ID:            sess.ID,
		Authenticated: actor != uuid.Nil,
	})
}

// handleGetSession returns the session snapshot.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		snap, err := sess.Snapshot()
		if err != nil {
			return err
		}
		s.jsonResponse(w, http.StatusOK, snap)
		return nil
	})
}

// handleDeleteSession ends a session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil || !s.sessions.Delete(id) {
		s.writeError(w, &ErrSessionNotFound{ID: raw})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Draft editing
// -----------------------------------------------------------------------------

// handleUpdateDraft applies partial changes to the article fields.
func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		var req types.UpdateDraftRequest
		if err := decodeRequest(w, r, &req); err != nil {
			return err
		}

		update := session.DraftUpdate{
			Content:         req.Content,
			ArticleType:     req.ArticleType,
			Title:           req.Title,
			SuggestedTitles: req.SuggestedTitles,
			ClearImage:      req.ClearImage,
		}
		if req.SelectedImage != nil {
			img := assetFromHandle(*req.SelectedImage)
			update.SelectedImage = &img
		}

		state, err := sess.UpdateDraft(update)
		if err != nil {
			return err
		}
		s.jsonResponse(w, http.StatusOK, state)
		return nil
	})
}

// handleAddFiles attaches uploaded file handles.
func (s *Server) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		var req types.AddFilesRequest
		if err := decodeRequest(w, r, &req); err != nil {
			return err
		}

		assets := make([]workflow.Asset, 0, len(req.Files))
		for _, f := range req.Files {
			assets = append(assets, assetFromHandle(f))
		}
		state, err := sess.AddFiles(assets...)
		if err != nil {
			return err
		}
		s.jsonResponse(w, http.StatusOK, state)
		return nil
	})
}

// handleRemoveFile detaches a file handle by ID.
func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		fileID := r.PathValue("file_id")
		removed, err := sess.RemoveFile(fileID)
		if err != nil {
			return err
		}
		if !removed {
			s.errorResponse(w, http.StatusNotFound, fmt.Sprintf("file not found: %s", fileID))
			return nil
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// handleSelectTitle chooses one of the suggested titles.
func (s *Server) handleSelectTitle(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		var req types.SelectTitleRequest
		if err := decodeRequest(w, r, &req); err != nil {
			return err
		}
		state, err := sess.SelectTitle(*req.Index)
		if err != nil {
			return err
		}
		s.jsonResponse(w, http.StatusOK, state)
		return nil
	})
}

func assetFromHandle(f types.FileHandle) workflow.Asset {
	return workflow.Asset{ID: f.ID, Name: f.Name, Size: f.Size}
}

// -----------------------------------------------------------------------------
// Workflow navigation
// -----------------------------------------------------------------------------

// handleAdvance moves to the next step or reports why it cannot.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		result, state, err := sess.Advance()
		if err != nil {
			return err
		}

		name, label, index := stepView(state.Step)
		resp := types.AdvanceResponse{
			IsValid: result.IsValid,
			Message: result.Message,
			Step:    name,
			Label:   label,
			Index:   index,
		}
		status := http.StatusOK
		if !result.IsValid {
			status = http.StatusUnprocessableEntity
		}
		s.jsonResponse(w, status, resp)
		return nil
	})
}

// handleRetreat moves to the previous step. It always succeeds.
func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		moved, state, err := sess.Retreat()
		if err != nil {
			return err
		}
		name, label, index := stepView(state.Step)
		s.jsonResponse(w, http.StatusOK, types.RetreatResponse{Moved: moved, Step: name, Label: label, Index: index})
		return nil
	})
}

// handleJump moves to any step without validation.
func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		var req types.JumpRequest
		if err := decodeRequest(w, r, &req); err != nil {
			return err
		}
		step, err := workflow.ParseStep(req.Step)
		if err != nil {
			return err
		}
		state, err := sess.JumpTo(step)
		if err != nil {
			return err
		}
		s.jsonResponse(w, http.StatusOK, state)
		return nil
	})
}

// -----------------------------------------------------------------------------
// Processing
// -----------------------------------------------------------------------------

// handleProcessingUpdate records a processing status report.
func (s *Server) handleProcessingUpdate(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		var req types.ProcessingUpdateRequest
		if err := decodeRequest(w, r, &req); err != nil {
			return err
		}
		stage, err := processing.ParseStage(req.Stage)
		if err != nil {
			return &ErrValidation{Field: "stage", Message: err.Error()}
		}

		var detail []string
		if req.Error != "" {
			detail = append(detail, req.Error)
		}
		status := sess.UpdateProgress(stage, req.Progress, req.Message, detail...)
		s.jsonResponse(w, http.StatusOK, status)
		return nil
	})
}

// handleCancelProcessing stops a running ingestion.
func (s *Server) handleCancelProcessing(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		if err := sess.CancelProcessing(); err != nil {
			return err
		}
		w.WriteHeader(http.StatusAccepted)
		return nil
	})
}

// -----------------------------------------------------------------------------
// Authentication and gated commands
// -----------------------------------------------------------------------------

// handleAuthenticate binds the token's actor to the session. A pending command runs now.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		actor, err := middleware.GetActorID(r)
		if err != nil {
			return session.ErrNotAuthenticated
		}
		if err := sess.Authenticate(actor); err != nil {
			return err
		}
		snap, err := sess.Snapshot()
		if err != nil {
			return err
		}
		s.jsonResponse(w, http.StatusOK, snap)
		return nil
	})
}

// handleLogout clears the session actor.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		if err := sess.Logout(); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// handlePublish persists the draft, or defers it until the session is authenticated.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		executed, err := sess.Publish()
		if err != nil {
			return err
		}
		if !executed {
			s.jsonResponse(w, http.StatusAccepted, types.GateResponse{AuthRequired: true})
			return nil
		}
		s.jsonResponse(w, http.StatusOK, types.GateResponse{Executed: true})
		return nil
	})
}

// handleIngest starts fetching the latest news of a source, or defers it until the
// session is authenticated. Progress is reported on the session event stream.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		var req types.IngestRequest
		if err := decodeRequest(w, r, &req); err != nil {
			return err
		}
		source, err := s.resolveSource(r, sess, &req)
		if err != nil {
			return err
		}

		executed, err := sess.FetchLatest(source)
		if err != nil {
			return err
		}
		s.jsonResponse(w, http.StatusAccepted, types.GateResponse{Executed: executed, AuthRequired: !executed})
		return nil
	})
}

// resolveSource finds the news source of an ingest request: inline fields first, then
// configured sources, then the actor's stored sources.
func (s *Server) resolveSource(r *http.Request, sess *session.Session, req *types.IngestRequest) (ingestion.NewsSource, error) {
	if req.Inline() {
		return ingestion.NewsSource{
			ID:        req.SourceID,
			Name:      req.Name,
			URL:       req.URL,
			Category:  req.Category,
			Frequency: req.Frequency,
		}, nil
	}
	if src, ok := s.sources[req.SourceID]; ok {
		return src, nil
	}

	actor := sess.Actor()
	if s.sourceStore == nil || actor == uuid.Nil {
		return ingestion.NewsSource{}, &ErrSourceNotFound{ID: req.SourceID}
	}

	ctx, cancel := context.WithTimeout(r.Context(), sourceLookupLimit)
	defer cancel()
	stored, err := s.sourceStore.GetNewsSource(ctx, actor, req.SourceID)
	if err != nil {
		return ingestion.NewsSource{}, fmt.Errorf("failed to look up news source: %w", err)
	}
	if stored == nil {
		return ingestion.NewsSource{}, &ErrSourceNotFound{ID: req.SourceID}
	}
	return ingestion.NewsSource{
		ID:        stored.ID,
		Name:      stored.Name,
		URL:       stored.URL,
		Category:  stored.Category,
		Frequency: stored.Frequency,
	}, nil
}

// handleDismissPrompt hides the authentication prompt. The pending command is kept.
func (s *Server) handleDismissPrompt(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		if err := sess.DismissPrompt(); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// -----------------------------------------------------------------------------
// Event streams
// -----------------------------------------------------------------------------

// handleSessionEvents streams session events as Server-Sent Events.
// The stream starts with a snapshot event and ends when the session closes.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookupSession(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	snap, err := sess.Snapshot()
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	if err := sse.WriteEvent("snapshot", snap); err != nil {
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if err := sse.WriteKeepAlive(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				sse.WriteEvent("closed", map[string]string{"session": sess.ID.String()}) //nolint:errcheck
				return
			}
			if err := sse.WriteSessionEvent(ev); err != nil {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Persisted drafts
// -----------------------------------------------------------------------------

// handleGetDraft returns a persisted draft of the authenticated actor.
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	if s.drafts == nil {
		s.writeError(w, session.ErrDraftsDisabled)
		return
	}
	actor, err := middleware.GetActorID(r)
	if err != nil {
		s.writeError(w, session.ErrNotAuthenticated)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "id", Message: "invalid draft ID"})
		return
	}

	d, err := s.drafts.GetDraft(r.Context(), actor, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if d == nil {
		s.writeError(w, &ErrDraftNotFound{ID: id})
		return
	}
	s.jsonResponse(w, http.StatusOK, types.DraftResponse{
		ID:        d.ID,
		Title:     d.Title,
		Step:      d.Step,
		Status:    d.Status,
		State:     json.RawMessage(d.State),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	})
}

// handleResumeDraft loads a persisted draft of the session actor into the session.
func (s *Server) handleResumeDraft(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session.Session) error {
		draftID, err := uuid.Parse(r.PathValue("draft_id"))
		if err != nil {
			return &ErrValidation{Field: "draft_id", Message: "invalid draft ID"}
		}
		state, err := sess.Resume(r.Context(), draftID)
		if err != nil {
			return err
		}
		s.jsonResponse(w, http.StatusOK, state)
		return nil
	})
}
