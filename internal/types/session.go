// Package types provides request and response types for the newsroom HTTP API.
package types

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// FileHandle is an uploaded file or image as sent by clients.
type FileHandle struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"display_name" validate:"required"`
	Size int64  `json:"size_bytes" validate:"min=0"`
}

// CreateSessionResponse is returned when a session is created.
type CreateSessionResponse struct {
	ID            uuid.UUID `json:"id"`
	Authenticated bool      `json:"authenticated"`
}

// UpdateDraftRequest changes editable article fields. Omitted fields are left alone.
type UpdateDraftRequest struct {
	Content         *string     `json:"content,omitempty"`
	ArticleType     *string     `json:"article_type,omitempty" validate:"omitempty,max=64"`
	Title           *string     `json:"title,omitempty" validate:"omitempty,max=300"`
	SuggestedTitles []string    `json:"suggested_titles,omitempty" validate:"omitempty,max=20,dive,max=300"`
	SelectedImage   *FileHandle `json:"selected_image,omitempty"`
	ClearImage      bool        `json:"clear_image,omitempty"`
}

// AddFilesRequest appends file handles to the draft.
type AddFilesRequest struct {
	Files []FileHandle `json:"files" validate:"required,min=1,dive"`
}

// SelectTitleRequest chooses one of the suggested titles.
type SelectTitleRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
}

// JumpRequest moves the workflow to a step without validation.
type JumpRequest struct {
	Step string `json:"step" validate:"required"`
}

// ProcessingUpdateRequest reports processing progress for the session.
type ProcessingUpdateRequest struct {
	Stage    string `json:"stage" validate:"required"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
}

// IngestRequest asks for the latest news of a source. A known source can be named by ID
// alone; otherwise URL, category and frequency describe it inline.
type IngestRequest struct {
	SourceID  string `json:"source_id" validate:"required,max=128"`
	Name      string `json:"name,omitempty"`
	URL       string `json:"url,omitempty" validate:"omitempty,url"`
	Category  string `json:"category,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// Inline reports whether the request describes the source itself.
func (r *IngestRequest) Inline() bool {
	return r.URL != ""
}

// GateResponse reports whether a gated command ran or is waiting for authentication.
type GateResponse struct {
	Executed     bool `json:"executed"`
	AuthRequired bool `json:"auth_required"`
}

// AdvanceResponse is the outcome of an advance request.
type AdvanceResponse struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message,omitempty"`
	Step    string `json:"step"`
	Label   string `json:"label"`
	Index   int    `json:"index"`
}

// RetreatResponse is the outcome of a retreat request.
type RetreatResponse struct {
	Moved bool   `json:"moved"`
	Step  string `json:"step"`
	Label string `json:"label"`
	Index int    `json:"index"`
}

// DraftResponse is a persisted draft with its workflow state inlined.
type DraftResponse struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	Step      string          `json:"step"`
	Status    string          `json:"status"`
	State     json.RawMessage `json:"state,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TokenResponse carries a signed actor token.
type TokenResponse struct {
	Token string `json:"token"`
}

// Validate validates the UpdateDraftRequest using the validator.
func (r *UpdateDraftRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the AddFilesRequest using the validator.
func (r *AddFilesRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the SelectTitleRequest using the validator.
func (r *SelectTitleRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the JumpRequest using the validator.
func (r *JumpRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the ProcessingUpdateRequest using the validator.
func (r *ProcessingUpdateRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the IngestRequest using the validator.
func (r *IngestRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
