package workflow

import (
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/processing"
)

// Handle is an opaque uploaded file or image. The workflow never looks inside it.
type Handle interface {
	HandleID() string
	DisplayName() string
	SizeBytes() int64
}

// Asset is the stored form of a Handle.
type Asset struct {
	ID   string `json:"id"`
	Name string `json:"display_name"`
	Size int64  `json:"size_bytes"`
}

// HandleID implements Handle.
func (a Asset) HandleID() string { return a.ID }

// DisplayName implements Handle.
func (a Asset) DisplayName() string { return a.Name }

// SizeBytes implements Handle.
func (a Asset) SizeBytes() int64 { return a.Size }

// AssetFrom copies any Handle into an Asset.
func AssetFrom(h Handle) Asset {
	if a, ok := h.(Asset); ok {
		return a
	}
	return Asset{ID: h.HandleID(), Name: h.DisplayName(), Size: h.SizeBytes()}
}

// State is the article under construction plus workflow control data.
type State struct {
	Step               Step             `json:"step"`
	Content            string           `json:"content"`
	Files              []Asset          `json:"files"`
	ArticleType        string           `json:"article_type,omitempty"`
	Title              string           `json:"title"`
	SuggestedTitles    []string         `json:"suggested_titles"`
	IsProcessing       bool             `json:"is_processing"`
	ProcessingStage    processing.Stage `json:"processing_stage"`
	ProcessingProgress int              `json:"processing_progress"`
	ProcessingMessage  string           `json:"processing_message"`
	SelectedImage      *Asset           `json:"selected_image,omitempty"`
	ArticleID          *uuid.UUID       `json:"article_id"`
	AgentConfirmed     bool             `json:"agent_confirmed"`
}

// NewState returns the state of a fresh authoring session.
func NewState() State {
	return State{
		Step:            StepUpload,
		Files:           []Asset{},
		SuggestedTitles: []string{},
		ProcessingStage: processing.StageIdle,
	}
}

// HasContent reports whether any file or non-blank text has been provided.
func (s State) HasContent() bool {
	return len(s.Files) > 0 || strings.TrimSpace(s.Content) != ""
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Files = slices.Clone(s.Files)
	if out.Files == nil {
		out.Files = []Asset{}
	}
	out.SuggestedTitles = slices.Clone(s.SuggestedTitles)
	if out.SuggestedTitles == nil {
		out.SuggestedTitles = []string{}
	}
	if s.SelectedImage != nil {
		img := *s.SelectedImage
		out.SelectedImage = &img
	}
	if s.ArticleID != nil {
		id := *s.ArticleID
		out.ArticleID = &id
	}
	return out
}
