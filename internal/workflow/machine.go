package workflow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/processing"
)

// ErrNoSuchTitle is returned when a suggested title index is out of range.
var ErrNoSuchTitle = errors.New("suggested title index out of range")

// EnterHook runs after a successful Advance, with the step just entered.
// It may seed or clear step-specific fields of the state.
type EnterHook func(step Step, state *State)

// Option configures a Machine.
type Option func(*Machine)

// WithValidator replaces the default validator.
func WithValidator(v *Validator) Option {
	return func(m *Machine) {
		if v != nil {
			m.validator = v
		}
	}
}

// WithEnterHook registers a hook called after each successful Advance.
func WithEnterHook(h EnterHook) Option {
	return func(m *Machine) {
		m.hooks = append(m.hooks, h)
	}
}

// WithLogger sets the machine logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// Machine owns the step sequence and the article under construction.
// It is not safe for concurrent use; one authoring session owns it.
type Machine struct {
	state     State
	validator *Validator
	hooks     []EnterHook
	logger    *slog.Logger
}

// NewMachine returns a machine at the upload step.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		state:     NewState(),
		validator: defaultValidator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.state.Clone()
}

// Step returns the current step.
func (m *Machine) Step() Step {
	return m.state.Step
}

// Advance moves one step forward if the validator allows it.
// On failure the state is untouched and the result carries the message to show.
func (m *Machine) Advance() Result {
	next, ok := m.state.Step.Next()
	if !ok {
		return Invalid(MsgLastStep)
	}

	res := m.validator.Validate(m.state.Step, next, m.state.Clone())
	if !res.IsValid {
		m.logger.Debug("workflow advance blocked", "from", m.state.Step, "to", next, "reason", res.Message)
		return res
	}

	prev := m.state.Step
	m.state.Step = next
	for _, hook := range m.hooks {
		hook(next, &m.state)
	}
	// Hooks may not move the step.
	m.state.Step = next

	m.logger.Info("workflow advanced", "from", prev, "to", next)
	return Valid()
}

// Retreat moves one step back without validation and keeps every field.
// At the first step it does nothing and reports false.
func (m *Machine) Retreat() bool {
	prev, ok := m.state.Step.Prev()
	if !ok {
		return false
	}
	m.logger.Info("workflow retreated", "from", m.state.Step, "to", prev)
	m.state.Step = prev
	return true
}

// JumpTo sets the step directly. It is the explicit override used when
// resuming a draft and bypasses validation.
func (m *Machine) JumpTo(step Step) error {
	if !step.Valid() {
		return &UnknownStepError{Step: string(step)}
	}
	m.logger.Info("workflow jumped", "from", m.state.Step, "to", step)
	m.state.Step = step
	return nil
}

// ReceiveProcessingUpdate mirrors a processing status into the workflow state.
func (m *Machine) ReceiveProcessingUpdate(status processing.Status) {
	m.state.ProcessingStage = status.Stage
	m.state.ProcessingProgress = status.Progress
	m.state.ProcessingMessage = status.Message
	m.state.IsProcessing = status.Stage.IsActive()
	m.state.AgentConfirmed = status.Stage == processing.StageCompleted
}

// SyncProcessing mirrors status after a Restore. An idle tracker has not judged the
// restored content yet, so AgentConfirmed keeps its restored value in that case.
func (m *Machine) SyncProcessing(status processing.Status) {
	confirmed := m.state.AgentConfirmed
	m.ReceiveProcessingUpdate(status)
	if status.Stage == processing.StageIdle {
		m.state.AgentConfirmed = confirmed
	}
}

// Observe subscribes the machine to a tracker and returns the unsubscribe function.
func (m *Machine) Observe(t *processing.Tracker) func() {
	m.ReceiveProcessingUpdate(t.Status())
	return t.Subscribe(m.ReceiveProcessingUpdate)
}

// Restore replaces the whole state, typically with a persisted draft.
func (m *Machine) Restore(s State) error {
	if !s.Step.Valid() {
		return &UnknownStepError{Step: string(s.Step)}
	}
	m.state = s.Clone()
	return nil
}

// SetContent replaces the free text content.
func (m *Machine) SetContent(content string) {
	m.state.Content = content
}

// AddFiles appends uploaded file handles.
func (m *Machine) AddFiles(files ...Handle) {
	for _, f := range files {
		m.state.Files = append(m.state.Files, AssetFrom(f))
	}
}

// RemoveFile drops the file with the given id and reports whether it was present.
func (m *Machine) RemoveFile(id string) bool {
	for i, f := range m.state.Files {
		if f.ID == id {
			m.state.Files = append(m.state.Files[:i], m.state.Files[i+1:]...)
			return true
		}
	}
	return false
}

// SetArticleType sets the article classification.
func (m *Machine) SetArticleType(articleType string) {
	m.state.ArticleType = articleType
}

// SetTitle sets the current title.
func (m *Machine) SetTitle(title string) {
	m.state.Title = title
}

// SetSuggestedTitles replaces the candidate titles.
func (m *Machine) SetSuggestedTitles(titles []string) {
	m.state.SuggestedTitles = append([]string{}, titles...)
}

// SelectSuggestedTitle makes the candidate at index the current title.
func (m *Machine) SelectSuggestedTitle(index int) error {
	if index < 0 || index >= len(m.state.SuggestedTitles) {
		return fmt.Errorf("%w: %d", ErrNoSuchTitle, index)
	}
	m.state.Title = m.state.SuggestedTitles[index]
	return nil
}

// SetSelectedImage sets the chosen image. A nil handle clears it.
func (m *Machine) SetSelectedImage(img Handle) {
	if img == nil {
		m.state.SelectedImage = nil
		return
	}
	a := AssetFrom(img)
	m.state.SelectedImage = &a
}

// SetArticleID records the identity assigned by persistence.
func (m *Machine) SetArticleID(id uuid.UUID) {
	m.state.ArticleID = &id
}
