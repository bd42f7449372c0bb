// Package session binds one authoring session's processing tracker, workflow machine
// and authentication gate, and streams what happens to subscribers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/authgate"
	"github.com/jonathan/newsroom/internal/db"
	"github.com/jonathan/newsroom/internal/ingestion"
	"github.com/jonathan/newsroom/internal/processing"
	"github.com/jonathan/newsroom/internal/workflow"
)

// Session errors
var (
	ErrClosed             = errors.New("session closed")
	ErrIngestionDisabled  = errors.New("news ingestion is not configured")
	ErrIngestionRunning   = errors.New("an ingestion is already running in this session")
	ErrDraftNotFound      = errors.New("draft not found")
	ErrDraftsDisabled     = errors.New("draft persistence is not configured")
	ErrNotAuthenticated   = errors.New("authentication required")
	ErrNothingToCancel    = errors.New("no ingestion is running")
	ErrActorConflict      = errors.New("session is authenticated as another actor; log out first")
	errUnknownCommandKind = errors.New("unknown command kind")
)

// TimeoutDetail is the error detail set by the processing watchdog.
const TimeoutDetail = "processing timed out"

// publishTimeout bounds draft persistence when publishing.
const publishTimeout = 15 * time.Second

// Parameter keys of a fetch_latest command
const (
	ParamSourceID  = "source_id"
	ParamName      = "name"
	ParamURL       = "url"
	ParamCategory  = "category"
	ParamFrequency = "frequency"
)

// Ingester runs one ingestion for a source. *ingestion.Service satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, actor uuid.UUID, source ingestion.NewsSource, progress ingestion.ProgressReporter, notifier ingestion.Notifier) (*ingestion.Result, error)
}

var _ Ingester = (*ingestion.Service)(nil)

// Config holds the collaborators shared by every session.
type Config struct {
	Drafts   DraftStore
	Ingester Ingester
	// ProcessingTimeout moves an active stage that receives no update for this long to error.
	// Zero disables the watchdog.
	ProcessingTimeout time.Duration
	// Validator replaces the default transition rules when set.
	Validator *workflow.Validator
	Logger    *slog.Logger
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID            uuid.UUID         `json:"id"`
	State         workflow.State    `json:"state"`
	Processing    processing.Status `json:"processing"`
	Authenticated bool              `json:"authenticated"`
	AuthPrompt    bool              `json:"auth_prompt"`
	Pending       *authgate.Command `json:"pending,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastActive    time.Time         `json:"last_active"`
}

// DraftUpdate changes editable article fields. Nil fields are left alone.
type DraftUpdate struct {
	Content         *string
	ArticleType     *string
	Title           *string
	SuggestedTitles []string
	SelectedImage   *workflow.Asset
	ClearImage      bool
}

// Session is one authoring session. Every exported method is serialized by the
// session mutex. Commands run by the gate execute with that mutex held.
type Session struct {
	ID uuid.UUID

	mu      sync.Mutex
	tracker *processing.Tracker
	machine *workflow.Machine
	signal  *authgate.Signal
	gate    *authgate.Gate
	bus     *Bus

	drafts   DraftStore
	ingester Ingester
	logger   *slog.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	ingestCancel context.CancelFunc
	wg           sync.WaitGroup

	watchdogTimeout time.Duration
	watchdog        *time.Timer
	watchdogGen     int

	createdAt  time.Time
	lastActive time.Time
	closed     bool
}

// New creates a session at the upload step with no authenticated actor.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	logger = logger.With("session", id)

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	s := &Session{
		ID:              id,
		tracker:         processing.NewTracker(logger),
		signal:          authgate.NewSignal(),
		bus:             NewBus(),
		drafts:          cfg.Drafts,
		ingester:        cfg.Ingester,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		watchdogTimeout: cfg.ProcessingTimeout,
		createdAt:       now,
		lastActive:      now,
	}

	machineOpts := []workflow.Option{workflow.WithLogger(logger)}
	if cfg.Validator != nil {
		machineOpts = append(machineOpts, workflow.WithValidator(cfg.Validator))
	}
	s.machine = workflow.NewMachine(machineOpts...)
	s.machine.Observe(s.tracker)
	s.tracker.Subscribe(s.onStatus)

	s.gate = authgate.New(s.signal, authgate.ExecutorFunc(s.execute),
		authgate.WithLogger(logger),
		authgate.WithErrorHandler(s.onCommandError),
		authgate.WithPromptListener(s.onPrompt),
	)
	return s
}

// lock acquires the session mutex and fails on a closed session.
func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.lastActive = time.Now().UTC()
	return nil
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() (Snapshot, error) {
	if err := s.lock(); err != nil {
		return Snapshot{}, err
	}
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.ID,
		State:         s.machine.State(),
		Processing:    s.tracker.Status(),
		Authenticated: s.signal.IsAuthenticated(),
		AuthPrompt:    s.gate.PromptVisible(),
		CreatedAt:     s.createdAt,
		LastActive:    s.lastActive,
	}
	if cmd, ok := s.gate.Pending(); ok {
		snap.Pending = &cmd
	}
	return snap
}

// LastActive returns when the session last served a call.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Subscribe streams session events until the returned function is called or the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.bus.Subscribe()
}

// UpdateDraft applies editable field changes.
func (s *Session) UpdateDraft(u DraftUpdate) (workflow.State, error) {
	if err := s.lock(); err != nil {
		return workflow.State{}, err
	}
	defer s.mu.Unlock()

	if u.Content != nil {
		s.machine.SetContent(*u.Content)
	}
	if u.ArticleType != nil {
		s.machine.SetArticleType(*u.ArticleType)
	}
	if u.SuggestedTitles != nil {
		s.machine.SetSuggestedTitles(u.SuggestedTitles)
	}
	if u.Title != nil {
		s.machine.SetTitle(*u.Title)
	}
	switch {
	case u.ClearImage:
		s.machine.SetSelectedImage(nil)
	case u.SelectedImage != nil:
		s.machine.SetSelectedImage(*u.SelectedImage)
	}
	return s.machine.State(), nil
}

// AddFiles attaches uploaded file handles.
func (s *Session) AddFiles(files ...workflow.Asset) (workflow.State, error) {
	if err := s.lock(); err != nil {
		return workflow.State{}, err
	}
	defer s.mu.Unlock()

	handles := make([]workflow.Handle, len(files))
	for i, f := range files {
		handles[i] = f
	}
	s.machine.AddFiles(handles...)
	return s.machine.State(), nil
}

// RemoveFile detaches a file and reports whether it was attached.
func (s *Session) RemoveFile(id string) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.machine.RemoveFile(id), nil
}

// SelectTitle chooses a suggested title by index.
func (s *Session) SelectTitle(index int) (workflow.State, error) {
	if err := s.lock(); err != nil {
		return workflow.State{}, err
	}
	defer s.mu.Unlock()
	if err := s.machine.SelectSuggestedTitle(index); err != nil {
		return workflow.State{}, err
	}
	return s.machine.State(), nil
}

// Advance moves to the next step when the transition is valid.
func (s *Session) Advance() (workflow.Result, workflow.State, error) {
	if err := s.lock(); err != nil {
		return workflow.Result{}, workflow.State{}, err
	}
	defer s.mu.Unlock()

	res := s.machine.Advance()
	if res.IsValid {
		s.publishStep()
	}
	return res, s.machine.State(), nil
}

// Retreat moves one step back. moved is false at the first step.
func (s *Session) Retreat() (moved bool, state workflow.State, err error) {
	if err := s.lock(); err != nil {
		return false, workflow.State{}, err
	}
	defer s.mu.Unlock()

	moved = s.machine.Retreat()
	if moved {
		s.publishStep()
	}
	return moved, s.machine.State(), nil
}

// JumpTo sets the step directly, bypassing validation.
func (s *Session) JumpTo(step workflow.Step) (workflow.State, error) {
	if err := s.lock(); err != nil {
		return workflow.State{}, err
	}
	defer s.mu.Unlock()

	if err := s.machine.JumpTo(step); err != nil {
		return workflow.State{}, err
	}
	s.publishStep()
	return s.machine.State(), nil
}

// UpdateProgress pushes a processing status. It satisfies ingestion.ProgressReporter.
// On a closed session the update is dropped and the last status returned.
func (s *Session) UpdateProgress(stage processing.Stage, progress int, message string, errDetail ...string) processing.Status {
	if err := s.lock(); err != nil {
		return s.tracker.Status()
	}
	defer s.mu.Unlock()
	return s.tracker.UpdateProgress(stage, progress, message, errDetail...)
}

// Authenticate sets the actor. A deferred command runs before Authenticate returns.
// Switching to a different actor requires a Logout first.
func (s *Session) Authenticate(actor uuid.UUID) error {
	if actor == uuid.Nil {
		return ErrNotAuthenticated
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if current := s.signal.Current(); current != uuid.Nil && current != actor {
		return ErrActorConflict
	}
	s.logger.Info("session authenticated", "actor", actor)
	s.signal.Set(actor)
	return nil
}

// Logout clears the actor.
func (s *Session) Logout() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.signal.Clear()
	return nil
}

// Actor returns the authenticated actor or uuid.Nil.
func (s *Session) Actor() uuid.UUID {
	return s.signal.Current()
}

// Publish persists the article as published, or defers until authentication.
func (s *Session) Publish() (executed bool, err error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.gate.Require(authgate.NewCommand(authgate.KindPublishArticle, nil))
}

// FetchLatest starts ingesting a news source, or defers until authentication.
func (s *Session) FetchLatest(source ingestion.NewsSource) (executed bool, err error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.gate.Require(fetchCommand(source))
}

// DismissPrompt hides the authentication prompt and keeps the pending command.
func (s *Session) DismissPrompt() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.gate.DismissPrompt()
	return nil
}

// CancelProcessing cancels the running ingestion.
func (s *Session) CancelProcessing() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.ingestCancel == nil {
		return ErrNothingToCancel
	}
	s.ingestCancel()
	return nil
}

// Resume restores a persisted draft of the authenticated actor.
func (s *Session) Resume(ctx context.Context, draftID uuid.UUID) (workflow.State, error) {
	if err := s.lock(); err != nil {
		return workflow.State{}, err
	}
	defer s.mu.Unlock()

	actor := s.signal.Current()
	if actor == uuid.Nil {
		return workflow.State{}, ErrNotAuthenticated
	}
	if s.drafts == nil {
		return workflow.State{}, ErrDraftsDisabled
	}

	d, err := s.drafts.GetDraft(ctx, actor, draftID)
	if err != nil {
		return workflow.State{}, fmt.Errorf("failed to load draft: %w", err)
	}
	if d == nil {
		return workflow.State{}, ErrDraftNotFound
	}

	var st workflow.State
	if err := json.Unmarshal(d.State, &st); err != nil {
		return workflow.State{}, fmt.Errorf("failed to decode draft state: %w", err)
	}
	if st.ArticleID == nil {
		id := d.ID
		st.ArticleID = &id
	}
	if err := s.machine.Restore(st); err != nil {
		return workflow.State{}, err
	}
	// Processing fields belong to this session, not the saved one.
	s.machine.SyncProcessing(s.tracker.Status())

	s.logger.Info("draft resumed", "draft", d.ID, "step", st.Step)
	s.publishStep()
	return s.machine.State(), nil
}

// Close cancels running work, detaches listeners and closes subscriber streams.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.stopWatchdogLocked()
	s.gate.Close()
	s.mu.Unlock()

	s.wg.Wait()
	s.bus.Close()
	s.logger.Info("session closed")
}

// execute runs a gated command. The session mutex is held.
func (s *Session) execute(cmd authgate.Command) error {
	switch cmd.Kind {
	case authgate.KindPublishArticle:
		return s.publishLocked()
	case authgate.KindFetchLatest:
		return s.fetchLatestLocked(sourceFromCommand(cmd))
	default:
		return fmt.Errorf("%w: %s", errUnknownCommandKind, cmd.Kind)
	}
}

func (s *Session) publishLocked() error {
	if s.drafts == nil {
		return ErrDraftsDisabled
	}
	actor := s.signal.Current()
	st := s.machine.State()

	ctx, cancel := context.WithTimeout(s.ctx, publishTimeout)
	defer cancel()

	d, err := s.drafts.SaveDraft(ctx, actor, db.DraftInput{
		ID:     st.ArticleID,
		Title:  st.Title,
		Step:   string(st.Step),
		Status: db.DraftStatusPublished,
		State:  st,
	})
	if err != nil {
		return fmt.Errorf("failed to publish article: %w", err)
	}

	s.machine.SetArticleID(d.ID)
	s.logger.Info("article published", "article", d.ID, "actor", actor)
	s.bus.Publish(EventTypePublished, PublishedEvent{ArticleID: d.ID, Title: d.Title})
	s.notify(LevelSuccess, "Artigo publicado com sucesso.")
	return nil
}

func (s *Session) fetchLatestLocked(source ingestion.NewsSource) error {
	if s.ingester == nil {
		return ErrIngestionDisabled
	}
	if s.ingestCancel != nil {
		return ErrIngestionRunning
	}

	actor := s.signal.Current()
	ctx, cancel := context.WithCancel(s.ctx)
	s.ingestCancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		if _, err := s.ingester.Ingest(ctx, actor, source, s, s); err != nil {
			s.logger.Warn("ingestion ended with error", "source", source.ID, "error", err)
		}

		s.mu.Lock()
		s.ingestCancel = nil
		s.mu.Unlock()
	}()
	return nil
}

// NotifySuccess implements ingestion.Notifier.
func (s *Session) NotifySuccess(message string) { s.notify(LevelSuccess, message) }

// NotifyError implements ingestion.Notifier.
func (s *Session) NotifyError(message string) { s.notify(LevelError, message) }

// NotifyCancelled implements ingestion.Notifier.
func (s *Session) NotifyCancelled() { s.notify(LevelCancelled, "Importação cancelada.") }

func (s *Session) notify(level, message string) {
	s.bus.Publish(EventTypeNotification, NotificationEvent{Level: level, Message: message})
}

func (s *Session) onCommandError(cmd authgate.Command, err error) {
	s.notify(LevelError, err.Error())
}

func (s *Session) onPrompt(visible bool, pending *authgate.Command) {
	s.bus.Publish(EventTypeAuthPrompt, PromptEvent{Visible: visible, Pending: pending})
}

// onStatus runs under the session mutex for every tracker update.
func (s *Session) onStatus(status processing.Status) {
	s.bus.Publish(EventTypeStatus, status)
	if status.Stage.IsActive() {
		s.armWatchdogLocked()
	} else {
		s.stopWatchdogLocked()
	}
}

func (s *Session) publishStep() {
	step := s.machine.Step()
	s.bus.Publish(EventTypeStep, StepEvent{
		Step:  string(step),
		Label: workflow.StepRegistry[step].Label,
		Index: step.Index(),
	})
}

func (s *Session) armWatchdogLocked() {
	if s.watchdogTimeout <= 0 {
		return
	}
	s.stopWatchdogLocked()
	gen := s.watchdogGen
	s.watchdog = time.AfterFunc(s.watchdogTimeout, func() { s.expire(gen) })
}

func (s *Session) stopWatchdogLocked() {
	s.watchdogGen++
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
}

func (s *Session) expire(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.watchdogGen {
		return
	}
	status := s.tracker.Status()
	if !status.Stage.IsActive() {
		return
	}
	s.logger.Warn("processing watchdog fired", "stage", status.Stage, "timeout", s.watchdogTimeout)
	s.tracker.UpdateProgress(processing.StageError, status.Progress, "Tempo de processamento esgotado", TimeoutDetail)
	s.notify(LevelError, TimeoutDetail)
}

func fetchCommand(source ingestion.NewsSource) authgate.Command {
	return authgate.NewCommand(authgate.KindFetchLatest, map[string]string{
		ParamSourceID:  source.ID,
		ParamName:      source.Name,
		ParamURL:       source.URL,
		ParamCategory:  source.Category,
		ParamFrequency: source.Frequency,
	})
}

func sourceFromCommand(cmd authgate.Command) ingestion.NewsSource {
	return ingestion.NewsSource{
		ID:        cmd.Param(ParamSourceID),
		Name:      cmd.Param(ParamName),
		URL:       cmd.Param(ParamURL),
		Category:  cmd.Param(ParamCategory),
		Frequency: cmd.Param(ParamFrequency),
	}
}
