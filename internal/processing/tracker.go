package processing

import (
	"log/slog"
	"sync"
)

// Observer receives every status the tracker applies, in order.
type Observer func(Status)

// Tracker holds the current processing status of one ingestion operation.
// UpdateProgress is the only mutation entry point.
type Tracker struct {
	mu        sync.Mutex
	status    Status
	observers []observerEntry
	nextID    int
	logger    *slog.Logger
}

type observerEntry struct {
	id int
	fn Observer
}

// NewTracker creates an idle tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		status: InitialStatus(),
		logger: logger,
	}
}

// Status returns the current status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Subscribe registers an observer and returns a function that removes it.
func (t *Tracker) Subscribe(fn Observer) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.observers = append(t.observers, observerEntry{id: id, fn: fn})

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, entry := range t.observers {
			if entry.id == id {
				t.observers = append(t.observers[:i], t.observers[i+1:]...)
				return
			}
		}
	}
}

// UpdateProgress replaces the whole status and notifies observers before returning.
// Callers sequence the stages; reaching StageError does not block later updates.
// Unknown stages are ignored and the current status is returned unchanged.
func (t *Tracker) UpdateProgress(stage Stage, progress int, message string, errDetail ...string) Status {
	if !stage.Valid() {
		t.logger.Warn("ignoring unknown processing stage", "stage", stage)
		return t.Status()
	}

	t.mu.Lock()
	next := Status{
		Stage:    stage,
		Progress: clampProgress(progress),
		Message:  message,
	}

	if stage == StageError {
		next.Error = DefaultErrorDetail
		if len(errDetail) > 0 && errDetail[0] != "" {
			next.Error = errDetail[0]
		}
	}

	// Progress never goes backwards inside one operation.
	if stage != StageIdle && !t.status.Stage.IsTerminal() && next.Progress < t.status.Progress {
		next.Progress = t.status.Progress
	}

	t.status = next
	observers := make([]Observer, len(t.observers))
	for i, entry := range t.observers {
		observers[i] = entry.fn
	}
	t.mu.Unlock()

	t.logger.Debug("processing status updated",
		"stage", next.Stage, "progress", next.Progress, "message", next.Message, "error", next.Error)

	for _, fn := range observers {
		fn(next)
	}
	return next
}

// Apply is UpdateProgress taking a whole Status value.
func (t *Tracker) Apply(s Status) Status {
	return t.UpdateProgress(s.Stage, s.Progress, s.Message, s.Error)
}

// Reset returns the tracker to the idle state.
func (t *Tracker) Reset() Status {
	return t.UpdateProgress(StageIdle, 0, "")
}
