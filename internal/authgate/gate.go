package authgate

import (
	"log/slog"
	"sync"
)

// Executor runs a privileged command.
type Executor interface {
	Execute(cmd Command) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(cmd Command) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(cmd Command) error {
	return f(cmd)
}

// Option configures a Gate.
type Option func(*Gate)

// WithErrorHandler receives errors from commands run after authentication.
func WithErrorHandler(fn func(Command, error)) Option {
	return func(g *Gate) {
		g.onError = fn
	}
}

// WithPromptListener is told whenever the authentication prompt is shown or hidden.
func WithPromptListener(fn func(visible bool, pending *Command)) Option {
	return func(g *Gate) {
		g.onPrompt = fn
	}
}

// WithLogger sets the gate logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// Gate holds at most one pending command until the signal reports an actor.
// A newer pending command replaces an older one.
type Gate struct {
	mu            sync.Mutex
	signal        *Signal
	exec          Executor
	pending       *Command
	promptVisible bool
	unsubscribe   func()

	onError  func(Command, error)
	onPrompt func(bool, *Command)
	logger   *slog.Logger
}

// New creates a gate listening on signal.
func New(signal *Signal, exec Executor, opts ...Option) *Gate {
	g := &Gate{
		signal: signal,
		exec:   exec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.unsubscribe = signal.Subscribe(g.onChange)
	return g
}

// Require runs cmd now if an actor is authenticated. Otherwise cmd becomes the
// pending command, the prompt is shown and executed is false.
func (g *Gate) Require(cmd Command) (executed bool, err error) {
	if g.signal.IsAuthenticated() {
		return true, g.exec.Execute(cmd)
	}

	g.mu.Lock()
	if g.pending != nil {
		g.logger.Info("pending command replaced", "discarded", g.pending.String(), "pending", cmd.String())
	}
	stored := cmd
	g.pending = &stored
	g.promptVisible = true
	g.mu.Unlock()

	g.logger.Info("command deferred until authentication", "command", cmd.String())
	g.notifyPrompt(true, &stored)
	return false, nil
}

// Pending returns the stored command, if any.
func (g *Gate) Pending() (Command, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return Command{}, false
	}
	return *g.pending, true
}

// PromptVisible reports whether the authentication prompt should be shown.
func (g *Gate) PromptVisible() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.promptVisible
}

// DismissPrompt hides the prompt. The pending command is kept.
func (g *Gate) DismissPrompt() {
	g.mu.Lock()
	if !g.promptVisible {
		g.mu.Unlock()
		return
	}
	g.promptVisible = false
	var pending *Command
	if g.pending != nil {
		cmd := *g.pending
		pending = &cmd
	}
	g.mu.Unlock()
	g.notifyPrompt(false, pending)
}

// Close stops listening to the signal.
func (g *Gate) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
}

func (g *Gate) onChange(change Change) {
	if !change.Authenticated() {
		return
	}

	// The slot is emptied before running so a re-entrant Require cannot see it.
	g.mu.Lock()
	cmd := g.pending
	g.pending = nil
	wasVisible := g.promptVisible
	g.promptVisible = false
	g.mu.Unlock()

	if wasVisible {
		g.notifyPrompt(false, nil)
	}
	if cmd == nil {
		return
	}

	g.logger.Info("running deferred command", "command", cmd.String(), "actor", change.Current)
	if err := g.exec.Execute(*cmd); err != nil {
		g.logger.Error("deferred command failed", "command", cmd.String(), "error", err)
		if g.onError != nil {
			g.onError(*cmd, err)
		}
	}
}

func (g *Gate) notifyPrompt(visible bool, pending *Command) {
	if g.onPrompt != nil {
		g.onPrompt(visible, pending)
	}
}
