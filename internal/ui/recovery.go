package ui

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// ProgramFactory builds a fresh model and its program options for each run.
type ProgramFactory func() (tea.Model, []tea.ProgramOption)

// Runner runs the dashboard program and restarts it after a panic.
type Runner struct {
	logger       *zap.Logger
	create       ProgramFactory
	restartDelay time.Duration
	maxRestarts  int

	mu       sync.Mutex
	restarts int
}

func NewRunner(logger *zap.Logger, create ProgramFactory) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		logger:       logger.Named("ui"),
		create:       create,
		restartDelay: 2 * time.Second,
		maxRestarts:  5,
	}
}

// Run blocks until the user quits, ctx is cancelled or the program crashed
// more than maxRestarts times.
func (r *Runner) Run(ctx context.Context) error {
	for {
		err := r.runOnce(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}

		r.mu.Lock()
		r.restarts++
		restarts := r.restarts
		r.mu.Unlock()

		if restarts > r.maxRestarts {
			return fmt.Errorf("UI crashed too many times (%d), giving up: %w", r.maxRestarts, err)
		}
		r.logger.Error("UI crashed, restarting",
			zap.Error(err),
			zap.Int("restart_count", restarts),
			zap.Duration("delay", r.restartDelay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.restartDelay):
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("UI panic: %v", rec)
			r.logger.Error("UI panic recovered",
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	model, opts := r.create()
	program := tea.NewProgram(model, append(opts, tea.WithContext(ctx))...)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("UI error: %w", err)
	}
	return nil
}

// Restarts returns how many times the program was restarted.
func (r *Runner) Restarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restarts
}
