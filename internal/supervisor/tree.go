// Package supervisor runs the pipeline stages under one suture tree and
// carries the process-wide fatal signal.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thejerf/suture/v4"
)

// TreeConfig holds supervisor tree configuration
type TreeConfig struct {
	// FailureThreshold is the number of failures of restartable services before backoff
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay, in seconds
	FailureDecay float64
	// FailureBackoff is how long to wait once the threshold is exceeded
	FailureBackoff time.Duration
	// ShutdownTimeout bounds how long each service gets to stop
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's defaults
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree supervises the pipeline. Stages added with AddStage are not
// restarted: any error they return is fatal for the whole process.
type Tree struct {
	root *suture.Supervisor

	mu    sync.Mutex
	cause error
}

// New creates a new supervisor tree
func New(name string, config TreeConfig) *Tree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	t := &Tree{}
	t.root = suture.New(name, suture.Spec{
		EventHook:         logEvent,
		FailureThreshold:  config.FailureThreshold,
		FailureDecay:      config.FailureDecay,
		FailureBackoff:    config.FailureBackoff,
		Timeout:           config.ShutdownTimeout,
		PassThroughPanics: true,
	})
	return t
}

// AddService adds a restartable service, such as the metrics server
func (t *Tree) AddService(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// AddStage adds a pipeline stage. A stage returning nil is finished and not
// restarted; a stage returning an error raises the fatal signal.
func (t *Tree) AddStage(name string, run func(ctx context.Context) error) suture.ServiceToken {
	return t.root.Add(&stage{name: name, run: run, tree: t})
}

// Fatal records the first fatal cause and returns the error that tells suture
// to tear the tree down. It is safe to call from any goroutine.
func (t *Tree) Fatal(err error) error {
	t.mu.Lock()
	if t.cause == nil {
		t.cause = err
		log.Error().Err(err).Msg("Fatal error, shutting down pipeline")
	}
	t.mu.Unlock()
	return suture.ErrTerminateSupervisorTree
}

// Cause returns the first fatal cause, if any
func (t *Tree) Cause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cause
}

// Serve runs the tree until the context is canceled or a fatal error is
// raised. It returns the fatal cause, or nil on a clean shutdown.
func (t *Tree) Serve(ctx context.Context) error {
	err := t.root.Serve(ctx)
	if cause := t.Cause(); cause != nil {
		return cause
	}
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, suture.ErrTerminateSupervisorTree) {
		return nil
	}
	return err
}

type stage struct {
	name string
	run  func(ctx context.Context) error
	tree *Tree
}

func (s *stage) Serve(ctx context.Context) error {
	log.Debug().Str("stage", s.name).Msg("Stage started")
	err := s.run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		log.Debug().Str("stage", s.name).Msg("Stage finished")
		return suture.ErrDoNotRestart
	}
	return s.tree.Fatal(fmt.Errorf("%s: %w", s.name, err))
}

func (s *stage) String() string {
	return s.name
}

func logEvent(e suture.Event) {
	switch e.(type) {
	case suture.EventServiceTerminate, suture.EventServicePanic, suture.EventStopTimeout:
		log.Warn().Str("event", e.String()).Msg("Supervisor event")
	default:
		log.Info().Str("event", e.String()).Msg("Supervisor event")
	}
}
