package engine

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/nexuslite/nexuslite/internal/logging"
)

// CheckpointScheduler runs Engine.Checkpoint on a CRON schedule,
// adapted from the storage layer's job scheduler to a single fixed
// duty: periodic checkpointing instead of arbitrary SQL jobs.
type CheckpointScheduler struct {
	engine  *Engine
	outPath string
	logger  *logging.Logger
	cron    *cron.Cron

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// NewCheckpointScheduler builds a scheduler bound to engine that writes
// each scheduled checkpoint's snapshot to outPath. logger may be nil, in
// which case a checkpoint failure falls back to the stdlib logger; when
// set (as cmd/nexuslite does), failures go through logger's app category
// instead. Call Start with a CRON expression (or an "@every ..."
// descriptor) to begin running checkpoints.
func NewCheckpointScheduler(e *Engine, outPath string, logger *logging.Logger) *CheckpointScheduler {
	return &CheckpointScheduler{
		engine:  e,
		outPath: outPath,
		logger:  logger,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start registers cronExpr and begins the scheduler loop. Calling Start
// twice replaces the previous schedule.
func (s *CheckpointScheduler) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.cron.Remove(s.entryID)
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		if err := s.engine.Checkpoint(s.outPath); err != nil {
			if s.logger != nil {
				s.logger.Errorf("scheduled checkpoint failed: %v", err)
			} else {
				log.Printf("scheduled checkpoint failed: %v", err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("engine: invalid checkpoint schedule %q: %w", cronExpr, err)
	}
	s.entryID = id

	if !s.started {
		s.cron.Start()
		s.started = true
	}
	return nil
}

// Stop halts the scheduler, waiting for any in-flight checkpoint to
// finish.
func (s *CheckpointScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.started = false
}
