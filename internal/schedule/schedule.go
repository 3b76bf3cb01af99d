// Package schedule triggers periodic feed builds from a cron expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/paid-chapter-feed/internal/pipeline"
)

// DefaultSpec rebuilds the feed every thirty minutes.
const DefaultSpec = "*/30 * * * *"

// Trigger starts a feed build in the background.
type Trigger interface {
	Start(ctx context.Context) (string, error)
}

// Scheduler fires Trigger on a cron schedule.
type Scheduler struct {
	spec     string
	parser   cron.Parser
	schedule cron.Schedule
	trigger  Trigger
	logger   *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// New validates spec and builds a Scheduler. Five-field expressions and
// descriptors such as @hourly or @every 10m are accepted.
func New(spec string, trigger Trigger, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if trigger == nil {
		return nil, errors.New("schedule trigger is required")
	}
	if spec == "" {
		spec = DefaultSpec
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return &Scheduler{
		spec:     spec,
		parser:   parser,
		schedule: sched,
		trigger:  trigger,
		logger:   logger.Named("schedule"),
	}, nil
}

// Next returns the first fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start begins firing builds until Stop is called. ctx is handed to every
// triggered build.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{s.logger.Sugar()})),
	)
	if _, err := c.AddFunc(s.spec, func() { s.fire(ctx) }); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("feed build schedule started",
		zap.String("schedule", s.spec),
		zap.Time("next_run", s.Next(time.Now().UTC())),
	)
	return nil
}

// Stop halts the schedule. Builds already triggered keep running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("feed build schedule stopped")
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runID, err := s.trigger.Start(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Info("previous feed build still running, skipping tick")
	case err != nil:
		s.logger.Error("scheduled feed build failed to start", zap.Error(err))
	default:
		s.logger.Info("scheduled feed build started", zap.String("run_id", runID))
	}
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
