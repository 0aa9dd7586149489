// Package cron schedules the embedding backfill.
package cron

import (
	"context"
	"strings"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/hpungsan/jot/internal/logger"
)

// Off disables the schedule.
const Off = "off"

// Backfiller persists missing embeddings and rebuilds the match cache.
type Backfiller interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs a Backfiller on a cron spec. A nil Scheduler is a disabled
// schedule; Start and Stop are no-ops on it.
type Scheduler struct {
	cron    *rcron.Cron
	job     Backfiller
	log     *logger.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// New parses spec ("@every 10m", "0 3 * * *", ...). An empty spec or "off"
// returns a nil Scheduler and no error.
func New(spec string, job Backfiller, timeout time.Duration, log *logger.Logger) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, Off) {
		return nil, nil
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "cron")

	cl := cronLogger{log: log}
	c := rcron.New(
		rcron.WithLogger(cl),
		rcron.WithChain(rcron.Recover(cl), rcron.SkipIfStillRunning(cl)),
	)
	s := &Scheduler{cron: c, job: job, log: log, timeout: timeout}
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running the job in the background. ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.log.Info("backfill scheduled", "next", s.cron.Entries()[0].Next)
}

// Stop halts the schedule and waits for a running job to return.
func (s *Scheduler) Stop() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run() {
	if err := RunOnce(s.ctx, s.job, s.timeout, s.log); err != nil {
		s.log.Warn("scheduled backfill failed", "error", err)
	}
}

// RunOnce runs one backfill pass, bounded by timeout when it is positive.
func RunOnce(ctx context.Context, job Backfiller, timeout time.Duration, log *logger.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	if err := job.Refresh(ctx); err != nil {
		return err
	}
	if log != nil {
		log.Info("backfill complete", "duration", time.Since(start).String())
	}
	return nil
}

// cronLogger adapts the zap logger to cron's logging interface.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
