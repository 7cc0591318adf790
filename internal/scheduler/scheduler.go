// Package scheduler provides cron-based job scheduling for PrintFlow,
// used for recurring maintenance work such as the daily intake digest.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner using standard 5-field expressions
// (minute, hour, day of month, month, day of week).
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a scheduler. Panicking jobs are
// recovered so one bad run does not kill the process.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task under the given cron expression.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	if err != nil {
		slog.Error("Scheduler.AddJob: invalid cron expression", "expr", expr, "error", err)
		return err
	}
	slog.Debug("Scheduler.AddJob: job scheduled", "expr", expr)
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
