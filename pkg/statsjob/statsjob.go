// Package statsjob wires a periodic membership-stats sample into the
// teacher's cron adapter (core/pkg/adapters/cron), scheduled by
// robfig/cron/v3 via the adapter's existing RobfigCronWrapper. Purely an
// operability addition: it samples the Monitor's gauges and logs them,
// touching no membership invariant.
package statsjob

import (
	"fmt"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	cronadapter "github.com/flux-framework/flux-core/core/pkg/adapters/cron"
	"github.com/flux-framework/flux-core/core/pkg/contracts"
	"github.com/flux-framework/flux-core/pkg/membership"
	"github.com/flux-framework/flux-core/pkg/metrics"
)

// Job samples mon's stats on schedule, recording them onto gauges and
// logging them at Info level.
type Job struct {
	scheduler cronadapter.Scheduler
}

// robfigShim adapts *robfigcron.Cron to cronadapter.RobfigCron: robfig's
// AddFunc returns a cron.EntryID and its Stop returns a context.Context.
type robfigShim struct{ *robfigcron.Cron }

func (s robfigShim) AddFunc(spec string, cmd func()) (int, error) {
	id, err := s.Cron.AddFunc(spec, cmd)
	return int(id), err
}

func (s robfigShim) Stop() { s.Cron.Stop() }

// New builds a Job that samples mon every time schedule fires (a standard
// five-field cron expression, or robfig's "@every 1m" shorthand).
func New(schedule string, mon *membership.Monitor, gauges *metrics.Gauges, logger contracts.Logger) (*Job, error) {
	scheduler := cronadapter.WrapRobfigCron(robfigShim{robfigcron.New()})

	err := scheduler.AddFunc(schedule, func() {
		stats := mon.Stats(time.Now())
		if gauges != nil {
			gauges.Sample(stats)
		}
		if logger != nil {
			logger.Info("membership stats",
				"up", stats.Up,
				"torpid", stats.Torpid,
				"lost", stats.Lost,
				"waitup_pending", stats.WaitupPending,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("statsjob: schedule %q: %w", schedule, err)
	}

	return &Job{scheduler: scheduler}, nil
}

// Start begins running the schedule.
func (j *Job) Start() { j.scheduler.Start() }

// Stop halts the schedule; in-flight samples are allowed to finish.
func (j *Job) Stop() { j.scheduler.Stop() }
