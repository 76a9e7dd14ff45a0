// Package cron provides a generic cron adapter for scheduled job execution
package cron

import (
	"fmt"
	"sync"
	"time"
)

// Scheduler is the interface that any cron library must implement
// This allows plugging in any cron library (robfig/cron, go-co-op/gocron, etc.)
type Scheduler interface {
	// AddFunc adds a job with cron expression
	AddFunc(spec string, cmd func()) error
	// Start starts the scheduler
	Start()
	// Stop stops the scheduler
	Stop()
}

// ============ Built-in Simple Scheduler ============

// SimpleScheduler is a basic scheduler implementation
// For production, use robfig/cron or go-co-op/gocron
type SimpleScheduler struct {
	jobs    []*simpleJob
	running bool
	stopCh  chan struct{}
	mu      sync.Mutex
	wg      sync.WaitGroup
}

type simpleJob struct {
	spec     string
	cmd      func()
	interval time.Duration
}

// NewSimpleScheduler creates a basic scheduler
// Note: This only supports simple intervals like "@every 5m", not full cron expressions
func NewSimpleScheduler() *SimpleScheduler {
	return &SimpleScheduler{
		jobs:   make([]*simpleJob, 0),
		stopCh: make(chan struct{}),
	}
}

// AddFunc adds a job (supports @every syntax only for simple scheduler)
func (s *SimpleScheduler) AddFunc(spec string, cmd func()) error {
	interval, err := parseSimpleSpec(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, &simpleJob{
		spec:     spec,
		cmd:      cmd,
		interval: interval,
	})
	s.mu.Unlock()
	return nil
}

// Start starts the scheduler
func (s *SimpleScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(job)
	}
}

// Stop stops the scheduler
func (s *SimpleScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *SimpleScheduler) runJob(job *simpleJob) {
	defer s.wg.Done()
	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			job.cmd()
		}
	}
}

// parseSimpleSpec parses simple interval specs like "@every 5m"
func parseSimpleSpec(spec string) (time.Duration, error) {
	if len(spec) > 7 && spec[:7] == "@every " {
		return time.ParseDuration(spec[7:])
	}
	return 0, fmt.Errorf("simple scheduler only supports @every syntax, got: %s", spec)
}

// ============ Wrapper for robfig/cron ============

// RobfigCronWrapper wraps robfig/cron v3 to implement Scheduler interface
// Usage (shim adapts *cron.Cron to RobfigCron, see below):
//
//	import "github.com/robfig/cron/v3"
//	c := cron.New()
//	scheduler := cronAdapter.WrapRobfigCron(shim{c})
type RobfigCronWrapper struct {
	cron RobfigCron
}

// RobfigCron is the method set RobfigCronWrapper drives. robfig/cron v3's
// *cron.Cron does not satisfy it as is (its AddFunc returns a cron.EntryID
// and its Stop returns a context.Context), so it is passed in through a
// small adapter type such as pkg/statsjob's robfigShim.
type RobfigCron interface {
	AddFunc(spec string, cmd func()) (int, error)
	Start()
	Stop()
}

// WrapRobfigCron wraps a robfig/cron instance
func WrapRobfigCron(c RobfigCron) Scheduler {
	return &RobfigCronWrapper{cron: c}
}

func (w *RobfigCronWrapper) AddFunc(spec string, cmd func()) error {
	_, err := w.cron.AddFunc(spec, cmd)
	return err
}

func (w *RobfigCronWrapper) Start() {
	w.cron.Start()
}

func (w *RobfigCronWrapper) Stop() {
	w.cron.Stop()
}
