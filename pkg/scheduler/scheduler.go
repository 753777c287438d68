// Package scheduler drives the control loop: a single-threaded cooperative
// executor over a priority queue keyed on absolute wake time. At most one
// job is ever in flight, so all position state is mutated between
// suspension points without locking.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/logger"
)

// Standard reschedule delays used by the control loop.
const (
	LiveTickDelay    = 120 * time.Second
	SimSlowTickDelay = time.Second
	SmartSwitchDelay = 5 * time.Second
	TransientDelay   = 300 * time.Second
	RestartDelay     = 30 * time.Second
)

// Job is one unit of scheduled work. A transient error reschedules the same
// job; any other error is fatal unless auto-restart is enabled.
type Job func(ctx context.Context) error

type task struct {
	at   time.Time
	seq  int64
	name string
	run  Job
}

// Less orders tasks by wake time, then submission order.
func (t *task) Less(j core.Item) bool {
	other := j.(*task)
	if !t.at.Equal(other.at) {
		return t.at.Before(other.at)
	}
	return t.seq < other.seq
}

type Scheduler struct {
	log   logger.Logger
	queue *core.PriorityQueue
	seq   atomic.Int64

	autoRestart    bool
	transientDelay time.Duration
	restartDelay   time.Duration
}

type Option func(*Scheduler)

// WithAutoRestart makes job failures drain the queue and re-enter the job
// after a pause instead of stopping the run.
func WithAutoRestart(enabled bool) Option {
	return func(s *Scheduler) { s.autoRestart = enabled }
}

// WithTransientDelay overrides the retry delay for transient failures.
func WithTransientDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.transientDelay = d }
}

// WithRestartDelay overrides the pause before an auto-restart.
func WithRestartDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.restartDelay = d }
}

func New(log logger.Logger, options ...Option) *Scheduler {
	s := &Scheduler{
		log:            log,
		queue:          core.NewPriorityQueue(nil),
		transientDelay: TransientDelay,
		restartDelay:   RestartDelay,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Schedule enqueues job to run after delay. A zero delay runs it as soon as
// the loop is free.
func (s *Scheduler) Schedule(name string, delay time.Duration, job Job) {
	s.queue.Push(&task{
		at:   time.Now().Add(delay),
		seq:  s.seq.Add(1),
		name: name,
		run:  job,
	})
}

// Len reports the number of queued jobs.
func (s *Scheduler) Len() int { return s.queue.Len() }

// Run executes queued jobs in wake-time order until the queue drains, the
// context is canceled, or a job fails fatally with auto-restart off.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		item := s.queue.Pop()
		if item == nil {
			return nil
		}
		t := item.(*task)

		if err := s.sleepUntil(ctx, t.at); err != nil {
			return err
		}

		err := s.execute(ctx, t)
		switch {
		case err == nil:
		case core.IsTransient(err):
			s.log.WithError(err).Warnf("%s failed, retrying in %s", t.name, s.transientDelay)
			s.Schedule(t.name, s.transientDelay, t.run)
		case s.autoRestart:
			s.log.WithError(err).Errorf("%s failed, restarting in %s", t.name, s.restartDelay)
			s.drain()
			if err := s.sleepUntil(ctx, time.Now().Add(s.restartDelay)); err != nil {
				return err
			}
			s.Schedule(t.name, 0, t.run)
		default:
			return fmt.Errorf("%s: %w", t.name, err)
		}
	}
}

// execute runs one task, converting a panic into an error so auto-restart
// can catch it.
func (s *Scheduler) execute(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", t.name, r)
		}
	}()
	return t.run(ctx)
}

func (s *Scheduler) drain() {
	for s.queue.Pop() != nil {
	}
}

func (s *Scheduler) sleepUntil(ctx context.Context, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
