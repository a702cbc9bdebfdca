// Package scheduler provides the single worker that serializes all
// mutating SDK operations. Callers on arbitrary goroutines only enqueue
// closures; the worker executes them in FIFO order, interleaved with
// recurring maintenance tasks, so the domain model never needs
// fine-grained locking.
package scheduler

import (
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultPollInterval is how often the worker wakes to look for queued
// or due work when idle.
const DefaultPollInterval = 100 * time.Millisecond

// Task is a unit of work executed exclusively on the worker.
type Task func()

type recurringTask struct {
	period  time.Duration
	task    Task
	lastRun time.Time
}

// tick runs the task when at least period has elapsed since the last
// firing. Ticks are opportunistic, not fixed-rate: a late tick simply
// runs late and the next period is measured from the moment it fired.
func (r *recurringTask) tick(now time.Time) bool {
	if now.Sub(r.lastRun) < r.period {
		return false
	}
	r.lastRun = now
	return true
}

// Scheduler owns the worker goroutine, the task FIFO and the recurring
// task registry.
type Scheduler struct {
	mu        sync.Mutex
	queue     []Task
	recurring []*recurringTask
	stopped   bool

	poll time.Duration
	stop chan struct{}
	done chan struct{}
}

// New creates a scheduler and starts its worker.
func New() *Scheduler {
	return NewWithPoll(DefaultPollInterval)
}

// NewWithPoll creates a scheduler with a custom poll interval.
func NewWithPoll(poll time.Duration) *Scheduler {
	s := &Scheduler{
		poll: poll,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.work()
	return s
}

// Submit enqueues a task for exclusive FIFO execution on the worker.
// Tasks submitted after DrainAndStop are dropped.
func (s *Scheduler) Submit(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		log.Printf("scheduler: task submitted after stop, dropping")
		return
	}
	s.queue = append(s.queue, task)
}

// ScheduleRecurring registers a task re-armed after each firing once at
// least period has elapsed since its last run. The first firing happens
// after one full period.
func (s *Scheduler) ScheduleRecurring(period time.Duration, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.recurring = append(s.recurring, &recurringTask{
		period:  period,
		task:    task,
		lastRun: time.Now(),
	})
}

// DrainAndStop runs all currently queued tasks to completion, then
// halts the worker permanently. It blocks until the worker has exited.
// Recurring tasks do not fire during the drain.
func (s *Scheduler) DrainAndStop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

func (s *Scheduler) work() {
	defer close(s.done)

	for {
		s.runQueued()
		s.runDueRecurring()

		select {
		case <-s.stop:
			// Tasks queued before stop still run so a final
			// session-end flush is never lost.
			s.runQueued()
			return
		case <-time.After(s.poll):
		}
	}
}

// runQueued drains the FIFO, executing until no queued work remains.
func (s *Scheduler) runQueued() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		runTask(task)
	}
}

func (s *Scheduler) runDueRecurring() {
	now := time.Now()

	s.mu.Lock()
	var due []Task
	for _, r := range s.recurring {
		if r.tick(now) {
			due = append(due, r.task)
		}
	}
	s.mu.Unlock()

	// Recurring tasks never overlap with themselves: they only run
	// here, on the single worker, after being collected above.
	for _, task := range due {
		runTask(task)
	}
}

// runTask executes a task, recovering panics at the task boundary so a
// failing task cannot take down the worker or block subsequent tasks.
func runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: task panic recovered: %v\n%s", r, debug.Stack())
		}
	}()
	task()
}
