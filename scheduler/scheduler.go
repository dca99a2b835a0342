/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"container/heap"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-throttlekit/log"
)

// ErrClosed is returned when an action is scheduled after the Scheduler has been shut down.
var ErrClosed = errors.New("scheduler is shut down")

// Opts contains optional parameters for constructing Scheduler.
type Opts struct {
	Logger log.FieldLogger

	// PanicHandler is called on the worker goroutine with the value recovered from a panicking action.
	// The worker keeps running after a panic regardless of this handler.
	PanicHandler func(p interface{})
}

// Scheduler runs actions once after a delay on a single dedicated goroutine.
type Scheduler struct {
	logger       log.FieldLogger
	panicHandler func(p interface{})

	mu      sync.Mutex
	entries entryHeap
	seq     uint64

	wake         chan struct{}
	stop         chan struct{}
	done         chan struct{}
	closed       *atomic.Bool
	shutdownOnce sync.Once
}

// New creates a new Scheduler and starts its worker goroutine.
func New() *Scheduler {
	return NewWithOpts(Opts{})
}

// NewWithOpts creates a new Scheduler with the provided options and starts its worker goroutine.
func NewWithOpts(opts Opts) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	s := &Scheduler{
		logger:       opts.Logger,
		panicHandler: opts.PanicHandler,
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		closed:       atomic.NewBool(false),
	}
	go s.run()
	return s
}

// ScheduleOnce arranges for action to run exactly once after at least delay has elapsed.
// Negative delay is treated as zero. Action may schedule other actions (including itself).
func (s *Scheduler) ScheduleOnce(delay time.Duration, action func()) error {
	if action == nil {
		return fmt.Errorf("action should not be nil")
	}
	if delay < 0 {
		delay = 0
	}
	deadline := time.Now().Add(delay)

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	s.seq++
	e := &entry{deadline: deadline, seq: s.seq, action: action}
	heap.Push(&s.entries, e)
	isNext := s.entries[0] == e
	s.mu.Unlock()

	if isNext {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of actions that have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Shutdown stops the worker goroutine. Actions that have not fired yet are abandoned and will never run.
// An action that is currently running is not interrupted. Shutdown may be called many times
// and from any goroutine, including from an action. Use Done to wait for the worker to exit.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		abandoned := len(s.entries)
		s.entries = nil
		s.mu.Unlock()

		close(s.stop)
		if abandoned > 0 {
			s.logger.Debug("scheduler is shut down, pending actions are abandoned", log.Int("abandoned", abandoned))
		}
	})
}

// Done returns a channel that is closed when the worker goroutine exits after Shutdown.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// IsShutdown reports whether Shutdown has been called.
func (s *Scheduler) IsShutdown() bool {
	return s.closed.Load()
}

func (s *Scheduler) run() {
	defer close(s.done)

	for {
		action, wait, ready := s.next()
		if ready {
			s.execute(action)
			continue
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-s.stop:
		case <-s.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
		if s.closed.Load() {
			return
		}
	}
}

// next pops the earliest entry if its deadline has come.
// Otherwise, it returns how long to wait for the earliest one (zero if there are no entries at all).
func (s *Scheduler) next() (action func(), wait time.Duration, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() || len(s.entries) == 0 {
		return nil, 0, false
	}
	if wait = time.Until(s.entries[0].deadline); wait > 0 {
		return nil, wait, false
	}
	e := heap.Pop(&s.entries).(*entry)
	return e.action, 0, true
}

func (s *Scheduler) execute(action func()) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			s.logger.Error(fmt.Sprintf("panic in scheduled action: %+v", p), log.Bytes("stack", stack))
			if s.panicHandler != nil {
				s.panicHandler(p)
			}
		}
	}()
	action()
}
