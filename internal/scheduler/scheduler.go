// Package scheduler runs a fetch cycle immediately and then once per
// interval until stopped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/clock"
)

var (
	// ErrAlreadyStarted is returned by Start on a scheduler that is not Idle.
	ErrAlreadyStarted  = errors.New("scheduler already started")
	ErrInvalidInterval = errors.New("scheduler interval must be positive")
)

type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Cycle is one unit of scheduled work.
type Cycle func(ctx context.Context)

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option { return func(s *Scheduler) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l.With().Str("component", "scheduler").Logger() }
}

// Scheduler fires cycles on a ticker. Cycles may overlap; each runs in its
// own goroutine with a context that is not cancelled by Stop.
type Scheduler struct {
	interval time.Duration
	cycle    Cycle
	clock    clock.Clock
	logger   zerolog.Logger

	mu     sync.Mutex
	state  State
	ticker clock.Ticker
	stop   chan struct{}
	done   chan struct{}
	idle   chan struct{}
	wg     sync.WaitGroup
	base   context.Context
	seq    uint64
}

func New(interval time.Duration, cycle Cycle, options ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	s := &Scheduler{
		interval: interval,
		cycle:    cycle,
		clock:    clock.Real(),
		logger:   zerolog.Nop(),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start fires the first cycle immediately and then one per interval.
// Cancelling ctx moves the scheduler to Stopping: no new cycles fire, running
// ones are not cancelled, and it becomes Stopped once they return.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, st)
	}
	s.state = Running
	s.base = context.WithoutCancel(ctx)
	s.ticker = s.clock.NewTicker(s.interval)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.idle = make(chan struct{})
	s.launchLocked()
	s.mu.Unlock()

	go s.loop(ctx)
	go s.drain()
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			s.mu.Lock()
			if s.state == Running {
				s.state = Stopping
				s.ticker.Stop()
			}
			s.mu.Unlock()
			s.logger.Info().Err(ctx.Err()).Msg("scheduler context done, no new cycles")
			return
		case <-s.ticker.Chan():
			s.mu.Lock()
			if s.state == Running {
				s.launchLocked()
			}
			s.mu.Unlock()
		}
	}
}

// drain marks the scheduler Stopped once the loop has exited and every
// launched cycle has returned.
func (s *Scheduler) drain() {
	<-s.done
	s.wg.Wait()
	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()
	close(s.idle)
}

// launchLocked starts one cycle. s.mu must be held.
func (s *Scheduler) launchLocked() {
	s.seq++
	n := s.seq
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Uint64("cycle", n).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("cycle panicked")
			}
		}()
		start := s.clock.Now()
		s.cycle(s.base)
		s.logger.Debug().Uint64("cycle", n).Dur("took", s.clock.Now().Sub(start)).Msg("cycle finished")
	}()
}

// Stop prevents new cycles and waits for in-flight ones until ctx is done,
// after which they are abandoned. The scheduler ends Stopped either way.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.state = Stopped
		s.mu.Unlock()
		return nil
	case Stopped:
		s.mu.Unlock()
		return nil
	case Running:
		s.state = Stopping
		s.ticker.Stop()
		close(s.stop)
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		err := fmt.Errorf("abandoning in-flight cycles: %w", ctx.Err())
		s.logger.Warn().Err(err).Msg("scheduler stopped")
		s.mu.Lock()
		s.state = Stopped
		s.mu.Unlock()
		return err
	}
}
