package schedule

import (
	"context"
	"time"

	"github.com/ConserveLee/snapbuy/internal/constants"
	"github.com/ConserveLee/snapbuy/internal/logger"
)

// Clock is the time source compared against deadlines.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler blocks until a deadline by polling the clock on a short interval.
// Polling instead of one long sleep keeps the wake-up close to the deadline
// regardless of OS timer coalescing over long waits.
type Scheduler struct {
	Clock        Clock
	PollInterval time.Duration
	Tolerance    time.Duration // Overshoot beyond this is reported

	log *logger.AppLogger
}

// NewScheduler returns a scheduler on the system clock
func NewScheduler(log *logger.AppLogger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		Clock:        SystemClock{},
		PollInterval: constants.SchedulerPollInterval,
		Tolerance:    constants.SchedulerTolerance,
		log:          log,
	}
}

// WaitUntil returns once Clock.Now() >= deadline, or early with ctx.Err().
func (s *Scheduler) WaitUntil(ctx context.Context, deadline time.Time) error {
	poll := s.PollInterval
	if poll <= 0 {
		poll = constants.SchedulerPollInterval
	}

	now := s.Clock.Now()
	if now.Before(deadline) {
		s.log.Info("Waiting for %s (%s from now)", deadline.Format("2006-01-02 15:04:05.000"), deadline.Sub(now).Round(time.Millisecond))
	}

	for now.Before(deadline) {
		step := deadline.Sub(now)
		if step > poll {
			step = poll
		}
		if err := sleep(ctx, step); err != nil {
			return err
		}
		now = s.Clock.Now()
	}

	if late := now.Sub(deadline); s.Tolerance > 0 && late > s.Tolerance {
		s.log.Warn("Deadline overshot by %s (tolerance %s)", late, s.Tolerance)
	} else {
		s.log.Debug("Deadline reached, late by %s", late)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
