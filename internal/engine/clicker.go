package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ConserveLee/snapbuy/internal/engine/screen"
	"github.com/ConserveLee/snapbuy/internal/logger"
)

// ErrMatchNotFound marks a single attempt that scored below threshold.
// The retry loop absorbs it; callers only see RetryExhaustedError.
var ErrMatchNotFound = errors.New("template not matched")

// RetryExhaustedError is returned by Click when every attempt missed.
type RetryExhaustedError struct {
	Template  string
	Attempts  int
	BestScore float64
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s not found after %d attempts (best score %.3f)", e.Template, e.Attempts, e.BestScore)
}

func (e *RetryExhaustedError) Unwrap() error { return ErrMatchNotFound }

// TemplateSource resolves template names.
type TemplateSource interface {
	Get(name string) (screen.Template, error)
}

// PointDispatcher clicks a screen position.
type PointDispatcher interface {
	Click(ctx context.Context, p image.Point) error
}

// Clicker runs bounded capture -> match -> click attempts.
type Clicker struct {
	capturer   screen.Capturer
	templates  TemplateSource
	matcher    *screen.Matcher
	dispatcher PointDispatcher
	region     image.Rectangle // Empty means the whole display
	backOff    func(p AttemptPolicy) backoff.BackOff
	debugDir   string // Where misses dump their last frame, empty disables
	log        *logger.AppLogger

	lastScore float64
	lastFrame *screen.Frame
}

// NewClicker wires the capture, match and dispatch stages together
func NewClicker(c screen.Capturer, t TemplateSource, d PointDispatcher, log *logger.AppLogger) *Clicker {
	if log == nil {
		log = logger.Nop()
	}
	return &Clicker{
		capturer:   c,
		templates:  t,
		matcher:    screen.NewMatcher(),
		dispatcher: d,
		backOff:    AttemptPolicy.backOff,
		log:        log,
	}
}

// SetRegion restricts capture to a display-relative rectangle.
func (c *Clicker) SetRegion(r image.Rectangle) {
	c.region = r
}

// SetBackOff replaces the source of inter-attempt delays.
func (c *Clicker) SetBackOff(fn func(p AttemptPolicy) backoff.BackOff) {
	c.backOff = fn
}

// SetDebugDir makes Click save the last frame of an exhausted search as
// debug_<template>_screen.png under dir.
func (c *Clicker) SetDebugDir(dir string) {
	c.debugDir = dir
}

// AttemptClick tries up to policy.MaxRetries fresh capture+match rounds and
// clicks the center of the first match. At most one click is dispatched.
// Success of the click itself is not verified. The error is reserved for
// unknown templates, capture or dispatch failures and cancellation.
func (c *Clicker) AttemptClick(ctx context.Context, name string, policy AttemptPolicy) (bool, error) {
	if err := policy.Validate(); err != nil {
		return false, fmt.Errorf("policy for %s: %w", name, err)
	}
	tpl, err := c.templates.Get(name)
	if err != nil {
		return false, err
	}

	c.lastScore = 0
	c.lastFrame = nil
	attempt := 0

	operation := func() (image.Point, error) {
		attempt++
		if err := ctx.Err(); err != nil {
			return image.Point{}, backoff.Permanent(err)
		}

		frame, err := c.capturer.Capture(c.region)
		if err != nil {
			return image.Point{}, backoff.Permanent(fmt.Errorf("capture for %s: %w", name, err))
		}
		c.lastFrame = frame

		res := c.matcher.Match(tpl, frame, policy.Threshold)
		if res.Score > c.lastScore {
			c.lastScore = res.Score
		}
		if !res.Found {
			return image.Point{}, fmt.Errorf("[%s] attempt %d/%d: %w (score %.3f)", name, attempt, policy.MaxRetries, ErrMatchNotFound, res.Score)
		}

		target := frame.ToScreen(res.Center(tpl))
		c.log.Info("Found [%s] score %.3f, clicking (%d, %d)", name, res.Score, target.X, target.Y)
		if err := c.dispatcher.Click(ctx, target); err != nil {
			return image.Point{}, backoff.Permanent(fmt.Errorf("click %s: %w", name, err))
		}
		return target, nil
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.backOff(policy)),
		backoff.WithMaxTries(uint(policy.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Debug("%v, retrying in %s", err, next)
		}),
	)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrMatchNotFound):
		c.log.Debug("%v", err)
		return false, nil
	default:
		return false, err
	}
}

// Click is AttemptClick with exhaustion reported as RetryExhaustedError.
func (c *Clicker) Click(ctx context.Context, name string, policy AttemptPolicy) error {
	ok, err := c.AttemptClick(ctx, name, policy)
	if err != nil {
		return err
	}
	if !ok {
		c.saveDebugFrame(name)
		return &RetryExhaustedError{Template: name, Attempts: policy.MaxRetries, BestScore: c.lastScore}
	}
	return nil
}

func (c *Clicker) saveDebugFrame(name string) {
	if c.debugDir == "" || c.lastFrame == nil {
		return
	}
	path := filepath.Join(c.debugDir, fmt.Sprintf("debug_%s_screen.png", name))
	if err := screen.SaveFrame(path, c.lastFrame); err != nil {
		c.log.Warn("Could not save debug screenshot: %v", err)
		return
	}
	c.log.Debug("Saved last frame to %s", path)
}
