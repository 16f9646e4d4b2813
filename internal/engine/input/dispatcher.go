package input

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"time"

	"github.com/ConserveLee/snapbuy/internal/constants"
)

// ErrInputUnavailable is wrapped by pointers when no input device can be driven.
var ErrInputUnavailable = errors.New("input delivery unavailable")

// DispatchError reports a failed synthetic input event. It is never retried
// at this layer.
type DispatchError struct {
	Op    string // "move" or "click"
	Point image.Point
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s at (%d, %d): %v", e.Op, e.Point.X, e.Point.Y, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Pointer delivers raw pointer events in screen coordinates.
type Pointer interface {
	MoveTo(p image.Point) error
	Click() error
}

// HumanizeConfig controls the randomness of a click.
type HumanizeConfig struct {
	Jitter   int // Offset drawn from [-Jitter, Jitter) on each axis
	PauseMin time.Duration
	PauseMax time.Duration
}

// DefaultHumanize returns the standard click jitter
func DefaultHumanize() HumanizeConfig {
	return HumanizeConfig{
		Jitter:   constants.ClickJitter,
		PauseMin: constants.ClickPauseMin,
		PauseMax: constants.ClickPauseMax,
	}
}

// Dispatcher turns a screen position into a humanized move + pause + click.
type Dispatcher struct {
	pointer Pointer
	cfg     HumanizeConfig
	rng     *rand.Rand
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. rng may be nil for a time-seeded source.
func NewDispatcher(p Pointer, cfg HumanizeConfig, rng *rand.Rand) *Dispatcher {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Dispatcher{pointer: p, cfg: cfg, rng: rng, sleep: Sleep}
}

// SetSleep replaces the pause implementation.
func (d *Dispatcher) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	d.sleep = fn
}

// Click moves to p plus a random offset, pauses, then clicks.
func (d *Dispatcher) Click(ctx context.Context, p image.Point) error {
	target := p.Add(d.offset())

	if err := d.pointer.MoveTo(target); err != nil {
		return &DispatchError{Op: "move", Point: target, Err: err}
	}
	if err := d.sleep(ctx, d.pause()); err != nil {
		return err
	}
	if err := d.pointer.Click(); err != nil {
		return &DispatchError{Op: "click", Point: target, Err: err}
	}
	return nil
}

func (d *Dispatcher) offset() image.Point {
	j := d.cfg.Jitter
	if j <= 0 {
		return image.Point{}
	}
	return image.Point{X: d.rng.IntN(2*j) - j, Y: d.rng.IntN(2*j) - j}
}

func (d *Dispatcher) pause() time.Duration {
	span := d.cfg.PauseMax - d.cfg.PauseMin
	if span <= 0 {
		return d.cfg.PauseMin
	}
	return d.cfg.PauseMin + time.Duration(d.rng.Int64N(int64(span)))
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
