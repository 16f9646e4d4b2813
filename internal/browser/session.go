package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type conditionKind int

const (
	kindURLContains conditionKind = iota
	kindElementPresent
)

// Condition is a predicate over the current page.
type Condition struct {
	kind  conditionKind
	value string
}

// URLContains holds once the page URL contains s.
func URLContains(s string) Condition {
	return Condition{kind: kindURLContains, value: s}
}

// ElementPresent holds once a node matching the CSS selector exists.
func ElementPresent(selector string) Condition {
	return Condition{kind: kindElementPresent, value: selector}
}

func (c Condition) String() string {
	if c.kind == kindElementPresent {
		return fmt.Sprintf("element %q present", c.value)
	}
	return fmt.Sprintf("url contains %q", c.value)
}

// NavigationError means a page did not load.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// TimeoutError means a condition did not hold within its timeout.
type TimeoutError struct {
	Condition Condition
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Condition)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Session is the narrow browser surface the purchase flow depends on.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitForCondition(ctx context.Context, cond Condition, timeout time.Duration) error
	Close() error
}

// probe answers point-in-time questions about the page.
type probe interface {
	URL(ctx context.Context) (string, error)
	HasElement(ctx context.Context, selector string) (bool, error)
}

// waitFor polls p every interval until cond holds or timeout elapses.
// Probe errors are treated as "not yet": pages mid-navigation fail lookups.
func waitFor(ctx context.Context, p probe, cond Condition, timeout, interval time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ok, _ := check(waitCtx, p, cond); ok {
			return nil
		}
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return &TimeoutError{Condition: cond, Timeout: timeout}
		case <-ticker.C:
		}
	}
}

func check(ctx context.Context, p probe, cond Condition) (bool, error) {
	switch cond.kind {
	case kindElementPresent:
		return p.HasElement(ctx, cond.value)
	case kindURLContains:
		u, err := p.URL(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(u, cond.value), nil
	default:
		return false, errors.New("unknown condition")
	}
}
