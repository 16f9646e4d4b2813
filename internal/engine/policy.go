package engine

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ConserveLee/snapbuy/internal/constants"
)

// AttemptPolicy bounds one match-then-click call site.
type AttemptPolicy struct {
	MaxRetries int           `yaml:"max_retries"`
	Delay      time.Duration `yaml:"delay"`
	Threshold  float64       `yaml:"threshold"`
}

// DefaultPolicy is used by call sites without a dedicated policy
func DefaultPolicy() AttemptPolicy {
	return AttemptPolicy{
		MaxRetries: constants.DefaultMaxRetries,
		Delay:      constants.DefaultRetryDelay,
		Threshold:  constants.DefaultThreshold,
	}
}

// CheckoutPolicy governs the first purchase click
func CheckoutPolicy() AttemptPolicy {
	return AttemptPolicy{
		MaxRetries: constants.CheckoutMaxRetries,
		Delay:      constants.CheckoutRetryDelay,
		Threshold:  constants.DefaultThreshold,
	}
}

// ConfirmPolicy governs the order submission click
func ConfirmPolicy() AttemptPolicy {
	return AttemptPolicy{
		MaxRetries: constants.ConfirmMaxRetries,
		Delay:      constants.ConfirmRetryDelay,
		Threshold:  constants.DefaultThreshold,
	}
}

// Validate checks the policy ranges
func (p AttemptPolicy) Validate() error {
	if p.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", p.MaxRetries)
	}
	if p.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", p.Delay)
	}
	if p.Threshold <= 0 || p.Threshold >= 1 {
		return fmt.Errorf("threshold must be in (0,1), got %g", p.Threshold)
	}
	return nil
}

// backOff yields the fixed inter-attempt delay.
func (p AttemptPolicy) backOff() backoff.BackOff {
	return backoff.NewConstantBackOff(p.Delay)
}
