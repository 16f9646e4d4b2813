package purchase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ConserveLee/snapbuy/internal/browser"
	"github.com/ConserveLee/snapbuy/internal/engine"
	"github.com/ConserveLee/snapbuy/internal/engine/input"
	"github.com/ConserveLee/snapbuy/internal/logger"
)

// ErrAlreadyStarted is returned when Run is called on a used Bot.
var ErrAlreadyStarted = errors.New("purchase session already started")

// Clicker is the bounded capture -> match -> click loop.
type Clicker interface {
	Click(ctx context.Context, name string, policy engine.AttemptPolicy) error
}

// Waiter blocks until a deadline.
type Waiter interface {
	WaitUntil(ctx context.Context, deadline time.Time) error
}

// Bot drives one purchase session from Init to Purchased or Failed.
type Bot struct {
	plan    Plan
	session browser.Session
	clicker Clicker
	waiter  Waiter
	sleep   func(ctx context.Context, d time.Duration) error
	log     *logger.AppLogger

	onState func(State)

	mu      sync.Mutex
	state   State
	history []State
	reason  error
}

// NewBot assembles a session from its collaborators
func NewBot(plan Plan, session browser.Session, clicker Clicker, waiter Waiter, log *logger.AppLogger) *Bot {
	if log == nil {
		log = logger.Nop()
	}
	return &Bot{
		plan:    plan,
		session: session,
		clicker: clicker,
		waiter:  waiter,
		sleep:   input.Sleep,
		log:     log,
		state:   StateInit,
		history: []State{StateInit},
	}
}

// SetSleep replaces the settle and page-transition pauses.
func (b *Bot) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	b.sleep = fn
}

// OnStateChange registers fn to be called after every transition.
func (b *Bot) OnStateChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onState = fn
}

// State returns the current state
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// History returns every state entered so far, in order.
func (b *Bot) History() []State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]State(nil), b.history...)
}

// Reason is the failure recorded on entry to StateFailed.
func (b *Bot) Reason() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

func (b *Bot) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.history = append(b.history, s)
	fn := b.onState
	b.mu.Unlock()

	b.log.Info("State: %s", s)
	if fn != nil {
		fn(s)
	}
}

func (b *Bot) fail(stage string, err error) (State, error) {
	b.mu.Lock()
	from := b.state
	b.mu.Unlock()

	reason := &StageError{Stage: stage, From: from, Err: err}
	b.mu.Lock()
	b.reason = reason
	b.mu.Unlock()

	b.log.Error("%v", reason)
	b.setState(StateFailed)
	return StateFailed, reason
}

// Run executes login, cart, wait and purchase in order. The browser session
// is closed on every exit path. The returned state is always terminal.
func (b *Bot) Run(ctx context.Context) (State, error) {
	b.mu.Lock()
	if b.state != StateInit {
		b.mu.Unlock()
		return b.State(), ErrAlreadyStarted
	}
	b.mu.Unlock()

	defer func() {
		if err := b.session.Close(); err != nil {
			b.log.Warn("Browser close failed: %v", err)
		}
	}()

	b.setState(StateLoggingIn)
	if err := b.login(ctx); err != nil {
		return b.fail(StageLogin, err)
	}
	b.setState(StateLoggedIn)

	if err := b.enterCart(ctx); err != nil {
		return b.fail(StageCart, err)
	}
	b.setState(StateCartReady)

	if err := b.waiter.WaitUntil(ctx, b.plan.Target); err != nil {
		return b.fail(StageSchedule, err)
	}
	b.setState(StatePurchasing)

	if err := b.clicker.Click(ctx, b.plan.CheckoutTemplate, b.plan.CheckoutPolicy); err != nil {
		return b.fail(StageCheckout, err)
	}
	if err := b.sleep(ctx, b.plan.SubmitPageWait); err != nil {
		return b.fail(StageConfirm, err)
	}
	if err := b.clicker.Click(ctx, b.plan.ConfirmTemplate, b.plan.ConfirmPolicy); err != nil {
		return b.fail(StageConfirm, err)
	}

	b.setState(StatePurchased)
	b.log.Info("Order submitted")
	return StatePurchased, nil
}

func (b *Bot) login(ctx context.Context) error {
	if err := b.session.Navigate(ctx, b.plan.HomeURL); err != nil {
		return err
	}
	if err := b.clicker.Click(ctx, b.plan.LoginTemplate, b.plan.LoginPolicy); err != nil {
		return err
	}

	b.log.Info("Complete the login in the browser (waiting up to %s)", b.plan.LoginTimeout)
	if err := b.session.WaitForCondition(ctx, browser.URLContains(b.plan.LoginURLContains), b.plan.LoginTimeout); err != nil {
		return err
	}
	return b.settle(ctx, b.plan.LoginSettle)
}

func (b *Bot) enterCart(ctx context.Context) error {
	if b.plan.CartURL != "" {
		if err := b.session.Navigate(ctx, b.plan.CartURL); err != nil {
			return err
		}
	} else if err := b.clicker.Click(ctx, b.plan.CartTemplate, b.plan.CartPolicy); err != nil {
		return err
	}

	if err := b.session.WaitForCondition(ctx, browser.ElementPresent(b.plan.CartElement), b.plan.CartTimeout); err != nil {
		return err
	}
	return b.settle(ctx, b.plan.CartSettle)
}

func (b *Bot) settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	b.log.Debug("Settling for %s", d)
	return b.sleep(ctx, d)
}
