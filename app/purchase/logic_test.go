package purchase

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConserveLee/snapbuy/internal/browser"
	"github.com/ConserveLee/snapbuy/internal/config"
	"github.com/ConserveLee/snapbuy/internal/engine"
	"github.com/ConserveLee/snapbuy/internal/engine/schedule"
	"github.com/ConserveLee/snapbuy/internal/engine/screen"
	"github.com/ConserveLee/snapbuy/internal/logger"
)

func noise(w, h int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, 99))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.IntN(256))
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	return img
}

type fakeSession struct {
	mu         sync.Mutex
	navigated  []string
	conditions []string
	failOn     string // Substring of a condition that times out
	closed     int
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) WaitForCondition(_ context.Context, cond browser.Condition, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conditions = append(s.conditions, cond.String())
	if s.failOn != "" && strings.Contains(cond.String(), s.failOn) {
		return &browser.TimeoutError{Condition: cond, Timeout: timeout}
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type staticCapturer struct {
	frame *screen.Frame
}

func (c *staticCapturer) Capture(image.Rectangle) (*screen.Frame, error) {
	return c.frame, nil
}

type recordingDispatcher struct {
	clicks []image.Point
}

func (d *recordingDispatcher) Click(_ context.Context, p image.Point) error {
	d.clicks = append(d.clicks, p)
	return nil
}

// countingClicker records each retry-loop invocation and the clicks it caused.
type countingClicker struct {
	inner      *engine.Clicker
	dispatcher *recordingDispatcher
	calls      []string
	clicksPer  []int
}

func (c *countingClicker) Click(ctx context.Context, name string, policy engine.AttemptPolicy) error {
	before := len(c.dispatcher.clicks)
	err := c.inner.Click(ctx, name, policy)
	c.calls = append(c.calls, name)
	c.clicksPer = append(c.clicksPer, len(c.dispatcher.clicks)-before)
	return err
}

type countingWaiter struct {
	inner Waiter
	calls int
}

func (w *countingWaiter) WaitUntil(ctx context.Context, deadline time.Time) error {
	w.calls++
	if w.inner == nil {
		return ctx.Err()
	}
	return w.inner.WaitUntil(ctx, deadline)
}

type harness struct {
	session    *fakeSession
	capturer   *staticCapturer
	dispatcher *recordingDispatcher
	clicker    *countingClicker
	waiter     *countingWaiter
	sleeps     []time.Duration
	bot        *Bot

	login, cart, buy *image.RGBA
}

// newHarness builds a bot whose screen shows the given buttons.
func newHarness(t *testing.T, plan Plan, visible ...string) *harness {
	t.Helper()
	h := &harness{
		session:    &fakeSession{},
		dispatcher: &recordingDispatcher{},
		waiter:     &countingWaiter{},
		login:      noise(40, 16, 11),
		cart:       noise(30, 20, 12),
		buy:        noise(48, 18, 13),
	}

	store := screen.NewTemplateStore()
	positions := map[string]image.Point{"login_btn": {20, 20}, "cart_btn": {200, 30}, "buy_btn": {150, 120}}
	images := map[string]*image.RGBA{"login_btn": h.login, "cart_btn": h.cart, "buy_btn": h.buy}
	for name, img := range images {
		_, err := store.Add(name, img)
		require.NoError(t, err)
	}

	frame := noise(300, 160, 1)
	for _, name := range visible {
		img := images[name]
		draw.Draw(frame, img.Bounds().Add(positions[name]), img, image.Point{}, draw.Src)
	}
	h.capturer = &staticCapturer{frame: screen.NewFrame(frame, image.Point{}, time.Now())}

	inner := engine.NewClicker(h.capturer, store, h.dispatcher, logger.Nop())
	inner.SetBackOff(func(engine.AttemptPolicy) backoff.BackOff { return backoff.NewConstantBackOff(0) })
	h.clicker = &countingClicker{inner: inner, dispatcher: h.dispatcher}

	h.bot = NewBot(plan, h.session, h.clicker, h.waiter, logger.Nop())
	h.bot.SetSleep(func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	})
	return h
}

func testPlan(target time.Time) Plan {
	return Plan{
		Target:           target,
		HomeURL:          "https://shop.example/",
		LoginURLContains: "shop.example/my",
		LoginTimeout:     time.Second,
		LoginSettle:      120 * time.Second,
		CartURL:          "https://shop.example/cart",
		CartElement:      "#J_SelectAll1",
		CartTimeout:      time.Second,
		CartSettle:       15 * time.Second,
		SubmitPageWait:   time.Second,
		LoginTemplate:    "login_btn",
		CartTemplate:     "cart_btn",
		CheckoutTemplate: "buy_btn",
		ConfirmTemplate:  "buy_btn",
		LoginPolicy:      engine.DefaultPolicy(),
		CartPolicy:       engine.DefaultPolicy(),
		CheckoutPolicy:   engine.CheckoutPolicy(),
		ConfirmPolicy:    engine.ConfirmPolicy(),
	}
}

func TestRunPurchasesAtDeadline(t *testing.T) {
	target := time.Now().Add(2 * time.Second)
	h := newHarness(t, testPlan(target), "login_btn", "buy_btn")
	h.waiter.inner = schedule.NewScheduler(logger.Nop())

	var seen []State
	h.bot.OnStateChange(func(s State) { seen = append(seen, s) })

	state, err := h.bot.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePurchased, state)

	late := time.Since(target)
	assert.GreaterOrEqual(t, late, time.Duration(0))
	assert.Less(t, late, time.Second)

	assert.Equal(t, []State{StateInit, StateLoggingIn, StateLoggedIn, StateCartReady, StatePurchasing, StatePurchased}, h.bot.History())
	assert.Equal(t, h.bot.History()[1:], seen)

	assert.Equal(t, 1, h.waiter.calls)
	assert.Equal(t, []string{"login_btn", "buy_btn", "buy_btn"}, h.clicker.calls)
	assert.Equal(t, []int{1, 1, 1}, h.clicker.clicksPer)
	// buy_btn at (150,120), 48x18
	assert.Equal(t, image.Point{X: 174, Y: 129}, h.dispatcher.clicks[2])

	assert.Equal(t, []string{"https://shop.example/", "https://shop.example/cart"}, h.session.navigated)
	assert.Equal(t, []string{`url contains "shop.example/my"`, `element "#J_SelectAll1" present`}, h.session.conditions)
	assert.Equal(t, []time.Duration{120 * time.Second, 15 * time.Second, time.Second}, h.sleeps)
	assert.Equal(t, 1, h.session.closed)
	assert.NoError(t, h.bot.Reason())
}

func TestRunCartTimeoutFails(t *testing.T) {
	h := newHarness(t, testPlan(time.Now()), "login_btn", "buy_btn")
	h.session.failOn = "#J_SelectAll1"

	state, err := h.bot.Run(context.Background())
	assert.Equal(t, StateFailed, state)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageCart, stageErr.Stage)
	assert.Equal(t, StateLoggedIn, stageErr.From)
	var timeout *browser.TimeoutError
	assert.ErrorAs(t, err, &timeout)
	assert.Equal(t, err, h.bot.Reason())

	assert.NotContains(t, h.bot.History(), StatePurchasing)
	assert.NotContains(t, h.bot.History(), StateCartReady)
	assert.Zero(t, h.waiter.calls)
	assert.Equal(t, []string{"login_btn"}, h.clicker.calls)
	assert.Equal(t, 1, h.session.closed)
}

func TestRunLoginButtonMissing(t *testing.T) {
	h := newHarness(t, testPlan(time.Now()), "buy_btn")

	state, err := h.bot.Run(context.Background())
	assert.Equal(t, StateFailed, state)

	var exhausted *engine.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "login_btn", exhausted.Template)
	assert.Equal(t, 3, exhausted.Attempts)

	assert.Empty(t, h.dispatcher.clicks)
	assert.Empty(t, h.session.conditions)
	assert.Equal(t, []State{StateInit, StateLoggingIn, StateFailed}, h.bot.History())
	assert.Equal(t, 1, h.session.closed)
}

func TestRunCheckoutButtonMissing(t *testing.T) {
	h := newHarness(t, testPlan(time.Now()), "login_btn")

	state, err := h.bot.Run(context.Background())
	assert.Equal(t, StateFailed, state)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageCheckout, stageErr.Stage)
	assert.Equal(t, StatePurchasing, stageErr.From)
	assert.Equal(t, 1, h.waiter.calls)
	assert.Equal(t, 1, h.session.closed)
}

func TestRunClicksCartButtonWithoutCartURL(t *testing.T) {
	plan := testPlan(time.Now())
	plan.CartURL = ""
	h := newHarness(t, plan, "login_btn", "cart_btn", "buy_btn")

	state, err := h.bot.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePurchased, state)

	assert.Equal(t, []string{"https://shop.example/"}, h.session.navigated)
	assert.Equal(t, []string{"login_btn", "cart_btn", "buy_btn", "buy_btn"}, h.clicker.calls)
}

func TestRunCancelledWhileWaiting(t *testing.T) {
	h := newHarness(t, testPlan(time.Now().Add(time.Hour)), "login_btn", "buy_btn")
	h.waiter.inner = schedule.NewScheduler(logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	h.bot.OnStateChange(func(s State) {
		if s == StateCartReady {
			cancel()
		}
	})

	state, err := h.bot.Run(ctx)
	assert.Equal(t, StateFailed, state)
	assert.ErrorIs(t, err, context.Canceled)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSchedule, stageErr.Stage)
	assert.Equal(t, []string{"login_btn"}, h.clicker.calls)
	assert.Equal(t, 1, h.session.closed)
}

func TestRunOnlyOnce(t *testing.T) {
	h := newHarness(t, testPlan(time.Now()), "login_btn", "buy_btn")
	_, err := h.bot.Run(context.Background())
	require.NoError(t, err)

	state, err := h.bot.Run(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyStarted))
	assert.Equal(t, StatePurchased, state)
	assert.Equal(t, 1, h.session.closed)
}

func TestPlanFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := PlanFromConfig(cfg)
	assert.Error(t, err, "target time is required")

	cfg.TargetTime = "2025-04-19 22:28:33"
	cfg.Policies.Checkout.MaxRetries = 9
	plan, err := PlanFromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 4, 19, 22, 28, 33, 0, time.Local), plan.Target)
	assert.Equal(t, "login_btn", plan.LoginTemplate)
	assert.Equal(t, "buy_btn", plan.CheckoutTemplate)
	assert.Equal(t, "buy_btn", plan.ConfirmTemplate)
	assert.Equal(t, 9, plan.CheckoutPolicy.MaxRetries)
	assert.Equal(t, cfg.CartElement, plan.CartElement)
	assert.Equal(t, 120*time.Second, plan.LoginSettle)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CartReady", StateCartReady.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StatePurchasing.Terminal())
}

func TestRequiredTemplates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TargetTime = "2025-04-19 22:28:33"
	plan, err := PlanFromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"login_btn": "login_button.png",
		"buy_btn":   "buy_button.png",
	}, requiredTemplates(cfg, plan))

	plan.CartURL = ""
	assert.Contains(t, requiredTemplates(cfg, plan), "cart_btn")
}
