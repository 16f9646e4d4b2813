package purchase

import (
	"fmt"
	"time"

	"github.com/ConserveLee/snapbuy/internal/config"
	"github.com/ConserveLee/snapbuy/internal/constants"
	"github.com/ConserveLee/snapbuy/internal/engine"
)

// State defines the current phase of a purchase session
type State int

const (
	StateInit       State = iota
	StateLoggingIn        // Home page opened, login button being clicked, waiting for login
	StateLoggedIn         // Post-login URL seen
	StateCartReady        // Cart page element present
	StatePurchasing       // Deadline reached, clicking checkout then confirm
	StatePurchased        // Order submitted (terminal)
	StateFailed           // Terminal, see Bot.Reason
)

var stateNames = [...]string{
	StateInit:       "Init",
	StateLoggingIn:  "LoggingIn",
	StateLoggedIn:   "LoggedIn",
	StateCartReady:  "CartReady",
	StatePurchasing: "Purchasing",
	StatePurchased:  "Purchased",
	StateFailed:     "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions can happen
func (s State) Terminal() bool {
	return s == StatePurchased || s == StateFailed
}

// Stage names used in StageError
const (
	StageLogin    = "login"
	StageCart     = "cart"
	StageSchedule = "schedule"
	StageCheckout = "checkout"
	StageConfirm  = "confirm"
)

// StageError is the failure reason recorded when a session ends in StateFailed.
type StageError struct {
	Stage string
	From  State // State the session was in when the stage failed
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed in %s: %v", e.Stage, e.From, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Plan is everything a session needs to know about the target shop.
type Plan struct {
	Target time.Time

	HomeURL          string
	LoginURLContains string
	LoginTimeout     time.Duration
	LoginSettle      time.Duration

	CartURL     string
	CartElement string
	CartTimeout time.Duration
	CartSettle  time.Duration

	SubmitPageWait time.Duration

	LoginTemplate    string
	CartTemplate     string
	CheckoutTemplate string
	ConfirmTemplate  string

	LoginPolicy    engine.AttemptPolicy
	CartPolicy     engine.AttemptPolicy
	CheckoutPolicy engine.AttemptPolicy
	ConfirmPolicy  engine.AttemptPolicy
}

// PlanFromConfig validates cfg and extracts the session plan
func PlanFromConfig(cfg *config.Config) (Plan, error) {
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}
	target, err := cfg.Target()
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Target: target,

		HomeURL:          cfg.HomeURL,
		LoginURLContains: cfg.LoginURLContains,
		LoginTimeout:     cfg.LoginTimeout,
		LoginSettle:      cfg.LoginSettle,

		CartURL:     cfg.CartURL,
		CartElement: cfg.CartElement,
		CartTimeout: cfg.CartTimeout,
		CartSettle:  cfg.CartSettle,

		SubmitPageWait: cfg.SubmitPageWait,

		LoginTemplate:    constants.TemplateLogin,
		CartTemplate:     constants.TemplateCart,
		CheckoutTemplate: cfg.CheckoutTemplate,
		ConfirmTemplate:  cfg.ConfirmTemplate,

		LoginPolicy:    cfg.Policies.Login,
		CartPolicy:     cfg.Policies.Cart,
		CheckoutPolicy: cfg.Policies.Checkout,
		ConfirmPolicy:  cfg.Policies.Confirm,
	}, nil
}
