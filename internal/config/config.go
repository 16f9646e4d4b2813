package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ConserveLee/snapbuy/internal/constants"
	"github.com/ConserveLee/snapbuy/internal/engine"
)

// Input modes
const (
	InputRobot   = "robot"   // OS-level pointer through robotgo
	InputBrowser = "browser" // CDP mouse events inside the page
)

type Config struct {
	TargetTime string `yaml:"target_time"`

	HomeURL          string        `yaml:"home_url"`
	LoginURLContains string        `yaml:"login_url_contains"`
	LoginTimeout     time.Duration `yaml:"login_timeout"`
	LoginSettle      time.Duration `yaml:"login_settle"`

	CartURL     string        `yaml:"cart_url"` // Empty: click cart_btn instead of navigating
	CartElement string        `yaml:"cart_element"`
	CartTimeout time.Duration `yaml:"cart_timeout"`
	CartSettle  time.Duration `yaml:"cart_settle"`

	SubmitPageWait time.Duration `yaml:"submit_page_wait"`

	TemplatesDir string            `yaml:"templates_dir"`
	Templates    map[string]string `yaml:"templates"`

	CheckoutTemplate string `yaml:"checkout_template"`
	ConfirmTemplate  string `yaml:"confirm_template"`

	Policies PolicyConfig `yaml:"policies"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Click     ClickConfig     `yaml:"click"`
	Capture   CaptureConfig   `yaml:"capture"`
	Browser   BrowserConfig   `yaml:"browser"`

	InputMode string `yaml:"input_mode"`
	DebugMode bool   `yaml:"debug_mode"`
}

type PolicyConfig struct {
	Login    engine.AttemptPolicy `yaml:"login"`
	Cart     engine.AttemptPolicy `yaml:"cart"`
	Checkout engine.AttemptPolicy `yaml:"checkout"`
	Confirm  engine.AttemptPolicy `yaml:"confirm"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Tolerance    time.Duration `yaml:"tolerance"`
	TimeSync     bool          `yaml:"time_sync"`
	TimeServers  []string      `yaml:"time_servers,omitempty"`
}

type ClickConfig struct {
	Jitter   int           `yaml:"jitter"`
	PauseMin time.Duration `yaml:"pause_min"`
	PauseMax time.Duration `yaml:"pause_max"`
}

type CaptureConfig struct {
	DisplayID int `yaml:"display_id"`
	// Optional display-relative region; all zero captures the whole display
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Region returns the configured capture rectangle
func (c CaptureConfig) Region() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}

type BrowserConfig struct {
	Headless    bool   `yaml:"headless"`
	ProfilePath string `yaml:"profile_path"`
	Bin         string `yaml:"bin"`
	// Screen position of the page viewport, used by the browser input mode
	ViewportX int `yaml:"viewport_x"`
	ViewportY int `yaml:"viewport_y"`
}

func DefaultConfig() *Config {
	return &Config{
		TargetTime: "",

		HomeURL:          "https://www.taobao.com",
		LoginURLContains: "taobao.com",
		LoginTimeout:     constants.LoginTimeout,
		LoginSettle:      constants.LoginSettleWait,

		CartURL:     "https://cart.taobao.com/cart.htm",
		CartElement: "#J_SelectAll1",
		CartTimeout: constants.CartTimeout,
		CartSettle:  constants.CartSettleWait,

		SubmitPageWait: constants.SubmitPageWait,

		TemplatesDir: "templates",
		Templates: map[string]string{
			constants.TemplateLogin: "login_button.png",
			constants.TemplateCart:  "cart_button.png",
			constants.TemplateBuy:   "buy_button.png",
		},
		CheckoutTemplate: constants.TemplateBuy,
		ConfirmTemplate:  constants.TemplateBuy,

		Policies: PolicyConfig{
			Login:    engine.DefaultPolicy(),
			Cart:     engine.DefaultPolicy(),
			Checkout: engine.CheckoutPolicy(),
			Confirm:  engine.ConfirmPolicy(),
		},

		Scheduler: SchedulerConfig{
			PollInterval: constants.SchedulerPollInterval,
			Tolerance:    constants.SchedulerTolerance,
		},
		Click: ClickConfig{
			Jitter:   constants.ClickJitter,
			PauseMin: constants.ClickPauseMin,
			PauseMax: constants.ClickPauseMax,
		},
		Browser: BrowserConfig{
			ProfilePath: "browser-profile",
		},

		InputMode: InputRobot,
	}
}

// Load reads path over the defaults. A missing file is created with the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks everything a run needs, including a parseable target time.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseTargetTime(c.TargetTime); err != nil {
		errs = append(errs, err)
	}
	if c.HomeURL == "" {
		errs = append(errs, errors.New("home_url is required"))
	}
	if c.CartElement == "" {
		errs = append(errs, errors.New("cart_element is required"))
	}
	if c.LoginTimeout <= 0 || c.CartTimeout <= 0 {
		errs = append(errs, errors.New("login_timeout and cart_timeout must be positive"))
	}
	for _, name := range []string{constants.TemplateLogin, constants.TemplateBuy, c.CheckoutTemplate, c.ConfirmTemplate} {
		if _, ok := c.Templates[name]; !ok {
			errs = append(errs, fmt.Errorf("templates: no file for %q", name))
		}
	}
	if c.CartURL == "" {
		if _, ok := c.Templates[constants.TemplateCart]; !ok {
			errs = append(errs, fmt.Errorf("templates: no file for %q and no cart_url", constants.TemplateCart))
		}
	}

	for name, p := range map[string]engine.AttemptPolicy{
		"login": c.Policies.Login, "cart": c.Policies.Cart,
		"checkout": c.Policies.Checkout, "confirm": c.Policies.Confirm,
	} {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("policies.%s: %w", name, err))
		}
	}

	if c.Click.Jitter < 0 || c.Click.PauseMin < 0 || c.Click.PauseMax < c.Click.PauseMin {
		errs = append(errs, errors.New("click: jitter and pauses must be non-negative with pause_min <= pause_max"))
	}
	if c.Capture.Width < 0 || c.Capture.Height < 0 {
		errs = append(errs, errors.New("capture: width and height must be non-negative"))
	}
	if c.InputMode != InputRobot && c.InputMode != InputBrowser {
		errs = append(errs, fmt.Errorf("input_mode must be %q or %q, got %q", InputRobot, InputBrowser, c.InputMode))
	}

	return errors.Join(errs...)
}
