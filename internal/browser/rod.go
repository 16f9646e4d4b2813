package browser

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/ConserveLee/snapbuy/internal/engine/input"
	"github.com/ConserveLee/snapbuy/internal/logger"
)

// Options configure the launched browser
type Options struct {
	Headless     bool
	UserDataDir  string
	Bin          string        // Empty: system Chrome if found, else rod's download
	PollInterval time.Duration // Condition polling
}

// RodSession is a Session backed by a Chrome instance driven over CDP.
type RodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	poll     time.Duration
	log      *logger.AppLogger

	closeOnce sync.Once
	closeErr  error
}

// Launch starts the browser and opens one stealth page.
func Launch(opts Options, log *logger.AppLogger) (*RodSession, error) {
	if log == nil {
		log = logger.Nop()
	}

	// Leakless deadlocks on Windows (go-rod/rod#853)
	l := launcher.New().
		Leakless(runtime.GOOS != "windows").
		Headless(opts.Headless).
		Set("start-maximized").
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation")

	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}
	switch {
	case opts.Bin != "":
		l = l.Bin(opts.Bin)
	default:
		if path, ok := launcher.LookPath(); ok {
			l = l.Bin(path)
			log.Debug("Using system browser %s", path)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	poll := opts.PollInterval
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}

	log.Info("Browser launched")
	return &RodSession{launcher: l, browser: b, page: page, poll: poll, log: log}, nil
}

// Navigate loads url and waits for the load event
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	if err := page.WaitLoad(); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	s.log.Debug("Loaded %s", url)
	return nil
}

// WaitForCondition blocks until cond holds or timeout elapses
func (s *RodSession) WaitForCondition(ctx context.Context, cond Condition, timeout time.Duration) error {
	s.log.Debug("Waiting up to %s for %s", timeout, cond)
	return waitFor(ctx, rodProbe{page: s.page}, cond, timeout, s.poll)
}

// Pointer returns an input.Pointer that clicks inside the page through CDP.
func (s *RodSession) Pointer(viewportOrigin image.Point) *Pointer {
	return &Pointer{page: s.page, origin: viewportOrigin}
}

// Close releases the page, the browser and the launcher. Safe to call twice.
func (s *RodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.page != nil {
			_ = s.page.Close()
		}
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		if s.launcher != nil {
			s.launcher.Cleanup()
		}
		s.log.Info("Browser closed")
	})
	return s.closeErr
}

type rodProbe struct {
	page *rod.Page
}

func (p rodProbe) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p rodProbe) HasElement(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

// Pointer delivers mouse events to the page. Screen points are translated
// by the screen position of the page viewport's top-left corner.
type Pointer struct {
	page   *rod.Page
	origin image.Point
}

// MoveTo moves the page mouse to screen point p
func (p *Pointer) MoveTo(pt image.Point) error {
	if p.page == nil {
		return input.ErrInputUnavailable
	}
	local := pt.Sub(p.origin)
	return p.page.Mouse.MoveTo(proto.Point{X: float64(local.X), Y: float64(local.Y)})
}

// Click presses and releases the left button
func (p *Pointer) Click() error {
	if p.page == nil {
		return input.ErrInputUnavailable
	}
	return p.page.Mouse.Click(proto.InputMouseButtonLeft, 1)
}
