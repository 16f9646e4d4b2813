package purchase

import (
	"context"
	"fmt"
	"image"

	"github.com/ConserveLee/snapbuy/internal/browser"
	"github.com/ConserveLee/snapbuy/internal/config"
	"github.com/ConserveLee/snapbuy/internal/engine"
	"github.com/ConserveLee/snapbuy/internal/engine/input"
	"github.com/ConserveLee/snapbuy/internal/engine/schedule"
	"github.com/ConserveLee/snapbuy/internal/engine/screen"
	"github.com/ConserveLee/snapbuy/internal/logger"
)

// Launch validates cfg, loads the templates, starts the browser and wires a
// ready-to-run Bot.
func Launch(ctx context.Context, cfg *config.Config, log *logger.AppLogger) (*Bot, error) {
	if log == nil {
		log = logger.Nop()
	}

	plan, err := PlanFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store := screen.NewTemplateStore()
	if err := store.LoadDir(cfg.TemplatesDir, requiredTemplates(cfg, plan)); err != nil {
		return nil, err
	}
	log.Info("Loaded templates: %v", store.Names())

	waiter, err := newScheduler(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	session, err := browser.Launch(browser.Options{
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.ProfilePath,
		Bin:         cfg.Browser.Bin,
	}, log)
	if err != nil {
		return nil, err
	}

	var pointer input.Pointer
	switch cfg.InputMode {
	case config.InputBrowser:
		pointer = session.Pointer(image.Pt(cfg.Browser.ViewportX, cfg.Browser.ViewportY))
	default:
		pointer = input.NewRobotPointer()
	}
	dispatcher := input.NewDispatcher(pointer, input.HumanizeConfig{
		Jitter:   cfg.Click.Jitter,
		PauseMin: cfg.Click.PauseMin,
		PauseMax: cfg.Click.PauseMax,
	}, nil)

	searcher := screen.NewSearcher()
	searcher.SetDisplayID(cfg.Capture.DisplayID)

	clicker := engine.NewClicker(searcher, store, dispatcher, log)
	clicker.SetRegion(cfg.Capture.Region())
	if cfg.DebugMode {
		clicker.SetDebugDir(".")
	}

	return NewBot(plan, session, clicker, waiter, log), nil
}

// requiredTemplates picks the template files a run will actually match.
// cart_btn is only needed when the cart is reached by clicking.
func requiredTemplates(cfg *config.Config, plan Plan) map[string]string {
	names := []string{plan.LoginTemplate, plan.CheckoutTemplate, plan.ConfirmTemplate}
	if plan.CartURL == "" {
		names = append(names, plan.CartTemplate)
	}
	files := make(map[string]string, len(names))
	for _, name := range names {
		files[name] = cfg.Templates[name]
	}
	return files
}

func newScheduler(ctx context.Context, cfg *config.Config, log *logger.AppLogger) (*schedule.Scheduler, error) {
	s := schedule.NewScheduler(log)
	s.PollInterval = cfg.Scheduler.PollInterval
	s.Tolerance = cfg.Scheduler.Tolerance

	if !cfg.Scheduler.TimeSync {
		return s, nil
	}

	ts := schedule.NewTimeSync(cfg.Scheduler.TimeServers, log)
	if err := ts.Sync(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Time sync failed, using local clock: %v", err)
		return s, nil
	}
	s.Clock = ts
	return s, nil
}
