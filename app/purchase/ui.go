package purchase

import (
	"context"
	"fmt"

	"github.com/kbinani/screenshot"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/widget"

	"github.com/ConserveLee/snapbuy/internal/config"
	"github.com/ConserveLee/snapbuy/internal/logger"
)

// NewPurchasePanel creates the UI panel for a timed purchase
func NewPurchasePanel(cfg *config.Config, configPath string) fyne.CanvasObject {
	// --- Data Binding ---
	logData := binding.NewStringList()
	statusData := binding.NewString()
	_ = statusData.Set("Status: Ready")

	appLogger := logger.NewAppLogger(logData, cfg.DebugMode)

	// --- UI Components ---

	// 1. Screen Selector
	numDisplays := screenshot.NumActiveDisplays()
	var displayOptions []string
	for i := 0; i < numDisplays; i++ {
		bounds := screenshot.GetDisplayBounds(i)
		displayOptions = append(displayOptions, fmt.Sprintf("Display %d (%dx%d)", i, bounds.Dx(), bounds.Dy()))
	}
	if len(displayOptions) == 0 {
		displayOptions = []string{"Display 0 (Default)"}
	}

	displaySelect := widget.NewSelect(displayOptions, func(selected string) {
		var id int
		if _, err := fmt.Sscanf(selected, "Display %d", &id); err != nil {
			id = 0
		}
		cfg.Capture.DisplayID = id
	})
	if cfg.Capture.DisplayID < len(displayOptions) {
		displaySelect.SetSelected(displayOptions[cfg.Capture.DisplayID])
	} else {
		displaySelect.SetSelected(displayOptions[0])
	}

	// 2. Target time
	timeEntry := widget.NewEntry()
	timeEntry.SetPlaceHolder("2025-04-19 22:28:33")
	timeEntry.SetText(cfg.TargetTime)

	syncCheck := widget.NewCheck("Sync clock with shop server", func(on bool) {
		cfg.Scheduler.TimeSync = on
	})
	syncCheck.SetChecked(cfg.Scheduler.TimeSync)

	// 3. Status & Logs
	statusLabel := widget.NewLabelWithData(statusData)
	statusLabel.TextStyle = fyne.TextStyle{Bold: true}

	logList := widget.NewListWithData(
		logData,
		func() fyne.CanvasObject { return widget.NewLabel("Log entry template") },
		func(i binding.DataItem, o fyne.CanvasObject) { o.(*widget.Label).Bind(i.(binding.String)) },
	)

	// Auto-scroll
	logData.AddListener(binding.NewDataListener(func() {
		list, _ := logData.Get()
		if len(list) > 0 {
			logList.ScrollToBottom()
		}
	}))

	// 4. Buttons
	startBtn := widget.NewButton("Start", nil)
	stopBtn := widget.NewButton("Stop", nil)
	stopBtn.Disable()

	var cancel context.CancelFunc

	setIdle := func() {
		cancel = nil
		stopBtn.Disable()
		startBtn.Enable()
		displaySelect.Enable()
		timeEntry.Enable()
		syncCheck.Enable()
	}

	startBtn.OnTapped = func() {
		cfg.TargetTime = timeEntry.Text
		if err := cfg.Validate(); err != nil {
			appLogger.Error("%v", err)
			_ = statusData.Set("Status: Invalid config")
			return
		}
		if err := cfg.Save(configPath); err != nil {
			appLogger.Warn("Could not save %s: %v", configPath, err)
		}

		ctx, runCancel := context.WithCancel(context.Background())
		cancel = runCancel

		_ = statusData.Set("Status: Starting")
		startBtn.Disable()
		stopBtn.Enable()
		displaySelect.Disable()
		timeEntry.Disable()
		syncCheck.Disable()

		go func() {
			defer runCancel()
			final, err := run(ctx, cfg, appLogger, func(s State) {
				fyne.Do(func() { _ = statusData.Set("Status: " + s.String()) })
			})
			fyne.Do(func() {
				if err != nil {
					_ = statusData.Set(fmt.Sprintf("Status: %s (%v)", final, err))
				}
				setIdle()
			})
		}()
	}

	stopBtn.OnTapped = func() {
		if cancel != nil {
			appLogger.Info("Stopping...")
			cancel()
		}
		stopBtn.Disable()
	}

	// --- Layout ---
	controls := container.NewVBox(
		widget.NewLabel("Timed purchase:"),
		container.NewHBox(widget.NewLabel("Screen:"), displaySelect),
		container.NewBorder(nil, nil, widget.NewLabel("Buy at:"), nil, timeEntry),
		syncCheck,
		statusLabel,
		container.NewHBox(startBtn, stopBtn),
		widget.NewSeparator(),
		widget.NewLabel("Log:"),
	)

	return container.NewBorder(controls, nil, nil, nil, logList)
}

// run launches a session for cfg and drives it to a terminal state.
func run(ctx context.Context, cfg *config.Config, log *logger.AppLogger, onState func(State)) (State, error) {
	bot, err := Launch(ctx, cfg, log)
	if err != nil {
		log.Error("Startup failed: %v", err)
		return StateFailed, err
	}
	bot.OnStateChange(onState)
	return bot.Run(ctx)
}
