package tools

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/kbinani/screenshot"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/ConserveLee/snapbuy/internal/config"
	"github.com/ConserveLee/snapbuy/internal/engine/screen"
)

// NewToolsPanel creates the template capture panel. Cropped regions are
// saved under the file names the config assigns to each template.
func NewToolsPanel(win fyne.Window, cfg *config.Config) fyne.CanvasObject {
	selectedDisplay := cfg.Capture.DisplayID

	options := displayOptions()
	displaySelect := widget.NewSelect(options, func(selected string) {
		var id int
		if _, err := fmt.Sscanf(selected, "Display %d", &id); err == nil {
			selectedDisplay = id
		}
	})
	if selectedDisplay < len(options) {
		displaySelect.SetSelected(options[selectedDisplay])
	} else {
		displaySelect.SetSelected(options[0])
	}

	infoLabel := widget.NewLabel("1. Open the shop page on the chosen screen\n2. Capture & Crop\n3. Drag a box around the button\n4. Save it as login / cart / buy")
	infoLabel.Alignment = fyne.TextAlignCenter

	cropBtn := widget.NewButton("Capture & Crop", func() {
		bounds := screenshot.GetDisplayBounds(selectedDisplay)
		img, err := screenshot.CaptureRect(bounds)
		if err != nil {
			dialog.ShowError(err, win)
			return
		}
		showCropperWindow(cfg, img)
	})
	cropBtn.Importance = widget.HighImportance

	openDirBtn := widget.NewButton("Open Templates Folder", func() {
		if err := os.MkdirAll(cfg.TemplatesDir, 0755); err != nil {
			dialog.ShowError(err, win)
			return
		}
		openDir(cfg.TemplatesDir)
	})

	return container.NewVBox(
		widget.NewLabel("Screen:"),
		displaySelect,
		widget.NewSeparator(),
		infoLabel,
		layoutSpacer(),
		cropBtn,
		layoutSpacer(),
		widget.NewSeparator(),
		openDirBtn,
	)
}

// displayOptions lists the active displays for a Select
func displayOptions() []string {
	var options []string
	for i := 0; i < screenshot.NumActiveDisplays(); i++ {
		bounds := screenshot.GetDisplayBounds(i)
		options = append(options, fmt.Sprintf("Display %d (%dx%d)", i, bounds.Dx(), bounds.Dy()))
	}
	if len(options) == 0 {
		options = []string{"Display 0 (Default)"}
	}
	return options
}

func layoutSpacer() fyne.CanvasObject {
	return widget.NewLabel("")
}

func openDir(path string) {
	var cmd *exec.Cmd
	absPath, _ := filepath.Abs(path)

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", absPath)
	case "windows":
		cmd = exec.Command("explorer", absPath)
	default:
		cmd = exec.Command("xdg-open", absPath)
	}
	_ = cmd.Start()
}

func showCropperWindow(cfg *config.Config, fullImg image.Image) {
	w := fyne.CurrentApp().NewWindow("Crop Template")
	w.Resize(fyne.NewSize(800, 600))

	lbl := widget.NewLabel("Drag a box around the button...")
	lbl.Alignment = fyne.TextAlignCenter

	saveBtn := widget.NewButton("Save Selection", nil)
	saveBtn.Disable()

	var currentSelection image.Rectangle

	cropper := NewCropperWidget(fullImg, func(rect image.Rectangle) {
		currentSelection = rect
		lbl.SetText(fmt.Sprintf("Selected %dx%d at (%d, %d)", rect.Dx(), rect.Dy(), rect.Min.X, rect.Min.Y))
		saveBtn.Enable()
	})

	saveBtn.OnTapped = func() {
		if currentSelection.Empty() {
			return
		}
		sub, ok := fullImg.(interface {
			SubImage(r image.Rectangle) image.Image
		})
		if !ok {
			dialog.ShowError(fmt.Errorf("image type does not support cropping"), w)
			return
		}
		showSaveForm(w, cfg, sub.SubImage(currentSelection))
	}

	w.SetContent(container.NewBorder(nil, container.NewVBox(lbl, saveBtn), nil, nil, cropper))
	w.Show()
}

func showSaveForm(win fyne.Window, cfg *config.Config, img image.Image) {
	preview := canvas.NewImageFromImage(img)
	preview.FillMode = canvas.ImageFillContain
	preview.SetMinSize(fyne.NewSize(100, 100))

	names := templateNames(cfg)
	pathLabel := widget.NewLabel("")
	nameSelect := widget.NewSelect(names, func(name string) {
		pathLabel.SetText(templatePath(cfg, name))
	})
	if len(names) > 0 {
		nameSelect.SetSelected(names[0])
	}

	content := container.NewVBox(
		widget.NewLabel("Save this template?"),
		container.NewCenter(preview),
		widget.NewLabel("Template:"),
		nameSelect,
		pathLabel,
	)

	dialog.ShowCustomConfirm("Save Template", "Save", "Cancel", content, func(confirm bool) {
		if !confirm || nameSelect.Selected == "" {
			return
		}
		path := templatePath(cfg, nameSelect.Selected)
		if err := saveTemplate(path, img); err != nil {
			dialog.ShowError(err, win)
			return
		}
		dialog.ShowInformation("Saved", fmt.Sprintf("%s -> %s", nameSelect.Selected, path), win)
	}, win)
}

// templateNames returns the configured template names, sorted
func templateNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Templates))
	for name := range cfg.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func templatePath(cfg *config.Config, name string) string {
	return filepath.Join(cfg.TemplatesDir, cfg.Templates[name])
}

// saveTemplate writes img as PNG, creating the directory and replacing any
// previous capture. The result is checked to load as a template.
func saveTemplate(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	saved, err := screen.LoadImage(path)
	if err != nil {
		return err
	}
	_, err = screen.NewTemplate(filepath.Base(path), saved)
	return err
}
