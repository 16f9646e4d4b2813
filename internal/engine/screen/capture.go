package screen

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
)

// Frame is a single pixel snapshot of the display.
type Frame struct {
	Pixels     *image.RGBA
	Origin     image.Point // Screen coordinate of pixel (0,0)
	CapturedAt time.Time
}

// Width of the frame in pixels
func (f *Frame) Width() int { return f.Pixels.Bounds().Dx() }

// Height of the frame in pixels
func (f *Frame) Height() int { return f.Pixels.Bounds().Dy() }

// ToScreen converts a frame-local point into a screen coordinate.
func (f *Frame) ToScreen(p image.Point) image.Point {
	return f.Origin.Add(p)
}

// NewFrame wraps an arbitrary image as a frame, normalising it to RGBA with
// bounds starting at (0,0). origin is the screen position of its top-left.
func NewFrame(img image.Image, origin image.Point, at time.Time) *Frame {
	return &Frame{Pixels: toRGBA(img), Origin: origin, CapturedAt: at}
}

// Capturer produces frames of the live display.
type Capturer interface {
	Capture(region image.Rectangle) (*Frame, error)
}

// Searcher handles screen capturing on one display
type Searcher struct {
	mu           sync.Mutex
	displayIndex int
}

// NewSearcher creates a new instance
func NewSearcher() *Searcher {
	return &Searcher{
		displayIndex: 0, // Default to main display
	}
}

// SetDisplayID sets the target display index for capturing
func (s *Searcher) SetDisplayID(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayIndex = index
}

// DisplayID returns the display being captured
func (s *Searcher) DisplayID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayIndex
}

// DisplayBounds returns the bounds of the selected display in screen coordinates.
func (s *Searcher) DisplayBounds() image.Rectangle {
	return screenshot.GetDisplayBounds(s.DisplayID())
}

// Capture grabs a fresh frame. An empty region captures the whole display;
// otherwise region is given relative to the display's top-left corner.
func (s *Searcher) Capture(region image.Rectangle) (*Frame, error) {
	display := s.DisplayBounds()
	rect, err := captureRect(region, display)
	if err != nil {
		return nil, fmt.Errorf("display %d: %w", s.DisplayID(), err)
	}

	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen %d: %w", s.DisplayID(), err)
	}
	return &Frame{Pixels: toRGBA(img), Origin: rect.Min, CapturedAt: time.Now()}, nil
}

// captureRect maps a display-relative region onto screen coordinates,
// clipped to the display.
func captureRect(region, display image.Rectangle) (image.Rectangle, error) {
	if region.Empty() {
		return display, nil
	}
	rect := region.Add(display.Min).Intersect(display)
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("capture region %v is outside display %v", region, display)
	}
	return rect, nil
}

// SaveFrame writes the frame's pixels as PNG.
func SaveFrame(path string, f *Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, f.Pixels); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// toRGBA returns img as *image.RGBA with bounds at the origin, copying only when needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
