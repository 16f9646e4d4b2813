package tools

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

// CropperWidget displays a screenshot and lets the user drag out a button region.
type CropperWidget struct {
	widget.BaseWidget

	// State
	originalImg image.Image
	startPos    fyne.Position
	currentPos  fyne.Position
	isDragging  bool

	// UI Elements
	raster    *canvas.Image
	selection *canvas.Rectangle

	// Callback
	OnSelected func(rect image.Rectangle)
}

func NewCropperWidget(img image.Image, onSelected func(image.Rectangle)) *CropperWidget {
	c := &CropperWidget{
		originalImg: img,
		OnSelected:  onSelected,
	}
	c.ExtendBaseWidget(c)

	c.raster = canvas.NewImageFromImage(img)
	c.raster.ScaleMode = canvas.ImageScalePixels // Crucial: no smoothing, templates must stay pixel exact
	c.raster.FillMode = canvas.ImageFillContain

	c.selection = canvas.NewRectangle(color.RGBA{R: 255, G: 0, B: 0, A: 60})
	c.selection.StrokeColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	c.selection.StrokeWidth = 2
	c.selection.Hide()

	return c
}

func (c *CropperWidget) CreateRenderer() fyne.WidgetRenderer {
	return &cropperRenderer{
		cropper: c,
		objects: []fyne.CanvasObject{c.raster, c.selection},
	}
}

// Mouse events
func (c *CropperWidget) Dragged(e *fyne.DragEvent) {
	if !c.isDragging {
		c.isDragging = true
		c.startPos = e.Position.Subtract(e.Dragged)
		c.selection.Show()
	}
	c.currentPos = e.Position
	c.Refresh()
}

func (c *CropperWidget) DragEnd() {
	c.isDragging = false
	c.Refresh()

	if c.OnSelected == nil {
		return
	}
	r := selectionToImage(c.Size(), c.startPos, c.currentPos, c.originalImg.Bounds())
	if !r.Empty() {
		c.OnSelected(r)
	}
}

func (c *CropperWidget) Tapped(e *fyne.PointEvent) {
	c.startPos = e.Position
	c.currentPos = e.Position
	c.selection.Hide()
	c.Refresh()
}

func (c *CropperWidget) Cursor() desktop.Cursor {
	return desktop.CrosshairCursor
}

// containRect is where an image of imgW x imgH lands inside view with
// ImageFillContain: centred, aspect preserved.
func containRect(view fyne.Size, imgW, imgH int) (fyne.Position, fyne.Size) {
	if view.Width <= 0 || view.Height <= 0 || imgW <= 0 || imgH <= 0 {
		return fyne.Position{}, fyne.Size{}
	}

	aspect := float32(imgW) / float32(imgH)
	if view.Width/view.Height > aspect {
		// View is wider: fit height
		w := view.Height * aspect
		return fyne.NewPos((view.Width-w)/2, 0), fyne.NewSize(w, view.Height)
	}
	// View is taller: fit width
	h := view.Width / aspect
	return fyne.NewPos(0, (view.Height-h)/2), fyne.NewSize(view.Width, h)
}

// selectionToImage maps a drag between a and b (widget coordinates) to the
// pixel rectangle of the displayed image, clipped to bounds.
func selectionToImage(view fyne.Size, a, b fyne.Position, bounds image.Rectangle) image.Rectangle {
	off, size := containRect(view, bounds.Dx(), bounds.Dy())
	if size.Width <= 0 || size.Height <= 0 {
		return image.Rectangle{}
	}

	x0 := max(min(a.X, b.X), off.X)
	y0 := max(min(a.Y, b.Y), off.Y)
	x1 := min(max(a.X, b.X), off.X+size.Width)
	y1 := min(max(a.Y, b.Y), off.Y+size.Height)
	if x1 <= x0 || y1 <= y0 {
		return image.Rectangle{}
	}

	scaleX := float32(bounds.Dx()) / size.Width
	scaleY := float32(bounds.Dy()) / size.Height
	r := image.Rect(
		int((x0-off.X)*scaleX),
		int((y0-off.Y)*scaleY),
		int((x1-off.X)*scaleX),
		int((y1-off.Y)*scaleY),
	).Add(bounds.Min)

	// Float math can overshoot by a pixel
	return r.Intersect(bounds)
}

// --- Renderer ---

type cropperRenderer struct {
	cropper *CropperWidget
	objects []fyne.CanvasObject
}

func (r *cropperRenderer) Layout(s fyne.Size) {
	r.objects[0].Resize(s)
	r.objects[0].Move(fyne.NewPos(0, 0))
	r.layoutSelection()
}

func (r *cropperRenderer) layoutSelection() {
	c := r.cropper
	minX := min(c.startPos.X, c.currentPos.X)
	minY := min(c.startPos.Y, c.currentPos.Y)
	maxX := max(c.startPos.X, c.currentPos.X)
	maxY := max(c.startPos.Y, c.currentPos.Y)

	r.objects[1].Move(fyne.NewPos(minX, minY))
	r.objects[1].Resize(fyne.NewSize(maxX-minX, maxY-minY))
}

func (r *cropperRenderer) MinSize() fyne.Size {
	return fyne.NewSize(100, 100)
}

func (r *cropperRenderer) Refresh() {
	r.layoutSelection()
	canvas.Refresh(r.cropper)
}

func (r *cropperRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *cropperRenderer) Destroy() {}
