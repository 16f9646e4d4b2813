package input

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
)

// RobotPointer drives the OS pointer through robotgo. Points are global
// screen coordinates, the same space frames are captured in.
type RobotPointer struct{}

// NewRobotPointer creates an OS-level pointer
func NewRobotPointer() *RobotPointer {
	return &RobotPointer{}
}

func (r *RobotPointer) available() error {
	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: no screen reported by robotgo", ErrInputUnavailable)
	}
	return nil
}

// MoveTo moves the pointer to p
func (r *RobotPointer) MoveTo(p image.Point) error {
	if err := r.available(); err != nil {
		return err
	}
	robotgo.MoveMouse(p.X, p.Y)
	return nil
}

// Click issues a left click at the current position
func (r *RobotPointer) Click() error {
	if err := r.available(); err != nil {
		return err
	}
	robotgo.Click("left")
	return nil
}
