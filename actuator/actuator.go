// Package actuator turns validated actions into mouse and keyboard input.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/hud"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/toolcall"
)

var ErrUnsupportedAction = errors.New("unsupported action")

const (
	// WheelDelta is the scroll distance of one wheel notch.
	WheelDelta = 120
	// DragSteps is the number of intermediate moves in a drag.
	DragSteps = 10
	// NormalizedMax is the upper bound of model coordinates on both axes.
	NormalizedMax = 1000
)

// Coord maps normalized model coordinates onto a screen of Width x Height.
type Coord struct {
	Width  int
	Height int
}

// ToScreen clamps p into 0..NormalizedMax and scales it to pixels.
func (c Coord) ToScreen(p toolcall.Point) (int, int) {
	return scale(p.X, c.Width), scale(p.Y, c.Height)
}

func scale(v, size int) int {
	if v < 0 {
		v = 0
	}
	if v > NormalizedMax {
		v = NormalizedMax
	}
	return v * size / NormalizedMax
}

// Overlay draws markers where the agent acted. Markers stay up until the
// next action, so the following screenshot shows them.
type Overlay interface {
	ShowMarkers(markers []hud.Marker)
	HideMarkers()
}

type Actuator struct {
	driver  Driver
	coord   Coord
	overlay Overlay
	logger  logger.Logger
	sleep   func(time.Duration)
}

type Option func(*Actuator)

func WithOverlay(o Overlay) Option {
	return func(a *Actuator) {
		a.overlay = o
	}
}

// NewActuator uses the driver's screen size for coordinate mapping.
func NewActuator(driver Driver, log logger.Logger, opts ...Option) *Actuator {
	w, h := driver.ScreenSize()
	a := &Actuator{
		driver: driver,
		coord:  Coord{Width: w, Height: h},
		logger: log,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Actuator) Coord() Coord {
	return a.coord
}

// Execute performs action. Attend moves nothing; it only marks its targets.
func (a *Actuator) Execute(ctx context.Context, action toolcall.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.overlay != nil {
		a.overlay.HideMarkers()
	}

	var markers []hud.Marker
	switch act := action.(type) {
	case toolcall.Click:
		markers = a.click(act.At, "left", false, act.ToolName())
	case toolcall.DoubleClick:
		markers = a.click(act.At, "left", true, act.ToolName())
	case toolcall.RightClick:
		markers = a.click(act.At, "right", false, act.ToolName())
	case toolcall.Drag:
		if err := a.drag(act); err != nil {
			return err
		}
		x, y := a.coord.ToScreen(act.To)
		markers = []hud.Marker{{X: x, Y: y, Label: "drag_end"}}
	case toolcall.TypeText:
		if act.Text != "" {
			a.driver.Type(act.Text)
		}
	case toolcall.Scroll:
		a.driver.Scroll(Notches(act.DY))
	case toolcall.Attend:
		targets := make([]string, 0, len(act.Targets))
		for _, t := range act.Targets {
			x, y := a.coord.ToScreen(t.Point)
			label := hud.MarkerLabel(t.Label, t.X, t.Y)
			markers = append(markers, hud.Marker{X: x, Y: y, Label: label})
			targets = append(targets, fmt.Sprintf("%s@(%d,%d)", label, x, y))
		}
		a.logger.Info(ctx, "attending", map[string]interface{}{
			"targets": targets,
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, action.ToolName())
	}

	if a.overlay != nil && len(markers) > 0 {
		a.overlay.ShowMarkers(markers)
	}
	return nil
}

func (a *Actuator) click(p toolcall.Point, button string, double bool, label string) []hud.Marker {
	x, y := a.moveTo(p)
	a.driver.Click(button, double)
	return []hud.Marker{{X: x, Y: y, Label: label}}
}

func (a *Actuator) moveTo(p toolcall.Point) (int, int) {
	x, y := a.coord.ToScreen(p)
	a.driver.Move(x, y)
	return x, y
}

func (a *Actuator) drag(d toolcall.Drag) error {
	x1, y1 := a.moveTo(d.From)
	x2, y2 := a.coord.ToScreen(d.To)

	if err := a.driver.Toggle("left", true); err != nil {
		return fmt.Errorf("press button: %w", err)
	}
	a.sleep(50 * time.Millisecond)
	for i := 1; i <= DragSteps; i++ {
		a.driver.Move(x1+(x2-x1)*i/DragSteps, y1+(y2-y1)*i/DragSteps)
		a.sleep(10 * time.Millisecond)
	}
	if err := a.driver.Toggle("left", false); err != nil {
		return fmt.Errorf("release button: %w", err)
	}
	return nil
}

// Notches converts a scroll distance into wheel notches, keeping the sign.
// Any non-zero distance scrolls at least one notch.
func Notches(dy int) int {
	if dy == 0 {
		return 0
	}
	n := dy / WheelDelta
	if n < 0 {
		n = -n
	}
	if n == 0 {
		n = 1
	}
	if dy < 0 {
		return -n
	}
	return n
}
