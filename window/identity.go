package window

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/kbinani/screenshot"
	"github.com/shirou/gopsutil/v3/process"
)

// CurrentIdentity resolves the identity of the running process. Call it once
// at run start and hand the result to NewInspector.
func CurrentIdentity(ctx context.Context) (Identity, error) {
	pid := os.Getpid()
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Identity{PID: uint32(pid)}, fmt.Errorf("failed to inspect process %d: %w", pid, err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return Identity{PID: uint32(pid)}, fmt.Errorf("failed to resolve process name: %w", err)
	}
	return Identity{PID: uint32(pid), ProcessName: name}, nil
}

// PrimaryDisplayBounds returns the bounds of display 0.
func PrimaryDisplayBounds() (Rect, error) {
	if screenshot.NumActiveDisplays() < 1 {
		return Rect{}, fmt.Errorf("no active display")
	}
	return FromImageRect(screenshot.GetDisplayBounds(0)), nil
}

// FromImageRect converts an image.Rectangle into a Rect.
func FromImageRect(r image.Rectangle) Rect {
	return Rect{
		Left:   int32(r.Min.X),
		Top:    int32(r.Min.Y),
		Right:  int32(r.Max.X),
		Bottom: int32(r.Max.Y),
	}
}
