// Package window enumerates the top-level windows owned by the agent's own
// process and extracts their text without blocking on unresponsive UI threads.
package window

import (
	"errors"
	"time"
)

var (
	// ErrTextQueryTimeout is returned when a window does not answer a text
	// query before the deadline. Callers treat it as absent text.
	ErrTextQueryTimeout = errors.New("window text query timed out")

	// ErrInvalidHandle is returned by platforms for handles that no longer exist.
	ErrInvalidHandle = errors.New("invalid window handle")
)

// DefaultTextTimeout bounds every cross-thread text query.
const DefaultTextTimeout = 200 * time.Millisecond

// MaxTextChars is the largest text buffer requested from a window.
const MaxTextChars = 16384

// Handle is an opaque OS window identifier. It is borrowed from the OS and
// never released by this package.
type Handle uintptr

// Rect is a screen-space rectangle. It may be empty.
type Rect struct {
	Left   int32 `json:"left"`
	Top    int32 `json:"top"`
	Right  int32 `json:"right"`
	Bottom int32 `json:"bottom"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

// Intersects reports whether r reaches into bounds. A degenerate rect that
// lies inside bounds counts as intersecting.
func (r Rect) Intersects(bounds Rect) bool {
	return r.Right > bounds.Left &&
		r.Bottom > bounds.Top &&
		r.Left < bounds.Right &&
		r.Top < bounds.Bottom
}

// ChildText is the text of one visible child control.
type ChildText struct {
	Handle    Handle `json:"handle"`
	ClassName string `json:"class_name"`
	Rect      Rect   `json:"rect"`
	Text      string `json:"text"`
}

// Snapshot describes one top-level window at capture time. Snapshots are
// built fresh every turn and never mutated afterwards.
type Snapshot struct {
	Handle       Handle      `json:"handle"`
	ClassName    string      `json:"class_name"`
	Rect         Rect        `json:"rect"`
	Title        string      `json:"title"`
	TopLevelText *string     `json:"top_level_text,omitempty"`
	ChildTexts   []ChildText `json:"child_texts,omitempty"`
}

// Identity is the process identity the inspector filters on. It is resolved
// once per run and passed in explicitly.
type Identity struct {
	PID         uint32
	ProcessName string
}

// Platform is the raw OS windowing surface.
type Platform interface {
	// TopLevelWindows returns every top-level window in OS enumeration order.
	TopLevelWindows() []Handle

	// WindowProcessID returns the id of the process that owns h.
	WindowProcessID(h Handle) (uint32, error)

	WindowRect(h Handle) (Rect, error)
	ClassName(h Handle) string
	Title(h Handle) string
	IsVisible(h Handle) bool

	// Children returns the direct child controls of h in enumeration order.
	Children(h Handle) []Handle

	// QueryText asks the thread owning h for the window's text. It may block;
	// the inspector always calls it through a deadline.
	QueryText(h Handle, timeout time.Duration) (string, error)
}
