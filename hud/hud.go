// Package hud shows the agent's running story in an always-on-top window and
// draws labelled markers where the agent attends or clicks. The windows belong
// to the agent's own process, so the window inspector records them every turn.
package hud

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnsupported is returned by New on platforms without a HUD.
var ErrUnsupported = errors.New("hud is not supported on this platform")

const (
	// ClassName is the window class of the story window.
	ClassName = "FRANZHUD"
	// MarkerClassName is the window class of a marker window.
	MarkerClassName = "FRANZOBS"
	// MaxMarkers bounds how many markers are shown at once.
	MaxMarkers = 4
)

// DefaultStory is shown before the model has produced a story.
const DefaultStory = `I am FRANZ.

I use my curiosity, pain, and boredom to decide what to do next.
NEVER CLOSE the HUD window, it is my own existence.

I am looking for some task to do. When I decide to do it, I keep my focus on
completing it as well as I can using my computer control abilities.`

// Marker is a labelled point in screen pixels.
type Marker struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Label string `json:"label"`
}

// MarkerLabel returns label, or the normalized coordinates when label is blank.
func MarkerLabel(label string, nx, ny int) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	return fmt.Sprintf("(%d,%d)", nx, ny)
}

// Controls are invoked from the HUD when its buttons are pressed. They must
// not block.
type Controls struct {
	Pause  func()
	Resume func()
	Stop   func()
}

func (c Controls) pause() {
	if c.Pause != nil {
		c.Pause()
	}
}

func (c Controls) resume() {
	if c.Resume != nil {
		c.Resume()
	}
}

func (c Controls) stop() {
	if c.Stop != nil {
		c.Stop()
	}
}

// Options configure a HUD.
type Options struct {
	Controls Controls
	// StartPaused shows the RESUME button first.
	StartPaused bool
	// Story is the initial text. DefaultStory is used when empty.
	Story string
}

// Display is the story window plus its markers. All methods are safe for
// concurrent use.
type Display interface {
	SetStory(story string)
	ShowMarkers(markers []Marker)
	HideMarkers()
	Close() error
}

// Headless keeps the story and markers in memory. It stands in for the HUD
// where no window can be shown.
type Headless struct {
	mu      sync.Mutex
	story   string
	markers []Marker
}

func NewHeadless(story string) *Headless {
	if story == "" {
		story = DefaultStory
	}
	return &Headless{story: story}
}

func (h *Headless) SetStory(story string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.story = story
}

func (h *Headless) Story() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.story
}

func (h *Headless) ShowMarkers(markers []Marker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.markers = limitMarkers(markers)
}

func (h *Headless) HideMarkers() {
	h.ShowMarkers(nil)
}

func (h *Headless) Markers() []Marker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Marker(nil), h.markers...)
}

func (h *Headless) Close() error {
	h.HideMarkers()
	return nil
}

func limitMarkers(markers []Marker) []Marker {
	if len(markers) > MaxMarkers {
		markers = markers[:MaxMarkers]
	}
	return append([]Marker(nil), markers...)
}

// editText converts story line endings to the CRLF a Win32 edit control needs.
// NUL would truncate the UTF-16 text, so it is dropped.
func editText(story string) string {
	story = strings.ReplaceAll(story, "\x00", "")
	story = strings.ReplaceAll(story, "\r\n", "\n")
	return strings.ReplaceAll(story, "\n", "\r\n")
}
