// Package capture takes screenshots, scales them to the model resolution and
// stores them under sequential step names.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sort"
	"strings"
	"sync"

	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/storage"
	"github.com/kbinani/screenshot"
	"golang.org/x/image/draw"
)

var (
	ErrUnknownPreset = errors.New("unknown resolution preset")
	ErrNoDisplay     = errors.New("no active display")
)

// Preset is the resolution images are scaled to before they reach the model.
type Preset struct {
	Name   string
	Width  int
	Height int
}

var presets = map[string]Preset{
	"low":  {Name: "low", Width: 512, Height: 288},
	"med":  {Name: "med", Width: 1024, Height: 576},
	"high": {Name: "high", Width: 1536, Height: 864},
}

// DefaultPreset is used when no resolution is configured.
const DefaultPreset = "high"

func ParsePreset(name string) (Preset, error) {
	if name == "" {
		name = DefaultPreset
	}
	p, ok := presets[strings.ToLower(name)]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownPreset, name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Grabber reads raw pixels from the screen.
type Grabber interface {
	// Bounds returns the primary display rectangle.
	Bounds() (image.Rectangle, error)
	Grab(rect image.Rectangle) (*image.RGBA, error)
}

type screenGrabber struct{}

// NewScreenGrabber grabs pixels from the real displays.
func NewScreenGrabber() Grabber {
	return screenGrabber{}
}

func (screenGrabber) Bounds() (image.Rectangle, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return image.Rectangle{}, ErrNoDisplay
	}
	return screenshot.GetDisplayBounds(0), nil
}

func (screenGrabber) Grab(rect image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(rect)
}

// Capturer produces one stepNNN.png per call.
type Capturer struct {
	grabber Grabber
	store   storage.BlobStorage
	preset  Preset
	logger  logger.Logger

	mu   sync.Mutex
	step int
	last []byte
}

func NewCapturer(grabber Grabber, store storage.BlobStorage, preset Preset, log logger.Logger) *Capturer {
	return &Capturer{
		grabber: grabber,
		store:   store,
		preset:  preset,
		logger:  log,
	}
}

// StepName is the stored file name for a step.
func StepName(step int) string {
	return fmt.Sprintf("step%03d.png", step)
}

// Capture grabs region (the primary display when region is empty), scales it
// to the preset and stores it. The name is only returned once the upload has
// completed.
func (c *Capturer) Capture(ctx context.Context, region image.Rectangle) (string, error) {
	if region.Empty() {
		bounds, err := c.grabber.Bounds()
		if err != nil {
			return "", fmt.Errorf("resolve capture region: %w", err)
		}
		region = bounds
	}

	src, err := c.grabber.Grab(region)
	if err != nil {
		return "", fmt.Errorf("grab screen %v: %w", region, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Downsample(src, c.preset.Width, c.preset.Height)); err != nil {
		return "", fmt.Errorf("encode screenshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	name := StepName(c.step + 1)
	if err := c.store.Upload(ctx, name, bytes.NewReader(buf.Bytes())); err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	c.step++
	c.last = buf.Bytes()

	c.logger.Debug(ctx, "screenshot stored", map[string]interface{}{
		"image":  name,
		"source": fmt.Sprintf("%dx%d", region.Dx(), region.Dy()),
		"size":   buf.Len(),
	})
	return name, nil
}

func (c *Capturer) LastImage() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Downsample scales src to exactly width x height. src is returned untouched
// when it already has that size.
func Downsample(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() == width && b.Dy() == height) {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
