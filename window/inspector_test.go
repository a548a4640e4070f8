package window

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selfPID = 4242

var primary = Rect{Left: 0, Top: 0, Right: 1920, Bottom: 1080}

type fakeWindow struct {
	pid      uint32
	rect     Rect
	class    string
	title    string
	text     string
	textErr  error
	hidden   bool
	block    chan struct{} // QueryText blocks until closed
	children []Handle
}

type fakePlatform struct {
	mu      sync.Mutex
	order   []Handle
	windows map[Handle]*fakeWindow
	queried []Handle
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{windows: map[Handle]*fakeWindow{}}
}

func (p *fakePlatform) addTop(h Handle, w *fakeWindow) {
	p.order = append(p.order, h)
	p.windows[h] = w
}

func (p *fakePlatform) addChild(parent, h Handle, w *fakeWindow) {
	p.windows[h] = w
	p.windows[parent].children = append(p.windows[parent].children, h)
}

func (p *fakePlatform) TopLevelWindows() []Handle { return p.order }

func (p *fakePlatform) WindowProcessID(h Handle) (uint32, error) {
	w, ok := p.windows[h]
	if !ok {
		return 0, ErrInvalidHandle
	}
	return w.pid, nil
}

func (p *fakePlatform) WindowRect(h Handle) (Rect, error) {
	w, ok := p.windows[h]
	if !ok {
		return Rect{}, ErrInvalidHandle
	}
	return w.rect, nil
}

func (p *fakePlatform) ClassName(h Handle) string { return p.windows[h].class }
func (p *fakePlatform) Title(h Handle) string     { return p.windows[h].title }
func (p *fakePlatform) IsVisible(h Handle) bool   { return !p.windows[h].hidden }
func (p *fakePlatform) Children(h Handle) []Handle {
	return p.windows[h].children
}

func (p *fakePlatform) QueryText(h Handle, timeout time.Duration) (string, error) {
	p.mu.Lock()
	p.queried = append(p.queried, h)
	p.mu.Unlock()

	w := p.windows[h]
	if w.block != nil {
		<-w.block
	}
	return w.text, w.textErr
}

func newTestInspector(p Platform, opts ...Option) *Inspector {
	return NewInspector(p, Identity{PID: selfPID, ProcessName: "franz.exe"}, primary, logger.NewTestLogger(), opts...)
}

func TestCaptureProcessWindows_Filters(t *testing.T) {
	p := newFakePlatform()
	p.addTop(1, &fakeWindow{pid: selfPID, rect: Rect{100, 100, 500, 400}, class: "FRANZHUD", title: "FRANZ", text: "FRANZ"})
	p.addTop(2, &fakeWindow{pid: 999, rect: Rect{0, 0, 800, 600}, class: "Notepad", title: "foreign"})
	p.addTop(3, &fakeWindow{pid: selfPID, rect: Rect{2000, 0, 2600, 400}, class: "Secondary", title: "off primary"})
	p.addTop(4, &fakeWindow{pid: selfPID, rect: Rect{-500, -500, 0, 0}, class: "Offscreen", title: "off"})
	p.addTop(5, &fakeWindow{pid: selfPID, rect: Rect{10, 10, 50, 50}, class: "Hidden", hidden: true})
	p.addTop(6, &fakeWindow{pid: selfPID, rect: Rect{1800, 1000, 2200, 1300}, class: "Straddle", title: "partly visible"})

	snaps := newTestInspector(p).CaptureProcessWindows(context.Background())

	require.Len(t, snaps, 2)
	assert.Equal(t, Handle(1), snaps[0].Handle)
	assert.Equal(t, Handle(6), snaps[1].Handle)
	for _, s := range snaps {
		pid, err := p.WindowProcessID(s.Handle)
		require.NoError(t, err)
		assert.Equal(t, uint32(selfPID), pid)
		assert.True(t, s.Rect.Intersects(primary))
	}
	assert.Equal(t, "FRANZHUD", snaps[0].ClassName)
	require.NotNil(t, snaps[0].TopLevelText)
	assert.Equal(t, "FRANZ", *snaps[0].TopLevelText)
}

func TestCaptureProcessWindows_NonRespondingWindowIsBounded(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	p := newFakePlatform()
	p.addTop(1, &fakeWindow{pid: selfPID, rect: Rect{0, 0, 100, 100}, class: "Hung", title: "hung", block: block})
	p.addTop(2, &fakeWindow{pid: selfPID, rect: Rect{0, 0, 100, 100}, class: "Fine", title: "fine", text: "body"})

	timeout := 30 * time.Millisecond
	inspector := newTestInspector(p, WithTextTimeout(timeout))

	start := time.Now()
	snaps := inspector.CaptureProcessWindows(context.Background())
	elapsed := time.Since(start)

	require.Len(t, snaps, 2)
	assert.Nil(t, snaps[0].TopLevelText, "hung window text must be absent")
	require.NotNil(t, snaps[1].TopLevelText)
	assert.Equal(t, "body", *snaps[1].TopLevelText)
	assert.Less(t, elapsed, time.Second)
}

func TestCaptureProcessWindows_TextErrorIsAbsorbed(t *testing.T) {
	p := newFakePlatform()
	p.addTop(1, &fakeWindow{pid: selfPID, rect: Rect{0, 0, 10, 10}, class: "Broken", textErr: errors.New("access denied")})

	snaps := newTestInspector(p).CaptureProcessWindows(context.Background())

	require.Len(t, snaps, 1)
	assert.Nil(t, snaps[0].TopLevelText)
}

func TestCaptureProcessWindows_Children(t *testing.T) {
	p := newFakePlatform()
	p.addTop(1, &fakeWindow{pid: selfPID, rect: Rect{0, 0, 400, 400}, class: "FRANZHUD", title: "FRANZ"})
	p.addChild(1, 10, &fakeWindow{pid: selfPID, class: "RICHEDIT50W", text: "story text"})
	p.addChild(1, 11, &fakeWindow{pid: selfPID, class: "BUTTON", text: "RESUME"})
	p.addChild(1, 12, &fakeWindow{pid: selfPID, class: "Static", text: ""})
	p.addChild(1, 13, &fakeWindow{pid: selfPID, class: "Edit", text: "invisible", hidden: true})
	p.addChild(10, 20, &fakeWindow{pid: selfPID, class: "Nested", text: "grandchild"})

	t.Run("direct children in enumeration order", func(t *testing.T) {
		snaps := newTestInspector(p).CaptureProcessWindows(context.Background())
		require.Len(t, snaps, 1)
		assert.Equal(t, []ChildText{
			{Handle: 10, ClassName: "RICHEDIT50W", Text: "story text"},
			{Handle: 11, ClassName: "BUTTON", Text: "RESUME"},
		}, snaps[0].ChildTexts)
	})

	t.Run("deeper traversal when configured", func(t *testing.T) {
		snaps := newTestInspector(p, WithChildDepth(2)).CaptureProcessWindows(context.Background())
		require.Len(t, snaps, 1)
		require.Len(t, snaps[0].ChildTexts, 3)
		assert.Equal(t, "grandchild", snaps[0].ChildTexts[1].Text)
	})
}

func TestCaptureProcessWindows_CancelledContext(t *testing.T) {
	p := newFakePlatform()
	p.addTop(1, &fakeWindow{pid: selfPID, rect: Rect{0, 0, 10, 10}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, newTestInspector(p).CaptureProcessWindows(ctx))
}

func TestRect_Intersects(t *testing.T) {
	tests := []struct {
		name string
		rect Rect
		want bool
	}{
		{name: "inside", rect: Rect{10, 10, 20, 20}, want: true},
		{name: "covers", rect: Rect{-10, -10, 3000, 3000}, want: true},
		{name: "left of screen", rect: Rect{-100, 0, 0, 100}, want: false},
		{name: "above screen", rect: Rect{0, -100, 100, 0}, want: false},
		{name: "right of screen", rect: Rect{1920, 0, 2000, 100}, want: false},
		{name: "below screen", rect: Rect{0, 1080, 100, 1200}, want: false},
		{name: "degenerate inside", rect: Rect{10, 10, 10, 10}, want: true},
		{name: "straddles edge", rect: Rect{1900, 1000, 2100, 1200}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rect.Intersects(primary))
		})
	}
}

func TestBoundedQuery(t *testing.T) {
	t.Run("returns result in time", func(t *testing.T) {
		text, err := boundedQuery(context.Background(), time.Second, func() (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
	})

	t.Run("times out", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		_, err := boundedQuery(context.Background(), 10*time.Millisecond, func() (string, error) {
			<-release
			return "late", nil
		})
		assert.ErrorIs(t, err, ErrTextQueryTimeout)
	})

	t.Run("context cancellation", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := boundedQuery(ctx, time.Second, func() (string, error) {
			<-release
			return "", nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
