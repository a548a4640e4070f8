package window

import (
	"context"
	"errors"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/logger"
)

// Inspector captures the windows belonging to one process.
type Inspector struct {
	platform    Platform
	identity    Identity
	bounds      Rect
	textTimeout time.Duration
	childDepth  int
	logger      logger.Logger
}

// Option customises an Inspector.
type Option func(*Inspector)

// WithTextTimeout overrides DefaultTextTimeout.
func WithTextTimeout(d time.Duration) Option {
	return func(i *Inspector) {
		if d > 0 {
			i.textTimeout = d
		}
	}
}

// WithChildDepth sets how many levels of child controls are visited.
// 1 (the default) visits only the direct children of each top-level window.
func WithChildDepth(depth int) Option {
	return func(i *Inspector) {
		if depth >= 0 {
			i.childDepth = depth
		}
	}
}

// NewInspector creates an inspector that keeps windows owned by identity.PID
// and intersecting primary.
func NewInspector(platform Platform, identity Identity, primary Rect, log logger.Logger, opts ...Option) *Inspector {
	i := &Inspector{
		platform:    platform,
		identity:    identity,
		bounds:      primary,
		textTimeout: DefaultTextTimeout,
		childDepth:  1,
		logger:      log,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// CaptureProcessWindows returns one Snapshot per visible top-level window of
// the current process that intersects the primary display. It never fails:
// text that cannot be read in time is reported as absent.
func (i *Inspector) CaptureProcessWindows(ctx context.Context) []Snapshot {
	var (
		snapshots []Snapshot
		timeouts  int
	)

	for _, h := range i.platform.TopLevelWindows() {
		if ctx.Err() != nil {
			break
		}
		if !i.platform.IsVisible(h) {
			continue
		}
		pid, err := i.platform.WindowProcessID(h)
		if err != nil || pid != i.identity.PID {
			continue
		}
		rect, err := i.platform.WindowRect(h)
		if err != nil || !rect.Intersects(i.bounds) {
			continue
		}

		snap := Snapshot{
			Handle:    h,
			ClassName: i.platform.ClassName(h),
			Rect:      rect,
			Title:     i.platform.Title(h),
		}

		text, err := i.queryText(ctx, h)
		switch {
		case errors.Is(err, ErrTextQueryTimeout):
			timeouts++
		case err == nil:
			snap.TopLevelText = &text
		}

		snap.ChildTexts, timeouts = i.collectChildren(ctx, h, 1, nil, timeouts)
		snapshots = append(snapshots, snap)
	}

	if timeouts > 0 {
		i.logger.Debug(ctx, "window text queries abandoned", map[string]interface{}{
			"count":   timeouts,
			"timeout": i.textTimeout.String(),
		})
	}
	return snapshots
}

func (i *Inspector) collectChildren(ctx context.Context, parent Handle, depth int, acc []ChildText, timeouts int) ([]ChildText, int) {
	if depth > i.childDepth {
		return acc, timeouts
	}
	for _, ch := range i.platform.Children(parent) {
		if ctx.Err() != nil {
			return acc, timeouts
		}
		if !i.platform.IsVisible(ch) {
			continue
		}
		text, err := i.queryText(ctx, ch)
		if errors.Is(err, ErrTextQueryTimeout) {
			timeouts++
		}
		if err == nil && text != "" {
			rect, _ := i.platform.WindowRect(ch)
			acc = append(acc, ChildText{
				Handle:    ch,
				ClassName: i.platform.ClassName(ch),
				Rect:      rect,
				Text:      text,
			})
		}
		acc, timeouts = i.collectChildren(ctx, ch, depth+1, acc, timeouts)
	}
	return acc, timeouts
}

func (i *Inspector) queryText(ctx context.Context, h Handle) (string, error) {
	return boundedQuery(ctx, i.textTimeout, func() (string, error) {
		return i.platform.QueryText(h, i.textTimeout)
	})
}

// boundedQuery runs fn and waits at most timeout for it. A call that misses
// the deadline is abandoned; its eventual result is dropped.
func boundedQuery(ctx context.Context, timeout time.Duration, fn func() (string, error)) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := fn()
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.text, r.err
	case <-timer.C:
		return "", ErrTextQueryTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
