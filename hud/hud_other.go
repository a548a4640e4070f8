//go:build !windows

package hud

import "github.com/hairizuan-noorazman/desktop-agent/logger"

// New reports ErrUnsupported; callers fall back to a Headless display.
func New(opts Options, log logger.Logger) (Display, error) {
	return nil, ErrUnsupported
}
