//go:build !windows

package window

import "time"

// noWindowsPlatform reports an empty desktop. Window text introspection is
// only implemented for Win32.
type noWindowsPlatform struct{}

// NewPlatform returns a platform with no windows.
func NewPlatform() Platform {
	return noWindowsPlatform{}
}

func (noWindowsPlatform) TopLevelWindows() []Handle { return nil }
func (noWindowsPlatform) WindowProcessID(Handle) (uint32, error) { return 0, ErrInvalidHandle }
func (noWindowsPlatform) WindowRect(Handle) (Rect, error) { return Rect{}, ErrInvalidHandle }
func (noWindowsPlatform) ClassName(Handle) string { return "" }
func (noWindowsPlatform) Title(Handle) string { return "" }
func (noWindowsPlatform) IsVisible(Handle) bool { return false }
func (noWindowsPlatform) Children(Handle) []Handle { return nil }
func (noWindowsPlatform) QueryText(Handle, time.Duration) (string, error) { return "", ErrInvalidHandle }
