//go:build windows

package window

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	wmGetText       = 0x000D
	smtoBlock       = 0x0001
	smtoAbortIfHung = 0x0002
	gaParent        = 1
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procEnumChildWindows         = user32.NewProc("EnumChildWindows")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	procGetWindowRect            = user32.NewProc("GetWindowRect")
	procGetClassNameW            = user32.NewProc("GetClassNameW")
	procGetWindowTextLengthW     = user32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetAncestor              = user32.NewProc("GetAncestor")
	procSendMessageTimeoutW      = user32.NewProc("SendMessageTimeoutW")
)

// EnumWindows callbacks are a scarce resource, so a single callback is
// created for the process and fed through a mutex-guarded accumulator.
var (
	enumMu       sync.Mutex
	enumAcc      []Handle
	enumCallback = windows.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		enumAcc = append(enumAcc, Handle(hwnd))
		return 1
	})
)

type win32Platform struct{}

// NewPlatform returns the Win32 platform.
func NewPlatform() Platform {
	return win32Platform{}
}

func (win32Platform) TopLevelWindows() []Handle {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumAcc = nil
	procEnumWindows.Call(enumCallback, 0)
	out := enumAcc
	enumAcc = nil
	return out
}

func (win32Platform) WindowProcessID(h Handle) (uint32, error) {
	var pid uint32
	tid, _, err := procGetWindowThreadProcessID.Call(uintptr(h), uintptr(unsafe.Pointer(&pid)))
	if tid == 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	return pid, nil
}

func (win32Platform) WindowRect(h Handle) (Rect, error) {
	var r Rect
	ok, _, err := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&r)))
	if ok == 0 {
		return Rect{}, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	return r, nil
}

func (win32Platform) ClassName(h Handle) string {
	buf := make([]uint16, 256)
	n, _, _ := procGetClassNameW.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

func (win32Platform) Title(h Handle) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(h))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	copied, _, _ := procGetWindowTextW.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:copied])
}

func (win32Platform) IsVisible(h Handle) bool {
	ok, _, _ := procIsWindowVisible.Call(uintptr(h))
	return ok != 0
}

func (win32Platform) Children(h Handle) []Handle {
	enumMu.Lock()
	enumAcc = nil
	procEnumChildWindows.Call(uintptr(h), enumCallback, 0)
	all := enumAcc
	enumAcc = nil
	enumMu.Unlock()

	// EnumChildWindows walks the whole subtree; keep direct children only.
	direct := make([]Handle, 0, len(all))
	for _, ch := range all {
		parent, _, _ := procGetAncestor.Call(uintptr(ch), gaParent)
		if Handle(parent) == h {
			direct = append(direct, ch)
		}
	}
	return direct
}

// QueryText sends WM_GETTEXT with SMTO_ABORTIFHUNG so a hung owner thread
// fails fast instead of blocking the caller.
func (win32Platform) QueryText(h Handle, timeout time.Duration) (string, error) {
	buf := make([]uint16, MaxTextChars)
	var result uintptr
	ok, _, err := procSendMessageTimeoutW.Call(
		uintptr(h),
		wmGetText,
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&buf[0])),
		smtoBlock|smtoAbortIfHung,
		uintptr(timeout.Milliseconds()),
		uintptr(unsafe.Pointer(&result)),
	)
	if ok == 0 {
		if err == windows.ERROR_TIMEOUT {
			return "", ErrTextQueryTimeout
		}
		return "", fmt.Errorf("WM_GETTEXT failed: %v", err)
	}
	return windows.UTF16ToString(buf), nil
}
