//go:build windows

package hud

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"golang.org/x/sys/windows"
)

const (
	wsOverlapped    = 0x00000000
	wsMinimizeBox   = 0x00020000
	wsThickFrame    = 0x00040000
	wsSysMenu       = 0x00080000
	wsVScroll       = 0x00200000
	wsBorder        = 0x00800000
	wsCaption       = 0x00C00000
	wsVisible       = 0x10000000
	wsChild         = 0x40000000
	wsPopup         = 0x80000000
	wsExTopmost     = 0x00000008
	wsExTransparent = 0x00000020
	wsExToolWindow  = 0x00000080
	wsExLayered     = 0x00080000
	wsExNoActivate  = 0x08000000

	esMultiline   = 0x0004
	esAutoVScroll = 0x0040
	esReadOnly    = 0x0800

	wmDestroy     = 0x0002
	wmSize        = 0x0005
	wmClose       = 0x0010
	wmSetFont     = 0x0030
	wmCommand     = 0x0111
	emSetReadOnly = 0x00CF
	wmApp         = 0x8000

	msgStory   = wmApp + 1
	msgMarkers = wmApp + 2
	msgClose   = wmApp + 3

	idPause = 1001
	idStop  = 1002

	csVRedraw        = 0x0001
	csHRedraw        = 0x0002
	colorWindow      = 5
	colorInfoBk      = 24
	idcArrow         = 32512
	defaultGUIFont   = 17
	smCxScreen       = 0
	smCyScreen       = 1
	swShowNoActivate = 4
	swpNoSize        = 0x0001
	swpNoMove        = 0x0002
	swpNoActivate    = 0x0010
	swpShowWindow    = 0x0040
	lwaAlpha         = 0x2

	hudMinWidth     = 360
	hudMinHeight    = 260
	markerMinWidth  = 80
	markerMinHeight = 60
	// markers are drawn at 60% opacity
	markerAlpha = 153
)

const errClassAlreadyExists = syscall.Errno(1410)

// hwndTopmost is HWND_TOPMOST, (HWND)-1.
var hwndTopmost = ^uintptr(0)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	gdi32    = windows.NewLazySystemDLL("gdi32.dll")

	procRegisterClassExW           = user32.NewProc("RegisterClassExW")
	procCreateWindowExW            = user32.NewProc("CreateWindowExW")
	procDefWindowProcW             = user32.NewProc("DefWindowProcW")
	procDestroyWindow              = user32.NewProc("DestroyWindow")
	procGetMessageW                = user32.NewProc("GetMessageW")
	procTranslateMessage           = user32.NewProc("TranslateMessage")
	procDispatchMessageW           = user32.NewProc("DispatchMessageW")
	procPostMessageW               = user32.NewProc("PostMessageW")
	procSendMessageW               = user32.NewProc("SendMessageW")
	procPostQuitMessage            = user32.NewProc("PostQuitMessage")
	procSetWindowTextW             = user32.NewProc("SetWindowTextW")
	procMoveWindow                 = user32.NewProc("MoveWindow")
	procGetClientRect              = user32.NewProc("GetClientRect")
	procShowWindow                 = user32.NewProc("ShowWindow")
	procSetWindowPos               = user32.NewProc("SetWindowPos")
	procLoadCursorW                = user32.NewProc("LoadCursorW")
	procGetSystemMetrics           = user32.NewProc("GetSystemMetrics")
	procSetLayeredWindowAttributes = user32.NewProc("SetLayeredWindowAttributes")
	procGetModuleHandleW           = kernel32.NewProc("GetModuleHandleW")
	procGetStockObject             = gdi32.NewProc("GetStockObject")
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   uintptr
	Icon       uintptr
	Cursor     uintptr
	Background uintptr
	MenuName   *uint16
	ClassName  *uint16
	IconSm     uintptr
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
	Private uint32
}

type winRect struct {
	Left, Top, Right, Bottom int32
}

// One window procedure serves every HUD window; the process has at most one
// display open at a time.
var (
	activeMu        sync.Mutex
	active          *winDisplay
	wndProcCallback = windows.NewCallback(wndProc)
)

func wndProc(hwnd, msg, wparam, lparam uintptr) uintptr {
	activeMu.Lock()
	d := active
	activeMu.Unlock()

	if d != nil {
		if r, handled := d.handle(hwnd, uint32(msg), wparam, lparam); handled {
			return r
		}
	}
	r, _, _ := procDefWindowProcW.Call(hwnd, msg, wparam, lparam)
	return r
}

// winDisplay owns a UI thread that creates every window and runs the message
// loop. Other goroutines only send it messages.
type winDisplay struct {
	controls Controls
	logger   logger.Logger

	ready chan error
	done  chan struct{}

	// owned by the UI thread
	instance  uintptr
	font      uintptr
	screenW   int
	screenH   int
	hwnd      uintptr
	edit      uintptr
	btnPause  uintptr
	btnStop   uintptr
	markers   []uintptr
	paused    bool
	destroyed bool

	mu      sync.Mutex
	story   string
	pending []Marker
}

// New opens the HUD on its own locked OS thread.
func New(opts Options, log logger.Logger) (Display, error) {
	story := opts.Story
	if story == "" {
		story = DefaultStory
	}

	d := &winDisplay{
		controls: opts.Controls,
		logger:   log,
		paused:   opts.StartPaused,
		story:    story,
		ready:    make(chan error, 1),
		done:     make(chan struct{}),
	}

	activeMu.Lock()
	if active != nil {
		activeMu.Unlock()
		return nil, errors.New("hud is already open")
	}
	active = d
	activeMu.Unlock()

	go d.loop()

	select {
	case err := <-d.ready:
		if err != nil {
			return nil, err
		}
	case <-time.After(2 * time.Second):
		return nil, errors.New("hud did not start in time")
	}
	return d, nil
}

func (d *winDisplay) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(d.done)
	defer func() {
		activeMu.Lock()
		if active == d {
			active = nil
		}
		activeMu.Unlock()
	}()

	if err := d.create(); err != nil {
		d.ready <- err
		return
	}
	d.ready <- nil

	var m winMsg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			return
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func (d *winDisplay) create() error {
	d.instance, _, _ = procGetModuleHandleW.Call(0)
	if err := registerClass(d.instance, ClassName, colorWindow+1); err != nil {
		return err
	}
	if err := registerClass(d.instance, MarkerClassName, colorInfoBk+1); err != nil {
		return err
	}

	d.screenW, d.screenH = systemMetric(smCxScreen), systemMetric(smCyScreen)
	w := min(max(hudMinWidth, d.screenW*30/100), d.screenW)
	h := min(max(hudMinHeight, d.screenH*90/100), d.screenH)
	x := clamp(d.screenW*65/100, 0, max(0, d.screenW-w))
	y := clamp(d.screenH*5/100, 0, max(0, d.screenH-h))

	var err error
	d.hwnd, err = createWindow(d.instance, wsExTopmost, ClassName, "FRANZ",
		wsOverlapped|wsCaption|wsSysMenu|wsThickFrame|wsMinimizeBox|wsVisible,
		x, y, w, h, 0, 0)
	if err != nil {
		return err
	}

	d.mu.Lock()
	story := d.story
	d.mu.Unlock()

	d.edit, err = createWindow(d.instance, 0, "EDIT", editText(story),
		wsChild|wsVisible|wsVScroll|wsBorder|esMultiline|esAutoVScroll,
		0, 0, 10, 10, d.hwnd, 0)
	if err != nil {
		return err
	}
	d.btnPause, err = createWindow(d.instance, 0, "BUTTON", "PAUSE", wsChild|wsVisible, 0, 0, 10, 10, d.hwnd, idPause)
	if err != nil {
		return err
	}
	d.btnStop, err = createWindow(d.instance, 0, "BUTTON", "STOP", wsChild|wsVisible, 0, 0, 10, 10, d.hwnd, idStop)
	if err != nil {
		return err
	}

	d.font, _, _ = procGetStockObject.Call(defaultGUIFont)
	for _, ctl := range []uintptr{d.edit, d.btnPause, d.btnStop} {
		procSendMessageW.Call(ctl, wmSetFont, d.font, 1)
	}

	d.applyPaused()
	d.layout()
	procShowWindow.Call(d.hwnd, swShowNoActivate)
	procSetWindowPos.Call(d.hwnd, hwndTopmost, 0, 0, 0, 0, swpNoMove|swpNoSize|swpNoActivate|swpShowWindow)
	return nil
}

func (d *winDisplay) handle(hwnd uintptr, msg uint32, wparam, lparam uintptr) (uintptr, bool) {
	if hwnd != d.hwnd || d.hwnd == 0 {
		return 0, false
	}

	switch msg {
	case wmCommand:
		switch wparam & 0xFFFF {
		case idPause:
			d.paused = !d.paused
			d.applyPaused()
			if d.paused {
				d.controls.pause()
			} else {
				d.controls.resume()
			}
			return 0, true
		case idStop:
			d.controls.stop()
			return 0, true
		}
	case wmSize:
		d.layout()
	case wmClose:
		d.controls.stop()
		d.destroy()
		return 0, true
	case wmDestroy:
		procPostQuitMessage.Call(0)
		return 0, true
	case msgStory:
		d.mu.Lock()
		story := d.story
		d.mu.Unlock()
		setText(d.edit, editText(story))
		return 0, true
	case msgMarkers:
		d.mu.Lock()
		markers := d.pending
		d.mu.Unlock()
		d.replaceMarkers(markers)
		return 0, true
	case msgClose:
		d.destroy()
		return 0, true
	}
	return 0, false
}

// applyPaused lets the story be edited only while the run is paused.
func (d *winDisplay) applyPaused() {
	label, readOnly := "PAUSE", uintptr(1)
	if d.paused {
		label, readOnly = "RESUME", 0
	}
	setText(d.btnPause, label)
	procSendMessageW.Call(d.edit, emSetReadOnly, readOnly, 0)
}

func (d *winDisplay) layout() {
	if d.edit == 0 {
		return
	}
	var r winRect
	if ok, _, _ := procGetClientRect.Call(d.hwnd, uintptr(unsafe.Pointer(&r))); ok == 0 {
		return
	}
	const pad, bh = 10, 40
	cw, ch := max(1, int(r.Right)), max(1, int(r.Bottom))
	by := max(pad, ch-pad-bh)
	bw := max(40, (cw-3*pad)/2)

	moveWindow(d.edit, pad, pad, max(10, cw-2*pad), max(10, by-2*pad))
	moveWindow(d.btnPause, pad, by, bw, bh)
	moveWindow(d.btnStop, 2*pad+bw, by, bw, bh)
}

func (d *winDisplay) replaceMarkers(markers []Marker) {
	for _, m := range d.markers {
		procDestroyWindow.Call(m)
	}
	d.markers = d.markers[:0]

	w := max(markerMinWidth, d.screenW*20/100)
	h := max(markerMinHeight, d.screenH*15/100)
	for _, m := range markers {
		x := clamp(m.X-w/2, 0, max(0, d.screenW-w))
		y := clamp(m.Y-h/2, 0, max(0, d.screenH-h))

		hwnd, err := createWindow(d.instance, wsExTopmost|wsExToolWindow|wsExNoActivate|wsExLayered|wsExTransparent,
			MarkerClassName, m.Label, wsPopup|wsVisible|wsBorder, x, y, w, h, 0, 0)
		if err != nil {
			d.logger.Warn(context.Background(), "failed to draw marker", map[string]interface{}{
				"label": m.Label,
				"error": err.Error(),
			})
			continue
		}
		procSetLayeredWindowAttributes.Call(hwnd, 0, markerAlpha, lwaAlpha)

		label, err := createWindow(d.instance, 0, "EDIT", editText(m.Label),
			wsChild|wsVisible|esMultiline|esReadOnly, 5, 5, max(10, w-10), max(10, h-10), hwnd, 0)
		if err == nil {
			procSendMessageW.Call(label, wmSetFont, d.font, 1)
		}
		procShowWindow.Call(hwnd, swShowNoActivate)
		d.markers = append(d.markers, hwnd)
	}
}

func (d *winDisplay) destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	d.replaceMarkers(nil)
	procDestroyWindow.Call(d.hwnd)
}

func (d *winDisplay) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// send blocks until the UI thread has handled msg.
func (d *winDisplay) send(msg uintptr) {
	if d.closed() {
		return
	}
	procSendMessageW.Call(d.hwnd, msg, 0, 0)
}

func (d *winDisplay) SetStory(story string) {
	d.mu.Lock()
	d.story = story
	d.mu.Unlock()
	d.send(msgStory)
}

func (d *winDisplay) ShowMarkers(markers []Marker) {
	d.mu.Lock()
	d.pending = limitMarkers(markers)
	d.mu.Unlock()
	d.send(msgMarkers)
}

func (d *winDisplay) HideMarkers() {
	d.ShowMarkers(nil)
}

func (d *winDisplay) Close() error {
	if d.closed() {
		return nil
	}
	procPostMessageW.Call(d.hwnd, msgClose, 0, 0)
	select {
	case <-d.done:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("hud did not close in time")
	}
}

func registerClass(instance uintptr, name string, background uintptr) error {
	className, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return err
	}
	cursor, _, _ := procLoadCursorW.Call(0, idcArrow)
	wc := wndClassEx{
		Style:      csHRedraw | csVRedraw,
		WndProc:    wndProcCallback,
		Instance:   instance,
		Cursor:     cursor,
		Background: background,
		ClassName:  className,
	}
	wc.Size = uint32(unsafe.Sizeof(wc))

	atom, _, callErr := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc)))
	if atom == 0 && !errors.Is(callErr, errClassAlreadyExists) {
		return fmt.Errorf("register window class %s: %v", name, callErr)
	}
	return nil
}

func createWindow(instance uintptr, exStyle uint32, class, title string, style uint32, x, y, w, h int, parent, id uintptr) (uintptr, error) {
	className, err := windows.UTF16PtrFromString(class)
	if err != nil {
		return 0, err
	}
	windowName, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0, err
	}
	hwnd, _, callErr := procCreateWindowExW.Call(
		uintptr(exStyle),
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(windowName)),
		uintptr(style),
		uintptr(x), uintptr(y), uintptr(w), uintptr(h),
		parent, id, instance, 0,
	)
	if hwnd == 0 {
		return 0, fmt.Errorf("create %s window: %v", class, callErr)
	}
	return hwnd, nil
}

func setText(hwnd uintptr, text string) {
	p, err := windows.UTF16PtrFromString(text)
	if err != nil {
		return
	}
	procSetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(p)))
}

func moveWindow(hwnd uintptr, x, y, w, h int) {
	procMoveWindow.Call(hwnd, uintptr(x), uintptr(y), uintptr(w), uintptr(h), 1)
}

func systemMetric(index uintptr) int {
	v, _, _ := procGetSystemMetrics.Call(index)
	return int(int32(v))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
