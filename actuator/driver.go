package actuator

import "github.com/go-vgo/robotgo"

// Driver is the raw mouse and keyboard surface.
type Driver interface {
	Move(x, y int)
	Click(button string, double bool)
	Toggle(button string, down bool) error
	Type(text string)
	// Scroll turns the wheel by notches; positive scrolls up.
	Scroll(notches int)
	ScreenSize() (width, height int)
}

type robotDriver struct{}

// NewRobotDriver drives the real input devices.
func NewRobotDriver() Driver {
	return robotDriver{}
}

func (robotDriver) Move(x, y int) {
	robotgo.Move(x, y)
}

func (robotDriver) Click(button string, double bool) {
	robotgo.Click(button, double)
}

func (robotDriver) Toggle(button string, down bool) error {
	if down {
		return robotgo.Toggle(button)
	}
	return robotgo.Toggle(button, "up")
}

func (robotDriver) Type(text string) {
	robotgo.TypeStr(text)
}

func (robotDriver) Scroll(notches int) {
	robotgo.Scroll(0, notches)
}

func (robotDriver) ScreenSize() (int, int) {
	return robotgo.GetScreenSize()
}
