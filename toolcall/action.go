package toolcall

import (
	"encoding/json"
	"errors"
)

// ErrActionShape matches the invalid tool call Decode reports when a call's
// arguments do not fit the action its name refers to.
var ErrActionShape = errors.New("arguments do not match action")

// Action is a decoded, typed tool call.
type Action interface {
	ToolName() string
}

// Point is a normalized coordinate pair, each axis in 0..1000.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Click struct{ At Point }
type DoubleClick struct{ At Point }
type RightClick struct{ At Point }

type Drag struct {
	From Point
	To   Point
}

type TypeText struct{ Text string }

// Scroll moves the wheel by DY units; positive scrolls up.
type Scroll struct{ DY int }

type Target struct {
	Point
	Label string `json:"label"`
}

// Attend names points of interest without acting on them.
type Attend struct{ Targets []Target }

// Generic is a declared tool without a dedicated shape.
type Generic struct {
	Name      string
	Arguments map[string]interface{}
}

func (Click) ToolName() string { return "click" }
func (DoubleClick) ToolName() string { return "double_click" }
func (RightClick) ToolName() string { return "right_click" }
func (Drag) ToolName() string { return "drag" }
func (TypeText) ToolName() string { return "type_text" }
func (Scroll) ToolName() string { return "scroll" }
func (Attend) ToolName() string { return "attend" }
func (g Generic) ToolName() string { return g.Name }

// Decode turns a validated call into its typed action.
func Decode(call Call) (Action, error) {
	a := call.Arguments
	switch call.Name {
	case "click", "double_click", "right_click":
		p, err := point(a, "x", "y")
		if err != nil {
			return nil, err
		}
		switch call.Name {
		case "click":
			return Click{At: p}, nil
		case "double_click":
			return DoubleClick{At: p}, nil
		default:
			return RightClick{At: p}, nil
		}

	case "drag":
		from, err := point(a, "x1", "y1")
		if err != nil {
			return nil, err
		}
		to, err := point(a, "x2", "y2")
		if err != nil {
			return nil, err
		}
		return Drag{From: from, To: to}, nil

	case "type_text":
		text, ok := a["text"].(string)
		if !ok {
			return nil, invalid(ReasonActionShape, "type_text.text must be a string")
		}
		return TypeText{Text: text}, nil

	case "scroll":
		dy, err := intArg(a, "dy")
		if err != nil {
			return nil, err
		}
		return Scroll{DY: dy}, nil

	case "attend":
		items, ok := a["targets"].([]interface{})
		if !ok {
			return nil, invalid(ReasonActionShape, "attend.targets must be an array")
		}
		targets := make([]Target, 0, len(items))
		for i, item := range items {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, invalid(ReasonActionShape, "attend.targets[%d] must be an object", i)
			}
			p, err := point(obj, "x", "y")
			if err != nil {
				return nil, err
			}
			label, _ := obj["label"].(string)
			targets = append(targets, Target{Point: p, Label: label})
		}
		return Attend{Targets: targets}, nil
	}

	args := make(map[string]interface{}, len(a))
	for k, v := range a {
		if k != StoryParam {
			args[k] = v
		}
	}
	return Generic{Name: call.Name, Arguments: args}, nil
}

func point(a map[string]interface{}, xKey, yKey string) (Point, error) {
	x, err := intArg(a, xKey)
	if err != nil {
		return Point{}, err
	}
	y, err := intArg(a, yKey)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

func intArg(a map[string]interface{}, key string) (int, error) {
	switch v := a[key].(type) {
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, invalid(ReasonActionShape, "%s must be an integer", key)
		}
		return int(i), nil
	case int:
		return v, nil
	case nil:
		return 0, invalid(ReasonActionShape, "%s is missing", key)
	}
	return 0, invalid(ReasonActionShape, "%s must be an integer", key)
}
