package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/agent"
	"github.com/hairizuan-noorazman/desktop-agent/toolcall"
)

// ScriptedEndpoint answers without a model, cycling through every default
// tool. It exercises the full turn loop in test mode.
type ScriptedEndpoint struct {
	now func() time.Time
}

func NewScriptedEndpoint() *ScriptedEndpoint {
	return &ScriptedEndpoint{now: time.Now}
}

type scriptStep struct {
	tool string
	args map[string]interface{}
	desc string
}

func scriptFor(turn int) scriptStep {
	center := map[string]interface{}{"x": 500, "y": 500}
	switch turn % 7 {
	case 1:
		return scriptStep{tool: "attend", desc: "attend multiple.", args: map[string]interface{}{
			"targets": []map[string]interface{}{
				{"x": 100, "y": 100, "label": "Top-Left"},
				{"x": 900, "y": 900, "label": "Bottom-Right"},
			},
		}}
	case 2:
		return scriptStep{tool: "scroll", desc: "scroll.", args: map[string]interface{}{"dy": -480}}
	case 3:
		return scriptStep{tool: "click", desc: "click center.", args: center}
	case 4:
		return scriptStep{tool: "type_text", desc: "type marker.", args: map[string]interface{}{"text": "FRANZ TEST"}}
	case 5:
		return scriptStep{tool: "right_click", desc: "right click.", args: center}
	case 6:
		return scriptStep{tool: "double_click", desc: "double click.", args: center}
	default:
		return scriptStep{tool: "attend", desc: "attend single.", args: map[string]interface{}{
			"targets": []map[string]interface{}{{"x": 500, "y": 500, "label": "Center"}},
		}}
	}
}

func (e *ScriptedEndpoint) Submit(ctx context.Context, obs agent.Observation, spec toolcall.Spec, sampling agent.Sampling) (*toolcall.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointFailure, err)
	}

	step := scriptFor(obs.TurnIndex)
	args := make(map[string]interface{}, len(step.args)+1)
	for k, v := range step.args {
		args[k] = v
	}
	args[toolcall.StoryParam] = fmt.Sprintf(
		"FRANZ TEST LOG\n\nCuriosity: moderate, Pain: low, Boredom: low\n\nTURN %03d [%s] TEST: %s\n",
		obs.TurnIndex, e.now().Format("15:04:05"), step.desc)

	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointFailure, err)
	}
	call := toolcall.RawCall{Name: step.tool, Arguments: encoded}

	raw, _ := json.Marshal(call)
	return &toolcall.Response{ToolCalls: []toolcall.RawCall{call}, Raw: string(raw)}, nil
}
