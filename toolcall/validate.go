package toolcall

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidToolCall matches every *InvalidToolCallError through errors.Is.
var ErrInvalidToolCall = errors.New("invalid tool call")

// Reasons reported by InvalidToolCallError.
const (
	ReasonNoToolCall         = "no_tool_call"
	ReasonMultipleToolCalls  = "multiple_tool_calls"
	ReasonUnknownTool        = "unknown_tool"
	ReasonMalformedArguments = "malformed_arguments"
	ReasonArgumentsNotObject = "arguments_not_object"
	ReasonMissingParameter   = "missing_parameter"
	ReasonWrongType          = "wrong_type"
	ReasonOutOfBounds        = "out_of_bounds"
	ReasonMissingStory       = "missing_story"
	ReasonActionShape        = "action_shape"
)

type InvalidToolCallError struct {
	Reason string
	Detail string
}

func (e *InvalidToolCallError) Error() string {
	if e.Detail == "" {
		return "invalid tool call: " + e.Reason
	}
	return fmt.Sprintf("invalid tool call: %s: %s", e.Reason, e.Detail)
}

func (e *InvalidToolCallError) Is(target error) bool {
	if target == ErrActionShape {
		return e.Reason == ReasonActionShape
	}
	return target == ErrInvalidToolCall
}

func invalid(reason, format string, args ...interface{}) error {
	return &InvalidToolCallError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RawCall is one tool call exactly as the model returned it. Arguments is
// either a JSON object or a JSON string holding an object.
type RawCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is what a model endpoint returns for one observation.
type Response struct {
	ToolCalls []RawCall `json:"tool_calls"`
	// Raw is the response body, kept for the execution log.
	Raw string `json:"-"`
}

// Call is a validated tool call. Numbers in Arguments are json.Number.
type Call struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	Story     string                 `json:"story"`
}

// Validate checks that resp holds exactly one call to a tool declared in spec
// with arguments matching the declaration. Nothing is coerced or repaired.
func Validate(resp *Response, spec Spec) (Call, error) {
	if resp == nil || len(resp.ToolCalls) == 0 {
		return Call{}, invalid(ReasonNoToolCall, "response contains no tool call")
	}
	if n := len(resp.ToolCalls); n > 1 {
		return Call{}, invalid(ReasonMultipleToolCalls, "expected exactly one tool call, got %d", n)
	}

	raw := resp.ToolCalls[0]
	tool, ok := spec.Lookup(raw.Name)
	if !ok {
		return Call{}, invalid(ReasonUnknownTool, "%q is not declared (allowed: %s)", raw.Name, strings.Join(spec.Names(), ", "))
	}

	args, err := decodeArguments(raw.Arguments)
	if err != nil {
		return Call{}, err
	}

	if err := checkObject(tool.Name, tool.params(), args); err != nil {
		return Call{}, err
	}

	story, ok := args[StoryParam].(string)
	if !ok {
		return Call{}, invalid(ReasonMissingStory, "%s requires %s", tool.Name, StoryParam)
	}

	return Call{Name: tool.Name, Arguments: args, Story: story}, nil
}

func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return nil, invalid(ReasonMalformedArguments, "arguments are empty")
	}

	// string form: the object is encoded inside a JSON string
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, invalid(ReasonMalformedArguments, "%v", err)
		}
		data = bytes.TrimSpace([]byte(s))
		if len(data) == 0 {
			return nil, invalid(ReasonMalformedArguments, "arguments are empty")
		}
	}

	if data[0] != '{' {
		return nil, invalid(ReasonArgumentsNotObject, "arguments must be a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var args map[string]interface{}
	if err := dec.Decode(&args); err != nil {
		return nil, invalid(ReasonMalformedArguments, "%v", err)
	}
	if dec.More() {
		return nil, invalid(ReasonMalformedArguments, "trailing data after arguments object")
	}
	if args == nil {
		return nil, invalid(ReasonArgumentsNotObject, "arguments must be a JSON object")
	}
	return args, nil
}

// checkObject checks the declared parameters of obj and removes the keys
// nothing declares, so they never reach an action.
func checkObject(path string, params []Param, obj map[string]interface{}) error {
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true

		v, present := obj[p.Name]
		if !present {
			if p.Required {
				if p.Name == StoryParam {
					return invalid(ReasonMissingStory, "%s requires %s", path, StoryParam)
				}
				return invalid(ReasonMissingParameter, "%s.%s is required", path, p.Name)
			}
			continue
		}
		if err := checkValue(path+"."+p.Name, p, v); err != nil {
			return err
		}
	}

	for k := range obj {
		if !declared[k] {
			delete(obj, k)
		}
	}
	return nil
}

func checkValue(path string, p Param, v interface{}) error {
	switch p.Type {
	case TypeInteger:
		n, ok := v.(json.Number)
		if !ok {
			return wrongType(path, p.Type, v)
		}
		i, err := n.Int64()
		if err != nil {
			return wrongType(path, p.Type, v)
		}
		return checkRange(path, p, float64(i))

	case TypeNumber:
		n, ok := v.(json.Number)
		if !ok {
			return wrongType(path, p.Type, v)
		}
		f, err := n.Float64()
		if err != nil {
			return wrongType(path, p.Type, v)
		}
		return checkRange(path, p, f)

	case TypeString:
		s, ok := v.(string)
		if !ok {
			return wrongType(path, p.Type, v)
		}
		return checkLength(path, utf8.RuneCountInString(s), p.MinLength, p.MaxLength, "characters")

	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return wrongType(path, p.Type, v)
		}

	case TypeArray:
		items, ok := v.([]interface{})
		if !ok {
			return wrongType(path, p.Type, v)
		}
		if err := checkLength(path, len(items), p.MinItems, p.MaxItems, "items"); err != nil {
			return err
		}
		if p.Items == nil {
			return nil
		}
		for i, item := range items {
			if err := checkValue(fmt.Sprintf("%s[%d]", path, i), *p.Items, item); err != nil {
				return err
			}
		}

	case TypeObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return wrongType(path, p.Type, v)
		}
		if len(p.Properties) > 0 {
			return checkObject(path, p.Properties, obj)
		}
	}
	return nil
}

func checkRange(path string, p Param, f float64) error {
	if p.Minimum != nil && f < *p.Minimum {
		return invalid(ReasonOutOfBounds, "%s=%v is below %v", path, f, *p.Minimum)
	}
	if p.Maximum != nil && f > *p.Maximum {
		return invalid(ReasonOutOfBounds, "%s=%v is above %v", path, f, *p.Maximum)
	}
	return nil
}

func checkLength(path string, n int, lo, hi *int, unit string) error {
	if lo != nil && n < *lo {
		return invalid(ReasonOutOfBounds, "%s has %d %s, need at least %d", path, n, unit, *lo)
	}
	if hi != nil && n > *hi {
		return invalid(ReasonOutOfBounds, "%s has %d %s, at most %d allowed", path, n, unit, *hi)
	}
	return nil
}

func wrongType(path string, want ParamType, v interface{}) error {
	return invalid(ReasonWrongType, "%s must be %s, got %s", path, want, jsonKind(v))
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case json.Number:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
