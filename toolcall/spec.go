// Package toolcall declares the actions a model may request and validates
// model responses against those declarations.
package toolcall

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// StoryParam is the free-text narrative every call must carry.
const StoryParam = "story"

var (
	ErrEmptySpec     = errors.New("tool spec declares no tools")
	ErrDuplicateTool = errors.New("duplicate tool name")
	ErrInvalidParam  = errors.New("invalid parameter declaration")
)

type ParamType string

const (
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeString  ParamType = "string"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

func (t ParamType) IsValid() bool {
	switch t {
	case TypeInteger, TypeNumber, TypeString, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Param declares one named argument. Bounds are optional; Items describes the
// elements of an array and Properties the fields of an object.
type Param struct {
	Name        string    `mapstructure:"name"`
	Type        ParamType `mapstructure:"type"`
	Description string    `mapstructure:"description"`
	Required    bool      `mapstructure:"required"`
	Minimum     *float64  `mapstructure:"minimum"`
	Maximum     *float64  `mapstructure:"maximum"`
	MinLength   *int      `mapstructure:"min_length"`
	MaxLength   *int      `mapstructure:"max_length"`
	MinItems    *int      `mapstructure:"min_items"`
	MaxItems    *int      `mapstructure:"max_items"`
	Items       *Param    `mapstructure:"items"`
	Properties  []Param   `mapstructure:"properties"`
}

type Tool struct {
	Name        string  `mapstructure:"name"`
	Description string  `mapstructure:"description"`
	Params      []Param `mapstructure:"params"`
}

// Spec is the set of tools allowed for a run. It is loaded once and not
// modified afterwards.
type Spec struct {
	Tools []Tool `mapstructure:"tools"`
}

// Lookup finds a tool by its exact name.
func (s Spec) Lookup(name string) (Tool, bool) {
	for _, t := range s.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

func (s Spec) Names() []string {
	names := make([]string, 0, len(s.Tools))
	for _, t := range s.Tools {
		names = append(names, t.Name)
	}
	return names
}

func (s Spec) Validate() error {
	if len(s.Tools) == 0 {
		return ErrEmptySpec
	}
	seen := make(map[string]bool, len(s.Tools))
	for _, t := range s.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: tool without a name", ErrInvalidParam)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
		}
		seen[t.Name] = true
		for _, p := range t.Params {
			if err := p.validate(); err != nil {
				return fmt.Errorf("tool %s: %w", t.Name, err)
			}
		}
	}
	return nil
}

func (p Param) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: parameter without a name", ErrInvalidParam)
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: %s has type %q", ErrInvalidParam, p.Name, p.Type)
	}
	if p.Items != nil {
		item := *p.Items
		if item.Name == "" {
			item.Name = p.Name + "[]"
		}
		if err := item.validate(); err != nil {
			return err
		}
	}
	for _, sub := range p.Properties {
		if err := sub.validate(); err != nil {
			return err
		}
	}
	return nil
}

// params returns the declared parameters, adding a required story when the
// tool does not declare one itself.
func (t Tool) params() []Param {
	for _, p := range t.Params {
		if p.Name == StoryParam {
			return t.Params
		}
	}
	out := make([]Param, 0, len(t.Params)+1)
	out = append(out, t.Params...)
	return append(out, storyParam())
}

// LoadSpec reads a tool spec from a JSON or YAML file.
func LoadSpec(path string) (Spec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Spec{}, fmt.Errorf("read tool spec: %w", err)
	}

	var spec Spec
	if err := v.Unmarshal(&spec); err != nil {
		return Spec{}, fmt.Errorf("decode tool spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }

func storyParam() Param {
	return Param{
		Name:        StoryParam,
		Type:        TypeString,
		Description: "Running narrative of what you see and why you act.",
		Required:    true,
	}
}

func coordParam(name string) Param {
	return Param{
		Name:     name,
		Type:     TypeInteger,
		Required: true,
		Minimum:  floatPtr(0),
		Maximum:  floatPtr(1000),
	}
}

// DefaultSpec is the built-in desktop tool set. Coordinates are normalized
// to 0..1000 on both axes.
func DefaultSpec() Spec {
	point := func(name, desc string) Tool {
		return Tool{
			Name:        name,
			Description: desc,
			Params:      []Param{coordParam("x"), coordParam("y"), storyParam()},
		}
	}

	return Spec{Tools: []Tool{
		point("click", "Click at normalized coordinates (0-1000)."),
		point("double_click", "Double-click at normalized coordinates (0-1000)."),
		point("right_click", "Right-click at normalized coordinates (0-1000)."),
		{
			Name:        "drag",
			Description: "Drag from start to end coordinates (0-1000).",
			Params: []Param{
				coordParam("x1"), coordParam("y1"),
				coordParam("x2"), coordParam("y2"),
				storyParam(),
			},
		},
		{
			Name:        "type_text",
			Description: "Type text at current cursor position.",
			Params: []Param{
				{Name: "text", Type: TypeString, Required: true, MinLength: intPtr(1), MaxLength: intPtr(2000)},
				storyParam(),
			},
		},
		{
			Name:        "scroll",
			Description: "Scroll vertically. Positive=up, negative=down.",
			Params: []Param{
				{Name: "dy", Type: TypeInteger, Required: true, Minimum: floatPtr(-3000), Maximum: floatPtr(3000)},
				storyParam(),
			},
		},
		{
			Name:        "attend",
			Description: "Observe 1..4 points without acting, it is low priority tool. Each target has x,y (0-1000) and a short label.",
			Params: []Param{
				{
					Name:     "targets",
					Type:     TypeArray,
					Required: true,
					MinItems: intPtr(1),
					MaxItems: intPtr(MaxAttendTargets),
					Items: &Param{
						Type: TypeObject,
						Properties: []Param{
							coordParam("x"),
							coordParam("y"),
							{Name: "label", Type: TypeString, Required: true, MinLength: intPtr(1), MaxLength: intPtr(100)},
						},
					},
				},
				storyParam(),
			},
		},
	}}
}

// MaxAttendTargets bounds the number of points one attend call may name.
const MaxAttendTargets = 4
