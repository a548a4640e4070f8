package toolcall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSpec(t *testing.T) {
	spec := DefaultSpec()
	require.NoError(t, spec.Validate())

	assert.Equal(t, []string{"click", "double_click", "right_click", "drag", "type_text", "scroll", "attend"}, spec.Names())
	for _, tool := range spec.Tools {
		var story *Param
		for i := range tool.Params {
			if tool.Params[i].Name == StoryParam {
				story = &tool.Params[i]
			}
		}
		require.NotNil(t, story, tool.Name)
		assert.True(t, story.Required, tool.Name)
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr error
	}{
		{name: "empty", spec: Spec{}, wantErr: ErrEmptySpec},
		{
			name:    "duplicate",
			spec:    Spec{Tools: []Tool{{Name: "a"}, {Name: "a"}}},
			wantErr: ErrDuplicateTool,
		},
		{
			name:    "bad param type",
			spec:    Spec{Tools: []Tool{{Name: "a", Params: []Param{{Name: "p", Type: "float"}}}}},
			wantErr: ErrInvalidParam,
		},
		{
			name:    "unnamed tool",
			spec:    Spec{Tools: []Tool{{Name: " "}}},
			wantErr: ErrInvalidParam,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.spec.Validate(), tt.wantErr)
		})
	}
}

func TestLoadSpec_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	content := `
tools:
  - name: type
    description: Type text.
    params:
      - name: text
        type: string
        required: true
        max_length: 50
      - name: story
        type: string
        required: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	require.Len(t, spec.Tools, 1)

	tool, ok := spec.Lookup("type")
	require.True(t, ok)
	require.Len(t, tool.Params, 2)
	assert.Equal(t, TypeString, tool.Params[0].Type)
	require.NotNil(t, tool.Params[0].MaxLength)
	assert.Equal(t, 50, *tool.Params[0].MaxLength)

	_, err = Validate(single("type", `{"text":"hello","story":"typing greeting"}`), spec)
	assert.NoError(t, err)
}

func TestLoadSpec_Errors(t *testing.T) {
	_, err := LoadSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tools":[]}`), 0o644))
	_, err = LoadSpec(path)
	assert.ErrorIs(t, err, ErrEmptySpec)
}

func TestJSONSchema(t *testing.T) {
	spec := typeSpec()
	spec.Tools = append(spec.Tools, Tool{
		Name:   "wait",
		Params: []Param{{Name: "ms", Type: TypeInteger, Required: true}},
	})

	schema := spec.JSONSchema(spec.Tools[1])
	assert.Equal(t, "function", schema["type"])

	fn := schema["function"].(map[string]interface{})
	assert.Equal(t, "wait", fn["name"])

	params := fn["parameters"].(map[string]interface{})
	assert.Equal(t, []string{"ms", "story"}, params["required"])
	assert.Equal(t, false, params["additionalProperties"])

	props := params["properties"].(map[string]interface{})
	assert.Contains(t, props, "story")
	assert.Equal(t, map[string]interface{}{"type": "integer"}, props["ms"])

	attend, ok := DefaultSpec().Lookup("attend")
	require.True(t, ok)
	targets := attend.ParametersSchema()["properties"].(map[string]interface{})["targets"].(map[string]interface{})
	assert.Equal(t, MaxAttendTargets, targets["maxItems"])
	items := targets["items"].(map[string]interface{})
	assert.Equal(t, "object", items["type"])

	assert.Len(t, DefaultSpec().FunctionSchemas(), 7)
}
