package toolcall

// JSONSchema renders t as an OpenAI-style function declaration.
func (s Spec) JSONSchema(t Tool) map[string]interface{} {
	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  objectSchema(t.params()),
		},
	}
}

// FunctionSchemas renders every tool in declaration order.
func (s Spec) FunctionSchemas() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(s.Tools))
	for _, t := range s.Tools {
		out = append(out, s.JSONSchema(t))
	}
	return out
}

// ParametersSchema is the bare JSON schema of t's arguments object.
func (t Tool) ParametersSchema() map[string]interface{} {
	return objectSchema(t.params())
}

func objectSchema(params []Param) map[string]interface{} {
	props := make(map[string]interface{}, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		props[p.Name] = paramSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func paramSchema(p Param) map[string]interface{} {
	if p.Type == TypeObject && len(p.Properties) > 0 {
		schema := objectSchema(p.Properties)
		if p.Description != "" {
			schema["description"] = p.Description
		}
		return schema
	}

	schema := map[string]interface{}{"type": string(p.Type)}
	if p.Description != "" {
		schema["description"] = p.Description
	}
	if p.Minimum != nil {
		schema["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		schema["maximum"] = *p.Maximum
	}
	if p.MinLength != nil {
		schema["minLength"] = *p.MinLength
	}
	if p.MaxLength != nil {
		schema["maxLength"] = *p.MaxLength
	}
	if p.MinItems != nil {
		schema["minItems"] = *p.MinItems
	}
	if p.MaxItems != nil {
		schema["maxItems"] = *p.MaxItems
	}
	if p.Items != nil {
		schema["items"] = paramSchema(*p.Items)
	}
	return schema
}
