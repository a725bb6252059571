// Package tools provides the tool registry exposed to swarm models. Each
// phase filters the registry by its allow-list; a tool executes against the
// workspace and returns text for the model.
package tools

import "context"

// ParamType constrains a tool argument.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeCode    ParamType = "code"
)

// Param describes one tool parameter.
type Param struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
}

// Tool is one capability offered to models.
type Tool struct {
	Name        string
	Description string
	Params      []Param

	// Execute runs the tool. Arguments arrive as decoded JSON.
	Execute func(ctx context.Context, args map[string]any) (string, error)
}

// Validate checks the definition is complete.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrMissingName
	}
	if t.Execute == nil {
		return ErrMissingExecute
	}
	return nil
}

// Schema renders the parameters as a JSON schema object for providers.
func (t *Tool) Schema() map[string]any {
	properties := make(map[string]any, len(t.Params))
	var required []string
	for _, p := range t.Params {
		typ := string(p.Type)
		if p.Type == TypeCode {
			typ = "string"
		}
		prop := map[string]any{"type": typ, "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// CheckArgs validates required parameters and fills defaults.
func (t *Tool) CheckArgs(args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	for _, p := range t.Params {
		if _, ok := args[p.Name]; ok {
			continue
		}
		if p.Default != nil {
			args[p.Name] = p.Default
			continue
		}
		if p.Required {
			return nil, &MissingArgError{Tool: t.Name, Param: p.Name}
		}
	}
	return args, nil
}
