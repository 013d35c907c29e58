// Package template renders action configuration against an execution's data.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"text/template/parse"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// Data builds the template root for an execution: .trigger is the trigger
// payload, .results maps action ids to outputs and .execution carries ids.
func Data(execution *models.WorkflowExecution) map[string]any {
	return map[string]any{
		"trigger": execution.TriggerData,
		"results": execution.Results,
		"execution": map[string]any{
			"id":           execution.ID,
			"workflow_id":  execution.WorkflowID,
			"owner_id":     execution.OwnerID,
			"triggered_by": string(execution.TriggeredBy),
		},
	}
}

// NeedsTemplating reports whether s contains a template action.
func NeedsTemplating(s string) bool {
	return strings.Contains(s, "{{")
}

// RenderConfig returns a copy of config with every templated string rendered.
// Nested maps and slices are walked; other values are copied as is.
func RenderConfig(config map[string]any, data any) (map[string]any, error) {
	if config == nil {
		return map[string]any{}, nil
	}

	rendered, err := renderValue(config, data, "")
	if err != nil {
		return nil, err
	}

	return rendered.(map[string]any), nil
}

func renderValue(value any, data any, path string) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		out, err := Render(v, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.TrimPrefix(path, "."), err)
		}

		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := renderValue(item, data, path+"."+key)
			if err != nil {
				return nil, err
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, data, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return v, nil
	}
}

// Render executes templateStr against data and returns a string. Two cases
// keep a typed value: a template that is a single field reference such as
// "{{ .trigger.amount }}" returns the referenced value unchanged, and output
// that is a well-formed JSON object or array (usually built with the json
// function) is decoded. Anything else, including text that merely looks
// like JSON or a number, stays a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"json": func(v any) (string, error) {
				b, err := json.Marshal(v)

				return string(b), err
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	if fields, ok := singleField(tmpl.Tree); ok {
		if value, found := lookup(data, fields); found {
			return value, nil
		}
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := buf.String()
	trimmed := strings.TrimSpace(result)

	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var jsonResult any
		if err := json.Unmarshal([]byte(trimmed), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	return result, nil
}

// singleField returns the field chain of a template made of exactly one
// action like {{ .a.b }} or {{ $.a.b }}, surrounded by whitespace at most.
func singleField(tree *parse.Tree) ([]string, bool) {
	if tree == nil || tree.Root == nil {
		return nil, false
	}

	var action *parse.ActionNode

	for _, node := range tree.Root.Nodes {
		switch n := node.(type) {
		case *parse.TextNode:
			if strings.TrimSpace(string(n.Text)) != "" {
				return nil, false
			}
		case *parse.ActionNode:
			if action != nil {
				return nil, false
			}

			action = n
		default:
			return nil, false
		}
	}

	if action == nil || action.Pipe == nil || len(action.Pipe.Decl) > 0 || len(action.Pipe.Cmds) != 1 {
		return nil, false
	}

	args := action.Pipe.Cmds[0].Args
	if len(args) != 1 {
		return nil, false
	}

	switch arg := args[0].(type) {
	case *parse.FieldNode:
		return arg.Ident, true
	case *parse.VariableNode:
		if len(arg.Ident) > 0 && arg.Ident[0] == "$" {
			return arg.Ident[1:], true
		}
	case *parse.DotNode:
		return nil, true
	}

	return nil, false
}

func lookup(data any, fields []string) (any, bool) {
	current := data

	for _, field := range fields {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[field]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
