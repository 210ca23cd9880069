package nodes

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ragforge/flowengine/flow"
)

// registerParser installs the parser node type: decode
// text as JSON, or extract a fixed field set either by regex capture or
// by plain substring containment when no pattern is given for a field.
func registerParser(reg *flow.Registry) {
	flow.RegisterNodeType(reg, "parser", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(runParser), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 32},
		Parallelizable: true,
	})
}

func runParser(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
	text, _ := input["text"].(string)
	if text == "" {
		text, _ = input["data"].(string)
	}

	parseType := n.ConfigString("parse_type")
	if parseType == "" {
		parseType = "json"
	}

	switch parseType {
	case "extract_fields":
		return parserExtractFields(n, text), nil
	default:
		return parserJSON(text), nil
	}
}

func parserJSON(text string) map[string]any {
	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return map[string]any{
			"parsed_data": nil,
			"success":     false,
			"error":       err.Error(),
		}
	}
	return map[string]any{"parsed_data": out, "success": true}
}

// fieldSpec is one entry of config.fields: {"name": "...", "pattern": "..."}.
// A field with no pattern falls back to substring containment, reporting
// whether the field name itself appears in text.
type fieldSpec struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

func parserExtractFields(n *flow.Node, text string) map[string]any {
	specs := parseFieldSpecs(n.Config["fields"])
	fields := map[string]any{}
	for _, spec := range specs {
		if spec.Pattern != "" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				fields[spec.Name] = nil
				continue
			}
			m := re.FindStringSubmatch(text)
			if len(m) > 1 {
				fields[spec.Name] = m[1]
			} else if len(m) == 1 {
				fields[spec.Name] = m[0]
			} else {
				fields[spec.Name] = nil
			}
			continue
		}
		fields[spec.Name] = strings.Contains(text, spec.Name)
	}
	return map[string]any{"parsed_data": fields, "success": true}
}

func parseFieldSpecs(raw any) []fieldSpec {
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]fieldSpec, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		pattern, _ := m["pattern"].(string)
		if name == "" {
			continue
		}
		out = append(out, fieldSpec{Name: name, Pattern: pattern})
	}
	return out
}
