package nodes

import (
	"context"
	"strings"

	"github.com/ragforge/flowengine/flow"
)

// registerTextSplitter installs the text_splitter node type, per
// chunk a text input by sentence, paragraph, or a
// fixed character length with overlap, grounded on the original
// implementation's execute_text_splitter_node.
func registerTextSplitter(reg *flow.Registry) {
	flow.RegisterNodeType(reg, "text_splitter", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(runTextSplitter), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 32},
		Parallelizable: true,
	})
}

func runTextSplitter(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
	text, _ := input["text"].(string)

	splitType := n.ConfigString("split_type")
	if splitType == "" {
		splitType = "paragraph"
	}
	maxLength := configInt(n.Config, "max_length", 1000)
	overlap := configInt(n.Config, "overlap", 100)

	var chunks []string
	switch splitType {
	case "sentence":
		chunks = splitSentences(text)
	case "fixed_length":
		chunks = splitFixedLength(text, maxLength, overlap)
	default:
		chunks = splitParagraphs(text)
	}

	return map[string]any{
		"chunks":          chunks,
		"chunk_count":     len(chunks),
		"original_length": len(text),
		"split_type":      splitType,
	}, nil
}

func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentence := strings.TrimSpace(text[start : i+1])
			if sentence != "" {
				out = append(out, sentence)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func splitFixedLength(text string, maxLength, overlap int) []string {
	if maxLength <= 0 {
		maxLength = 1000
	}
	if overlap < 0 || overlap >= maxLength {
		overlap = 0
	}
	runes := []rune(text)
	var out []string
	step := maxLength - overlap
	for i := 0; i < len(runes); i += step {
		end := i + maxLength
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
