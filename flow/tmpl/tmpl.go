// Package tmpl implements the engine's minimal {{path}} substitution
// language. It deliberately does not wrap a general
// template engine: the surface is tiny on purpose and must never evaluate
// code, only look up values.
package tmpl

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Roots are the three namespaces a path may resolve against, in search
// order when no namespace prefix is given.
type Roots struct {
	Data    any
	Input   any
	Context any
}

const openDelim = "{{"
const closeDelim = "}}"

// Render replaces every {{path}} occurrence in s with the string form of
// the value the path resolves to. A path with no matching value (including
// one whose root namespace does not exist) renders as "". Non-string
// values are JSON-serialized. Render is idempotent on strings containing no
// "{{" — it returns s unchanged in that common case without allocating.
func Render(s string, roots Roots) string {
	if !strings.Contains(s, openDelim) {
		return s
	}
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		rest = rest[start+len(openDelim):]
		end := strings.Index(rest, closeDelim)
		if end < 0 {
			// Unterminated tag: emit the rest verbatim, matching the
			// "missing paths render empty" spirit by not crashing.
			b.WriteString(openDelim)
			b.WriteString(rest)
			break
		}
		path := strings.TrimSpace(rest[:end])
		rest = rest[end+len(closeDelim):]
		b.WriteString(stringify(Lookup(path, roots)))
	}
	return b.String()
}

// Lookup resolves a single dotted path (with [i] indices normalized to .i)
// against roots, honoring an explicit "data."/"input."/"context." prefix,
// and otherwise searching data, then input, then context in order.
func Lookup(path string, roots Roots) (any, bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, false
	}
	switch segs[0] {
	case "data":
		return resolveSegments(roots.Data, segs[1:])
	case "input":
		return resolveSegments(roots.Input, segs[1:])
	case "context":
		return resolveSegments(roots.Context, segs[1:])
	}
	if v, ok := resolveSegments(roots.Data, segs); ok {
		return v, true
	}
	if v, ok := resolveSegments(roots.Input, segs); ok {
		return v, true
	}
	if v, ok := resolveSegments(roots.Context, segs); ok {
		return v, true
	}
	return nil, false
}

// splitPath turns "a.b[0].c" into ["a","b","0","c"].
func splitPath(path string) []string {
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	var out []string
	for _, p := range strings.Split(path, ".") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolveSegments(root any, segs []string) (any, bool) {
	cur := root
	for _, seg := range segs {
		if cur == nil {
			return nil, false
		}
		switch v := cur.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any, ok bool) string {
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
