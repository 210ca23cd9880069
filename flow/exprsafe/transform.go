package exprsafe

import (
	"encoding/json"
	"fmt"
)

// Transform is a parsed edge transform expression, ready for repeated
// evaluation. Its grammar is the condition grammar
// plus a fixed whitelist of calls: json.dumps, json.loads, len, str, int,
// float, list, dict. There is no general function namespace; "foo(x)"
// for any other foo is a parse error.
type Transform struct {
	src  string
	root node
}

// CompileTransform parses src. Like CompileCondition, syntax errors are
// raised immediately rather than deferred to evaluation time.
func CompileTransform(src string) (*Transform, error) {
	n, err := parseExpr(src, true)
	if err != nil {
		return nil, err
	}
	if err := checkCalls(n); err != nil {
		return nil, err
	}
	return &Transform{src: src, root: n}, nil
}

// checkCalls walks the tree rejecting any call to a name outside the
// whitelist, so an unknown callee is caught at compile time rather than
// only when that branch happens to execute.
func checkCalls(n node) error {
	switch v := n.(type) {
	case callNode:
		if !allowedCalls[v.callee] {
			return fmt.Errorf("%w: function %q is not permitted", errUnsupported, v.callee)
		}
		for _, a := range v.args {
			if err := checkCalls(a); err != nil {
				return err
			}
		}
	case subscriptNode:
		if err := checkCalls(v.base); err != nil {
			return err
		}
		return checkCalls(v.index)
	case listNode:
		for _, e := range v.elems {
			if err := checkCalls(e); err != nil {
				return err
			}
		}
	case dictNode:
		for i := range v.keys {
			if err := checkCalls(v.keys[i]); err != nil {
				return err
			}
			if err := checkCalls(v.vals[i]); err != nil {
				return err
			}
		}
	case notNode:
		return checkCalls(v.x)
	case boolOpNode:
		if err := checkCalls(v.l); err != nil {
			return err
		}
		return checkCalls(v.r)
	case compareNode:
		if err := checkCalls(v.l); err != nil {
			return err
		}
		return checkCalls(v.r)
	}
	return nil
}

var allowedCalls = map[string]bool{
	"json.dumps": true,
	"json.loads": true,
	"len":        true,
	"str":        true,
	"int":        true,
	"float":      true,
	"list":       true,
	"dict":       true,
}

// Eval evaluates the transform against roots. Any
// runtime failure (bad call arguments, a malformed json.loads payload, an
// absent identifier) is caught here and reported via the onError
// callback; the caller (flow.ResolveInput) keeps the original untransformed
// value in that case rather than propagating the error into the node's
// input.
func (t *Transform) Eval(roots Roots, onError func(error)) any {
	val, err := evalValue(t.root, roots, callWhitelisted)
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return nil
	}
	return val
}

func callWhitelisted(c callNode, roots Roots) (any, error) {
	args := make([]any, len(c.args))
	for i, a := range c.args {
		v, err := evalValue(a, roots, callWhitelisted)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch c.callee {
	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: len() takes exactly one argument", errEval)
		}
		return lengthOf(args[0])
	case "str":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: str() takes exactly one argument", errEval)
		}
		return stringOf(args[0]), nil
	case "int":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: int() takes exactly one argument", errEval)
		}
		return numberOf(args[0])
	case "float":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: float() takes exactly one argument", errEval)
		}
		return numberOf(args[0])
	case "list":
		if len(args) == 0 {
			return []any{}, nil
		}
		if arr, ok := args[0].([]any); ok {
			return arr, nil
		}
		return nil, fmt.Errorf("%w: list() requires an array argument", errEval)
	case "dict":
		if len(args) == 0 {
			return map[string]any{}, nil
		}
		if m, ok := args[0].(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("%w: dict() requires an object argument", errEval)
	case "json.dumps":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: json.dumps() takes exactly one argument", errEval)
		}
		b, err := json.Marshal(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: json.dumps failed: %v", errEval, err)
		}
		return string(b), nil
	case "json.loads":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: json.loads() takes exactly one argument", errEval)
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: json.loads() requires a string argument", errEval)
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("%w: json.loads failed: %v", errEval, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: function %q is not permitted", errUnsupported, c.callee)
}

func lengthOf(v any) (float64, error) {
	switch x := v.(type) {
	case string:
		return float64(len([]rune(x))), nil
	case []any:
		return float64(len(x)), nil
	case map[string]any:
		return float64(len(x)), nil
	}
	return 0, fmt.Errorf("%w: len() requires a string, array, or object", errEval)
}

func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func numberOf(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(x, "%g", &f); err != nil {
			return 0, fmt.Errorf("%w: cannot convert %q to a number", errEval, x)
		}
		return f, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: cannot convert value to a number", errEval)
}

// Source returns the original expression text.
func (t *Transform) Source() string { return t.src }
