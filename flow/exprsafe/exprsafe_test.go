package exprsafe

import "testing"

func TestConditionBasic(t *testing.T) {
	cases := []struct {
		expr string
		want bool
		val  any
	}{
		{`value == "ok"`, true, "ok"},
		{`value == "ok"`, false, "nope"},
		{`value > 5`, true, 10.0},
		{`value > 5`, false, 2.0},
		{`not (value == "x")`, true, "y"},
		{`value in ["a", "b", "c"]`, true, "b"},
		{`value in ["a", "b", "c"]`, false, "z"},
		{`value is none`, true, nil},
	}
	for _, c := range cases {
		cond, err := CompileCondition(c.expr)
		if err != nil {
			t.Fatalf("compile %q: %v", c.expr, err)
		}
		got := cond.Eval(Roots{Value: c.val})
		if got != c.want {
			t.Errorf("%q with value=%v: got %v want %v", c.expr, c.val, got, c.want)
		}
	}
}

func TestConditionFailsOpenOnMissingIdent(t *testing.T) {
	cond, err := CompileCondition(`context["missing"] == "x"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !cond.Eval(Roots{Context: map[string]any{}}) {
		t.Error("expected fail-open (true) on missing key")
	}
}

func TestConditionRejectsCalls(t *testing.T) {
	_, err := CompileCondition(`len(value) > 0`)
	if err == nil {
		t.Fatal("expected parse error for call in condition grammar")
	}
}

func TestConditionRejectsAttributeAccess(t *testing.T) {
	_, err := CompileCondition(`value.foo == 1`)
	if err == nil {
		t.Fatal("expected parse error for attribute access")
	}
}

func TestTransformWhitelistedCalls(t *testing.T) {
	tr, err := CompileTransform(`len(value)`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got := tr.Eval(Roots{Value: []any{"a", "b", "c"}}, nil)
	if got != float64(3) {
		t.Errorf("got %v want 3", got)
	}
}

func TestTransformRejectsUnknownCall(t *testing.T) {
	_, err := CompileTransform(`eval(value)`)
	if err == nil {
		t.Fatal("expected compile error for non-whitelisted call")
	}
}

func TestTransformJSONRoundtrip(t *testing.T) {
	tr, err := CompileTransform(`json.loads(value)`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got := tr.Eval(Roots{Value: `{"a": 1}`}, nil)
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	if m["a"] != float64(1) {
		t.Errorf("got %v", m)
	}
}

func TestTransformFallsBackOnError(t *testing.T) {
	tr, err := CompileTransform(`json.loads(value)`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var captured error
	got := tr.Eval(Roots{Value: "not json"}, func(e error) { captured = e })
	if got != nil {
		t.Errorf("expected nil fallback, got %v", got)
	}
	if captured == nil {
		t.Error("expected onError to be invoked")
	}
}

func TestSubscriptAndDict(t *testing.T) {
	cond, err := CompileCondition(`value["status"] == "ready"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ok := cond.Eval(Roots{Value: map[string]any{"status": "ready"}})
	if !ok {
		t.Error("expected subscript lookup to match")
	}
}
