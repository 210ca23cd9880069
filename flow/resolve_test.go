package flow

import "testing"

func TestResolveInputPriorityAndWholePayloadFallback(t *testing.T) {
	def := &WorkflowDefinition{
		Nodes: []Node{
			{ID: "A", Type: "input"},
			{ID: "B", Type: "llm", Signature: &NodeSignature{Inputs: []Port{{Name: "prompt"}}}},
		},
		Edges: []Edge{{ID: "e1", Source: "A", Target: "B", SourceOutput: "output", TargetInput: "input"}},
	}
	outputs := map[string]map[string]any{
		"A": {"result": "hello"},
	}
	cache := NewExprCache()
	input, err := ResolveInput(def, def.NodeByID("B"), outputs, map[string]any{}, map[string]any{}, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	if input["prompt"] != "hello" {
		t.Errorf("expected source priority to pick 'result', got %v", input)
	}
}

func TestResolveInputNoInboundUsesExecutionInput(t *testing.T) {
	def := &WorkflowDefinition{Nodes: []Node{{ID: "B", Type: "llm"}}}
	cache := NewExprCache()
	execInput := map[string]any{"q": "ping"}
	input, err := ResolveInput(def, def.NodeByID("B"), map[string]map[string]any{}, execInput, map[string]any{}, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	if input["q"] != "ping" {
		t.Errorf("expected execution input passthrough, got %v", input)
	}
}

func TestResolveInputConfigOverridesWithTemplate(t *testing.T) {
	def := &WorkflowDefinition{Nodes: []Node{{
		ID:   "B",
		Type: "llm",
		Config: map[string]any{
			"overrides": map[string]any{
				"system_prompt": "hello {{input.name}}",
			},
		},
	}}}
	cache := NewExprCache()
	execInput := map[string]any{"name": "world"}
	input, err := ResolveInput(def, def.NodeByID("B"), map[string]map[string]any{}, execInput, map[string]any{}, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	if input["system_prompt"] != "hello world" {
		t.Errorf("got %v", input["system_prompt"])
	}
}

func TestResolveInputDataMerge(t *testing.T) {
	def := &WorkflowDefinition{
		Nodes: []Node{
			{ID: "A", Type: "input"},
			{ID: "B", Type: "input"},
			{ID: "C", Type: "output"},
		},
		Edges: []Edge{
			{ID: "e1", Source: "A", Target: "C", SourceOutput: "output", TargetInput: "data"},
			{ID: "e2", Source: "B", Target: "C", SourceOutput: "output", TargetInput: "data"},
		},
	}
	outputs := map[string]map[string]any{
		"A": {"data": map[string]any{"x": 1.0}},
		"B": {"data": map[string]any{"y": 2.0}},
	}
	cache := NewExprCache()
	input, err := ResolveInput(def, def.NodeByID("C"), outputs, map[string]any{}, map[string]any{}, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	merged, ok := input["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected merged map, got %T", input["data"])
	}
	if merged["x"] != 1.0 || merged["y"] != 2.0 {
		t.Errorf("got %v", merged)
	}
}

func TestResolveInputConditionBindsSourceValue(t *testing.T) {
	def := &WorkflowDefinition{
		Nodes: []Node{
			{ID: "A", Type: "input"},
			{ID: "B", Type: "output", Signature: &NodeSignature{Inputs: []Port{{Name: "data"}}}},
		},
		Edges: []Edge{{
			ID: "e1", Source: "A", Target: "B",
			SourceOutput: "result", TargetInput: "data",
			Condition: `value == "active"`,
		}},
	}
	cache := NewExprCache()

	outputs := map[string]map[string]any{"A": {"result": "active"}}
	input, err := ResolveInput(def, def.NodeByID("B"), outputs, map[string]any{}, map[string]any{}, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	if input["data"] != "active" {
		t.Errorf("matching value should let the edge contribute, got %v", input)
	}

	outputs = map[string]map[string]any{"A": {"result": "inactive"}}
	input, err = ResolveInput(def, def.NodeByID("B"), outputs, map[string]any{"fallthrough": true}, map[string]any{}, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, contributed := input["data"]; contributed {
		t.Errorf("non-matching value should skip the edge, got %v", input)
	}
}

func TestResolveInputConditionSubscriptsSourceValue(t *testing.T) {
	def := &WorkflowDefinition{
		Nodes: []Node{
			{ID: "A", Type: "input"},
			{ID: "B", Type: "output", Signature: &NodeSignature{Inputs: []Port{{Name: "data"}}}},
		},
		Edges: []Edge{{
			ID: "e1", Source: "A", Target: "B",
			SourceOutput: "result", TargetInput: "data",
			Condition: `value["score"] > 0.5`,
		}},
	}
	cache := NewExprCache()
	outputs := map[string]map[string]any{"A": {"result": map[string]any{"score": 0.9}}}
	input, err := ResolveInput(def, def.NodeByID("B"), outputs, map[string]any{}, map[string]any{}, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, contributed := input["data"]; !contributed {
		t.Errorf("subscripted condition over the source value should hold, got %v", input)
	}
}
