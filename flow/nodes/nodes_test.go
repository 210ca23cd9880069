package nodes

import (
	"context"
	"testing"

	"github.com/ragforge/flowengine/flow"
)

func TestRunInputFlattensPayload(t *testing.T) {
	execCtx := flow.NewExecutionContext("e1", "w1", map[string]any{"text": "hello"}, nil)
	out, err := runInput(context.Background(), &flow.Node{}, nil, execCtx)
	if err != nil {
		t.Fatalf("runInput: %v", err)
	}
	if out["prompt"] != "hello" || out["query"] != "hello" || out["text"] != "hello" {
		t.Errorf("aliases not filled: %+v", out)
	}
}

func TestRunOutputSelectPath(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"select_path": "user.name"}}
	input := map[string]any{"data": map[string]any{"user": map[string]any{"name": "ada"}}}
	out, err := runOutput(context.Background(), n, input, nil)
	if err != nil {
		t.Fatalf("runOutput: %v", err)
	}
	if out["result"] != "ada" {
		t.Errorf("result = %v, want ada", out["result"])
	}
}

func TestRunOutputTemplate(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"template": "hello {{name}}"}}
	input := map[string]any{"data": map[string]any{"name": "world"}}
	out, err := runOutput(context.Background(), n, input, nil)
	if err != nil {
		t.Fatalf("runOutput: %v", err)
	}
	if out["result"] != "hello world" {
		t.Errorf("result = %v, want %q", out["result"], "hello world")
	}
}

func TestRunOutputPassthrough(t *testing.T) {
	n := &flow.Node{}
	input := map[string]any{"data": map[string]any{"a": 1}}
	out, err := runOutput(context.Background(), n, input, nil)
	if err != nil {
		t.Fatalf("runOutput: %v", err)
	}
	m, ok := out["result"].(map[string]any)
	if !ok || m["a"] != 1 {
		t.Errorf("result = %v, want passthrough of data", out["result"])
	}
}

func TestRunConditionOperators(t *testing.T) {
	cases := []struct {
		condType string
		value    any
		condVal  any
		want     bool
	}{
		{"equals", "a", "a", true},
		{"equals", "a", "b", false},
		{"contains", "hello world", "world", true},
		{"greater_than", 5.0, 3.0, true},
		{"less_than", 2.0, 3.0, true},
		{"", "nonempty", nil, true},
	}
	for _, c := range cases {
		n := &flow.Node{Config: map[string]any{"condition_type": c.condType, "condition_value": c.condVal}}
		out, err := runCondition(context.Background(), n, map[string]any{"value": c.value}, nil)
		if err != nil {
			t.Fatalf("runCondition: %v", err)
		}
		if out["condition_result"] != c.want {
			t.Errorf("condType=%s value=%v condVal=%v: got %v, want %v", c.condType, c.value, c.condVal, out["condition_result"], c.want)
		}
	}
}

func TestRunParserJSON(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"parse_type": "json"}}
	out, err := runParser(context.Background(), n, map[string]any{"text": `{"a":1}`}, nil)
	if err != nil {
		t.Fatalf("runParser: %v", err)
	}
	if out["success"] != true {
		t.Fatalf("expected success, got %+v", out)
	}
}

func TestRunParserJSONFailure(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"parse_type": "json"}}
	out, err := runParser(context.Background(), n, map[string]any{"text": "not json"}, nil)
	if err != nil {
		t.Fatalf("runParser: %v", err)
	}
	if out["success"] != false {
		t.Fatalf("expected failure, got %+v", out)
	}
}

func TestRunParserExtractFields(t *testing.T) {
	n := &flow.Node{Config: map[string]any{
		"parse_type": "extract_fields",
		"fields": []any{
			map[string]any{"name": "code", "pattern": `code:\s*(\d+)`},
			map[string]any{"name": "urgent"},
		},
	}}
	out, err := runParser(context.Background(), n, map[string]any{"text": "code: 42, this is urgent"}, nil)
	if err != nil {
		t.Fatalf("runParser: %v", err)
	}
	fields, _ := out["parsed_data"].(map[string]any)
	if fields["code"] != "42" {
		t.Errorf("code = %v, want 42", fields["code"])
	}
	if fields["urgent"] != true {
		t.Errorf("urgent = %v, want true", fields["urgent"])
	}
}

func TestRunDataTransformerExtract(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"transform_type": "extract", "fields": []any{"a", "b"}}}
	input := map[string]any{"data": map[string]any{"a": 1, "b": 2, "c": 3}}
	out, err := runDataTransformer(context.Background(), n, input, nil)
	if err != nil {
		t.Fatalf("runDataTransformer: %v", err)
	}
	if out["a"] != 1 || out["b"] != 2 {
		t.Errorf("out = %+v", out)
	}
	if _, ok := out["c"]; ok {
		t.Errorf("unexpected field c in %+v", out)
	}
}

func TestRunDataTransformerJSON(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"transform_type": "json"}}
	input := map[string]any{"data": map[string]any{"a": 1}}
	out, err := runDataTransformer(context.Background(), n, input, nil)
	if err != nil {
		t.Fatalf("runDataTransformer: %v", err)
	}
	if out["json_output"] != `{"a":1}` {
		t.Errorf("json_output = %v", out["json_output"])
	}
}

func TestTextSplitterFixedLength(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"split_type": "fixed_length", "max_length": 10.0, "overlap": 2.0}}
	text := "abcdefghijklmnopqrstuvwxyz"
	out, err := runTextSplitter(context.Background(), n, map[string]any{"text": text}, nil)
	if err != nil {
		t.Fatalf("runTextSplitter: %v", err)
	}
	chunks, _ := out["chunks"].([]string)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if chunks[0] != "abcdefghij" {
		t.Errorf("first chunk = %q", chunks[0])
	}
}

func TestTextSplitterParagraph(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"split_type": "paragraph"}}
	out, err := runTextSplitter(context.Background(), n, map[string]any{"text": "one\n\ntwo\n\nthree"}, nil)
	if err != nil {
		t.Fatalf("runTextSplitter: %v", err)
	}
	if out["chunk_count"] != 3 {
		t.Errorf("chunk_count = %v, want 3", out["chunk_count"])
	}
}

func TestDataFilterCondition(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"filter_type": "condition", "condition": "value > 2"}}
	input := map[string]any{"data": []any{1.0, 2.0, 3.0, 4.0}}
	out, err := runDataFilter(context.Background(), n, input, nil)
	if err != nil {
		t.Fatalf("runDataFilter: %v", err)
	}
	if out["filtered_count"] != 2 {
		t.Errorf("filtered_count = %v, want 2", out["filtered_count"])
	}
}

func TestDataFilterUnique(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"filter_type": "unique"}}
	input := map[string]any{"data": []any{"a", "b", "a", "c"}}
	out, err := runDataFilter(context.Background(), n, input, nil)
	if err != nil {
		t.Fatalf("runDataFilter: %v", err)
	}
	if out["filtered_count"] != 3 {
		t.Errorf("filtered_count = %v, want 3", out["filtered_count"])
	}
}

func TestDataAggregatorSum(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"aggregation": "sum", "field": "n"}}
	input := map[string]any{"data": []any{
		map[string]any{"n": 1.0},
		map[string]any{"n": 2.0},
		map[string]any{"n": 3.0},
	}}
	out, err := runDataAggregator(context.Background(), n, input, nil)
	if err != nil {
		t.Fatalf("runDataAggregator: %v", err)
	}
	if out["result"] != 6.0 {
		t.Errorf("result = %v, want 6", out["result"])
	}
}

func TestCryptoHash(t *testing.T) {
	n := &flow.Node{Config: map[string]any{"operation": "hash", "algorithm": "sha256"}}
	out, err := runCrypto(context.Background(), n, map[string]any{"data": "hello"}, nil)
	if err != nil {
		t.Fatalf("runCrypto: %v", err)
	}
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if out["hash_value"] != want {
		t.Errorf("hash_value = %v, want %v", out["hash_value"], want)
	}
}

func TestCryptoBase64RoundTrip(t *testing.T) {
	enc := &flow.Node{Config: map[string]any{"operation": "base64_encode"}}
	out, err := runCrypto(context.Background(), enc, map[string]any{"data": "hello"}, nil)
	if err != nil {
		t.Fatalf("runCrypto encode: %v", err)
	}
	encoded, _ := out["encoded_data"].(string)

	dec := &flow.Node{Config: map[string]any{"operation": "base64_decode"}}
	out2, err := runCrypto(context.Background(), dec, map[string]any{"data": encoded}, nil)
	if err != nil {
		t.Fatalf("runCrypto decode: %v", err)
	}
	if out2["decoded_data"] != "hello" {
		t.Errorf("decoded_data = %v, want hello", out2["decoded_data"])
	}
}

func TestConfigureRegistersAllTypes(t *testing.T) {
	reg := flow.NewRegistry()
	Register(reg, Dependencies{})
	want := []string{
		"input", "output", "llm", "rag_retriever", "hybrid_retriever", "retriever",
		"reranker", "classifier", "parser", "condition", "data_transformer",
		"embeddings", "http_request", "code_executor", "text_splitter",
		"data_filter", "data_aggregator", "crypto",
	}
	for _, typ := range want {
		if !reg.Has(typ) {
			t.Errorf("type %q not registered", typ)
		}
	}
}

func TestLLMUnconfiguredReturnsDependencyError(t *testing.T) {
	reg := flow.NewRegistry()
	Register(reg, Dependencies{})
	runner, _, err := reg.Build(&flow.Node{ID: "n1", Type: "llm"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, err = runner.Run(context.Background(), &flow.Node{ID: "n1", Type: "llm"}, map[string]any{"prompt": "hi"}, nil)
	if err == nil {
		t.Fatal("expected a missing-dependency error")
	}
}
