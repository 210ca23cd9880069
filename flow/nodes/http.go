package nodes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/tmpl"
)

// registerHTTPRequest installs the http_request node type:
// GET/POST/PUT/PATCH/DELETE, with url/headers/params/body strings
// templated against data/input/context before the call is made. It never
// raises on a non-2xx response; success is purely status < 400.
func registerHTTPRequest(reg *flow.Registry, deps Dependencies) {
	flow.RegisterNodeType(reg, "http_request", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(func(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
			return runHTTPRequest(ctx, n, input, execCtx, deps.HTTPClient)
		}), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 32, NetworkMbps: 1},
		Parallelizable: true,
	})
}

func runHTTPRequest(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext, client *http.Client) (map[string]any, error) {
	roots := tmpl.Roots{Data: input, Input: input}
	if execCtx != nil {
		roots.Context = execCtx.GlobalContext
	}

	rawURL, _ := input["url"].(string)
	if rawURL == "" {
		rawURL = n.ConfigString("url")
	}
	rawURL = tmpl.Render(rawURL, roots)

	method := strings.ToUpper(n.ConfigString("method"))
	if method == "" {
		method = "GET"
	}

	if params, ok := n.Config["params"].(map[string]any); ok && len(params) > 0 {
		u, err := url.Parse(rawURL)
		if err == nil {
			q := u.Query()
			for k, v := range params {
				q.Set(k, tmpl.Render(toString(v), roots))
			}
			u.RawQuery = q.Encode()
			rawURL = u.String()
		}
	}

	body, contentType := buildRequestBody(n, input, roots)

	timeout := defaultHTTPTimeout
	if secs, ok := n.Config["timeout"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, rawURL, body)
	if err != nil {
		return nil, &flow.WorkflowError{Message: "http_request: " + err.Error(), Kind: string(flow.KindConfiguration)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := n.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, tmpl.Render(toString(v), roots))
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &flow.WorkflowError{Message: "http_request: " + err.Error(), Kind: string(flow.KindNetwork)}
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(resp.Body)
	responseHeaders := map[string]any{}
	for k, v := range resp.Header {
		if len(v) > 0 {
			responseHeaders[k] = v[0]
		}
	}

	var responseData any
	if err := json.Unmarshal(respBytes, &responseData); err != nil {
		responseData = string(respBytes)
	}

	return map[string]any{
		"status_code":   resp.StatusCode,
		"response_data": responseData,
		"headers":       responseHeaders,
		"success":       resp.StatusCode < 400,
	}, nil
}

// buildRequestBody renders config.body against roots. An object body is
// JSON-encoded; a string body is sent as raw templated text, per
// non-JSON bodies are sent as raw text.
func buildRequestBody(n *flow.Node, input map[string]any, roots tmpl.Roots) (io.Reader, string) {
	raw, ok := n.Config["body"]
	if !ok {
		if data, ok := input["data"]; ok && data != nil {
			raw = data
		}
	}
	switch v := raw.(type) {
	case nil:
		return nil, ""
	case string:
		rendered := tmpl.Render(v, roots)
		return strings.NewReader(rendered), "text/plain"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, ""
		}
		return strings.NewReader(string(b)), "application/json"
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}
