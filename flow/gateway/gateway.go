// Package gateway provides HTTP-backed implementations of the engine's
// retrieval collaborators: a reranking service client
// (collab.RerankProvider) and a keyword-search client
// (collab.KeywordIndex). Both speak plain JSON over HTTP, the common
// denominator of hosted rerank APIs and lexical search engines, so a
// deployment can point them at whichever service it runs.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config locates a gateway service. APIKey, when set, is sent as a
// bearer token; TenantHeader (default X-Tenant-ID) carries the tenant
// id on requests made with a non-empty tenant id (rerank calls), so
// multi-tenant services can scope access server-side. Keyword searches
// send no tenant header.
type Config struct {
	BaseURL      string
	APIKey       string
	TenantHeader string
	Client       *http.Client
}

func (c Config) normalize() Config {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TenantHeader == "" {
		c.TenantHeader = "X-Tenant-ID"
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// postJSON sends body to url and decodes the JSON response into out.
// Statuses of 400 and above become errors carrying the status and a truncated
// response body, phrased so the recovery layer's keyword classifier
// sees the transport context.
func postJSON(ctx context.Context, cfg Config, url, tenantID string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gateway: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	if tenantID != "" {
		req.Header.Set(cfg.TenantHeader, tenantID)
	}

	resp, err := cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: connection failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway: http %d from %s: %s", resp.StatusCode, url, truncate(string(raw), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
