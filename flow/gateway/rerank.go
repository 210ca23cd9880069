package gateway

import (
	"context"

	"github.com/ragforge/flowengine/flow/collab"
)

// HTTPReranker calls a Cohere-style rerank endpoint: POST {base}/rerank
// with the query and document texts, receiving index/score pairs back.
// Documents are returned rescored and reordered; each keeps its original
// fields plus a rerank_score.
type HTTPReranker struct {
	cfg Config
}

// NewHTTPReranker builds a reranker client from cfg.
func NewHTTPReranker(cfg Config) *HTTPReranker {
	return &HTTPReranker{cfg: cfg.normalize()}
}

var _ collab.RerankProvider = (*HTTPReranker)(nil)

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank implements collab.RerankProvider. The provider argument selects
// the service-side model; documents missing a text field contribute an
// empty string so index alignment with the response is preserved.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []map[string]any, provider string, topK int, tenantID string) ([]map[string]any, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	texts := make([]string, len(documents))
	for i, doc := range documents {
		text, _ := doc["text"].(string)
		texts[i] = text
	}

	var resp rerankResponse
	err := postJSON(ctx, r.cfg, r.cfg.BaseURL+"/rerank", tenantID, rerankRequest{
		Query:     query,
		Documents: texts,
		Model:     provider,
		TopN:      topK,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.Index < 0 || result.Index >= len(documents) {
			continue
		}
		doc := make(map[string]any, len(documents[result.Index])+1)
		for k, v := range documents[result.Index] {
			doc[k] = v
		}
		doc["rerank_score"] = result.RelevanceScore
		out = append(out, doc)
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
