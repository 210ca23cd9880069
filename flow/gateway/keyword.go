package gateway

import (
	"context"
	"net/url"

	"github.com/ragforge/flowengine/flow/collab"
)

// HTTPKeywordIndex calls a lexical search service: POST
// {base}/indexes/{index}/search with the query, top_k, and an optional
// metadata filter. Index names arrive already tenant-namespaced by the
// caller (the shared tenant_{id}_{kb} convention), so the service needs
// no tenancy logic of its own; no tenant header is sent.
type HTTPKeywordIndex struct {
	cfg Config
}

// NewHTTPKeywordIndex builds a keyword-search client from cfg.
func NewHTTPKeywordIndex(cfg Config) *HTTPKeywordIndex {
	return &HTTPKeywordIndex{cfg: cfg.normalize()}
}

var _ collab.KeywordIndex = (*HTTPKeywordIndex)(nil)

type keywordSearchRequest struct {
	Query  string         `json:"query"`
	TopK   int            `json:"top_k"`
	Filter map[string]any `json:"filter,omitempty"`
}

type keywordSearchResponse struct {
	Hits []struct {
		Text     string         `json:"text"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"hits"`
}

// Search implements collab.KeywordIndex.
func (k *HTTPKeywordIndex) Search(ctx context.Context, index, query string, topK int, filter map[string]any) ([]collab.KeywordHit, error) {
	endpoint := k.cfg.BaseURL + "/indexes/" + url.PathEscape(index) + "/search"

	var resp keywordSearchResponse
	err := postJSON(ctx, k.cfg, endpoint, "", keywordSearchRequest{
		Query:  query,
		TopK:   topK,
		Filter: filter,
	}, &resp)
	if err != nil {
		return nil, err
	}

	hits := make([]collab.KeywordHit, len(resp.Hits))
	for i, hit := range resp.Hits {
		hits[i] = collab.KeywordHit{Text: hit.Text, Score: hit.Score, Metadata: hit.Metadata}
	}
	return hits, nil
}
