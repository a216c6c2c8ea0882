package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultSearxResults = 10

// MetaResult is one SearXNG hit, tagged with the query that produced it.
type MetaResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Query   string `json:"query"`
}

// SearxngSearchTool runs one or more queries against a SearXNG instance's JSON
// API and merges the hits, dropping duplicate URLs.
type SearxngSearchTool struct {
	BaseURL string
	Client  *http.Client
}

func (t *SearxngSearchTool) Name() string { return "searxng_search" }
func (t *SearxngSearchTool) Description() string {
	return "Run one or more queries through a SearXNG meta-search instance and return merged {url, title, content, query} results."
}
func (t *SearxngSearchTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"queries": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"minItems":    1,
			"description": "Search queries to run",
		},
		"max_results": prop("integer", "Maximum results per query (default 10)"),
	}, "queries")
}

func (t *SearxngSearchTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var queries []string
	if raw, ok := args["queries"].([]interface{}); ok {
		for _, q := range raw {
			if s, ok := q.(string); ok && strings.TrimSpace(s) != "" {
				queries = append(queries, strings.TrimSpace(s))
			}
		}
	}
	if len(queries) == 0 {
		return toolError("empty_query", "results", []MetaResult{}), nil
	}
	if strings.TrimSpace(t.BaseURL) == "" {
		return toolError("searxng_not_configured: set SEARXNG_URL", "results", []MetaResult{}), nil
	}
	limit := clampInt(intArg(args, "max_results", defaultSearxResults), 1, 50)

	seen := make(map[string]bool)
	results := make([]MetaResult, 0)
	for _, q := range queries {
		hits, err := t.Search(ctx, q, limit)
		if err != nil {
			return toolError("searxng_search_failed: "+err.Error(), "query", q, "results", results), nil
		}
		for _, h := range hits {
			if seen[h.URL] {
				continue
			}
			seen[h.URL] = true
			results = append(results, h)
		}
	}
	return map[string]interface{}{"results": results}, nil
}

// Search runs a single query and returns at most limit results.
func (t *SearxngSearchTool) Search(ctx context.Context, query string, limit int) ([]MetaResult, error) {
	endpoint := strings.TrimRight(t.BaseURL, "/") + "/search"
	body, err := getJSON(ctx, clientOrDefault(t.Client), endpoint, url.Values{
		"q":      {query},
		"format": {"json"},
	})
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	var out []MetaResult
	gjson.GetBytes(body, "results").ForEach(func(_, item gjson.Result) bool {
		link := item.Get("url").String()
		if !strings.HasPrefix(link, "http") {
			return true
		}
		out = append(out, MetaResult{
			URL:     link,
			Title:   item.Get("title").String(),
			Content: item.Get("content").String(),
			Query:   query,
		})
		return len(out) < limit
	})
	return out, nil
}
