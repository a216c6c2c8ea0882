package tools

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DuckDuckGoHTMLURL is the script-free DuckDuckGo results page.
	DuckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"

	defaultSearchResults = 8
	defaultRegion        = "us-en"
)

// SearchResult is one organic web result.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchTool queries DuckDuckGo and returns organic results with search
// engine pages filtered out.
type WebSearchTool struct {
	Client   *http.Client
	Endpoint string
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the web with DuckDuckGo and return a JSON list of {title, url, snippet} results."
}
func (t *WebSearchTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"query":       prop("string", "Search query"),
		"max_results": prop("integer", "Number of results to return (3-15, default 8)"),
		"region":      prop("string", "Region code such as us-en or uk-en"),
		"time": map[string]interface{}{
			"type":        "string",
			"enum":        []interface{}{"d", "w", "m", "y"},
			"description": "Restrict results to the past day, week, month or year",
		},
	}, "query")
}

func (t *WebSearchTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		return toolError("empty_query"), nil
	}
	limit := clampInt(intArg(args, "max_results", defaultSearchResults), 3, 15)
	region := stringArg(args, "region")
	if region == "" {
		region = defaultRegion
	}
	results, err := t.Search(ctx, query, limit, region, stringArg(args, "time"))
	if err != nil {
		return toolError("ddgs_search_failed: "+err.Error(), "query", query), nil
	}
	return map[string]interface{}{"query": query, "results": results}, nil
}

// Search runs the query and returns at most limit non-SERP results.
func (t *WebSearchTool) Search(ctx context.Context, query string, limit int, region, timeLimit string) ([]SearchResult, error) {
	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = DuckDuckGoHTMLURL
	}
	body, err := postDuckDuckGo(ctx, t.Client, endpoint, duckDuckGoForm(query, region, timeLimit))
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGo(body, limit)
}

func duckDuckGoForm(query, region, timeLimit string) url.Values {
	form := url.Values{}
	form.Set("q", query)
	form.Set("b", "")
	form.Set("kl", region)
	if timeLimit != "" {
		form.Set("df", timeLimit)
	}
	return form
}

func postDuckDuckGo(ctx context.Context, client *http.Client, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	body, _, err := fetchBody(ctx, clientOrDefault(client), req)
	return body, err
}

func parseDuckDuckGo(body []byte, limit int) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	results := make([]SearchResult, 0, limit)
	seen := make(map[string]bool)
	doc.Find(".result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := resolveDuckDuckGoLink(href)
		if target == "" || seen[target] || IsSERP(target) {
			return true
		}
		seen[target] = true
		results = append(results, SearchResult{
			Title:   collapseSpace(link.Text()),
			URL:     target,
			Snippet: collapseSpace(s.Find(".result__snippet").First().Text()),
		})
		return len(results) < limit
	})
	return results, nil
}

// resolveDuckDuckGoLink unwraps the /l/?uddg= redirect DuckDuckGo puts around
// result links.
func resolveDuckDuckGoLink(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
