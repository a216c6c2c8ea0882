package tools

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultNewsResults = 15
	newsRegion         = "wt-wt"
)

// NewsResult is one article from the news vertical.
type NewsResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
	Date    string `json:"date,omitempty"`
}

// NewsSearchTool asks DuckDuckGo's HTML frontend for its news vertical.
type NewsSearchTool struct {
	Client   *http.Client
	Endpoint string
}

func (t *NewsSearchTool) Name() string { return "web_news_search" }
func (t *NewsSearchTool) Description() string {
	return "Search DuckDuckGo for the latest news articles. Ideal for current events and recent information."
}
func (t *NewsSearchTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"keywords":    prop("string", "The topic or keywords to search for in the news."),
		"region":      prop("string", "Region for the search, e.g. us-en or uk-en. Default is wt-wt."),
		"max_results": prop("integer", "The maximum number of news articles to return (1-30, default 15)."),
		"timelimit": map[string]interface{}{
			"type":        "string",
			"enum":        []interface{}{"d", "w", "m"},
			"description": "Filter news by time: d (day), w (week) or m (month).",
		},
	}, "keywords")
}

func (t *NewsSearchTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	keywords := stringArg(args, "keywords")
	if keywords == "" {
		return toolError("empty_query"), nil
	}
	region := stringArg(args, "region")
	if region == "" {
		region = newsRegion
	}
	limit := clampInt(intArg(args, "max_results", defaultNewsResults), 1, 30)
	results, err := t.Search(ctx, keywords, limit, region, stringArg(args, "timelimit"))
	if err != nil {
		return toolError("ddgs_news_failed: "+err.Error(), "keywords", keywords), nil
	}
	if len(results) == 0 {
		return map[string]interface{}{"keywords": keywords, "results": "No news found."}, nil
	}
	return map[string]interface{}{"keywords": keywords, "results": results}, nil
}

// Search returns at most limit news articles for query.
func (t *NewsSearchTool) Search(ctx context.Context, query string, limit int, region, timeLimit string) ([]NewsResult, error) {
	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = DuckDuckGoHTMLURL
	}
	form := duckDuckGoForm(query, region, timeLimit)
	form.Set("ia", "news")
	form.Set("iar", "news")
	body, err := postDuckDuckGo(ctx, t.Client, endpoint, form)
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGoNews(body, limit)
}

func parseDuckDuckGoNews(body []byte, limit int) ([]NewsResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	results := make([]NewsResult, 0, limit)
	seen := make(map[string]bool)
	doc.Find(".result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, ok := s.Find("a.result__a").First().Attr("href")
		if !ok {
			return true
		}
		target := resolveDuckDuckGoLink(href)
		if target == "" || seen[target] || IsSERP(target) {
			return true
		}
		seen[target] = true
		results = append(results, NewsResult{
			Title:   collapseSpace(s.Find("a.result__a").First().Text()),
			URL:     target,
			Snippet: collapseSpace(s.Find(".result__snippet").First().Text()),
			Source:  collapseSpace(s.Find(".result__url").First().Text()),
			Date:    collapseSpace(s.Find(".result__timestamp").First().Text()),
		})
		return len(results) < limit
	})
	return results, nil
}
