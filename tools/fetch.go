package tools

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
)

const defaultFetchChars = 5000

// Extraction modes for fetch_page.
const (
	ModeText     = "text"
	ModeArticle  = "article"
	ModeMarkdown = "markdown"
)

// Page is the extracted content of a fetched URL.
type Page struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Length int    `json:"length"`
}

// FetchPageTool downloads a page and returns its readable text. Search engine
// result pages are refused.
type FetchPageTool struct {
	Client *http.Client
}

func (t *FetchPageTool) Name() string { return "fetch_page" }
func (t *FetchPageTool) Description() string {
	return "Fetch a web page and return its title and main text, truncated to max_chars."
}
func (t *FetchPageTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"url":       prop("string", "Absolute http(s) URL to fetch"),
		"max_chars": prop("integer", "Maximum characters of text to return (1000-15000, default 5000)"),
		"mode": map[string]interface{}{
			"type":        "string",
			"enum":        []interface{}{ModeText, ModeArticle, ModeMarkdown},
			"description": "text: headings, paragraphs and list items; article: readability main content; markdown: main content as Markdown",
		},
	}, "url")
}

func (t *FetchPageTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	target := stringArg(args, "url")
	if target == "" {
		return toolError("empty_url"), nil
	}
	if IsSERP(target) {
		return toolError("blocked_serp_url", "url", target), nil
	}
	maxChars := clampInt(intArg(args, "max_chars", defaultFetchChars), 1000, 15000)
	page, err := t.Fetch(ctx, target, stringArg(args, "mode"))
	if err != nil {
		return toolError("fetch_failed: "+err.Error(), "url", target), nil
	}
	page.Text = truncateRunes(page.Text, maxChars)
	page.Length = len([]rune(page.Text))
	return page, nil
}

// Fetch downloads target and extracts it with the given mode. The text is not
// truncated.
func (t *FetchPageTool) Fetch(ctx context.Context, target, mode string) (*Page, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", target)
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	body, finalURL, err := fetchBody(ctx, clientOrDefault(t.Client), req)
	if err != nil {
		return nil, err
	}
	switch mode {
	case "", ModeText:
		return extractText(body, finalURL)
	case ModeArticle:
		return extractArticle(body, finalURL, false)
	case ModeMarkdown:
		return extractArticle(body, finalURL, true)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

// extractText keeps the title plus h1-h3, paragraph and list item text.
func extractText(body []byte, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	doc.Find("script, style, noscript").Remove()
	var parts []string
	doc.Find("h1, h2, h3, p, li").Each(func(i int, s *goquery.Selection) {
		if text := collapseSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return &Page{
		URL:   pageURL,
		Title: collapseSpace(doc.Find("title").First().Text()),
		Text:  collapseSpace(strings.Join(parts, " ")),
	}, nil
}

func extractArticle(body []byte, pageURL string, asMarkdown bool) (*Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, fmt.Errorf("extract article: %w", err)
	}
	page := &Page{URL: pageURL, Title: strings.TrimSpace(article.Title())}
	var buf bytes.Buffer
	if !asMarkdown {
		if err := article.RenderText(&buf); err != nil {
			return nil, err
		}
		page.Text = collapseSpace(buf.String())
		return page, nil
	}
	if err := article.RenderHTML(&buf); err != nil {
		return nil, err
	}
	md, err := htmltomarkdown.ConvertString(buf.String(), converter.WithDomain(pageURL))
	if err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	page.Text = cleanMarkdown(md)
	return page, nil
}

// cleanMarkdown trims trailing spaces and squeezes runs of blank lines.
func cleanMarkdown(md string) string {
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank <= 1 {
				out = append(out, "")
			}
			continue
		}
		blank = 0
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
