package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	userAgent          = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultHTTPTimeout = 15 * time.Second
	maxBodyBytes       = 5 << 20
)

// NewHTTPClient returns the client the network tools share by default.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return NewHTTPClient()
}

// serpHosts are search engine result pages; they are never useful sources.
var serpHosts = map[string]bool{
	"bing.com": true, "www.bing.com": true,
	"google.com": true, "www.google.com": true,
	"duckduckgo.com": true, "www.duckduckgo.com": true, "html.duckduckgo.com": true,
	"search.yahoo.com": true, "yahoo.com": true, "www.yahoo.com": true,
	"startpage.com": true, "www.startpage.com": true,
	"yandex.com": true, "www.yandex.com": true, "yandex.ru": true, "www.yandex.ru": true,
	"baidu.com": true, "www.baidu.com": true,
}

// IsSERP reports whether raw points at a search engine result page.
func IsSERP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if serpHosts[host] {
		return true
	}
	path := strings.ToLower(u.Path)
	searchPath := strings.Contains(path, "/search") || strings.Contains(path, "/html") || strings.Contains(path, "/lite")
	if !searchPath {
		return false
	}
	for _, engine := range []string{"google.com", "bing.com", "duckduckgo.com", "yahoo.com"} {
		if strings.HasSuffix(host, engine) {
			return true
		}
	}
	return false
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		req := make([]interface{}, len(required))
		for i, r := range required {
			req[i] = r
		}
		schema["required"] = req
	}
	return schema
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func stringArg(args map[string]interface{}, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func floatArg(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func objectArg(args map[string]interface{}, key string) map[string]interface{} {
	if m, ok := args[key].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// toolError is the soft-failure shape the model sees instead of a Go error.
func toolError(code string, extra ...interface{}) map[string]interface{} {
	out := map[string]interface{}{"error": code}
	for i := 0; i+1 < len(extra); i += 2 {
		if k, ok := extra[i].(string); ok {
			out[k] = extra[i+1]
		}
	}
	return out
}

// fetchBody performs req with the shared user agent and returns at most
// maxBodyBytes of the body together with the final URL.
func fetchBody(ctx context.Context, client *http.Client, req *http.Request) ([]byte, string, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", err
	}
	return body, resp.Request.URL.String(), nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, query url.Values) ([]byte, error) {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	body, _, err := fetchBody(ctx, client, req)
	return body, err
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
