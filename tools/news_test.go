package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ddgNewsFixture = `<html><body>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fnews.example%2Fgo-126">Go 1.26 released</a></h2>
  <a class="result__url" href="#"> news.example </a>
  <span class="result__timestamp">2 hours ago</span>
  <a class="result__snippet" href="#">The Go team   shipped a new release.</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="https://www.bing.com/news/search?q=go">Bing</a></h2>
</div>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="https://wire.example/gophers">Gophers everywhere</a></h2>
</div>
</body></html>`

func TestNewsSearchTool(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = map[string]string{
			"q": r.PostForm.Get("q"), "kl": r.PostForm.Get("kl"), "df": r.PostForm.Get("df"), "ia": r.PostForm.Get("ia"),
		}
		fmt.Fprint(w, ddgNewsFixture)
	}))
	defer srv.Close()

	tool := &NewsSearchTool{Client: srv.Client(), Endpoint: srv.URL}
	out, err := tool.Invoke(context.Background(), map[string]interface{}{"keywords": "go release", "timelimit": "d"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"q": "go release", "kl": "wt-wt", "df": "d", "ia": "news"}, form)
	assert.Equal(t, map[string]interface{}{
		"keywords": "go release",
		"results": []NewsResult{
			{Title: "Go 1.26 released", URL: "https://news.example/go-126", Snippet: "The Go team shipped a new release.", Source: "news.example", Date: "2 hours ago"},
			{Title: "Gophers everywhere", URL: "https://wire.example/gophers"},
		},
	}, out)

	out, err = tool.Invoke(context.Background(), map[string]interface{}{"keywords": "go", "max_results": float64(1), "region": "uk-en"})
	require.NoError(t, err)
	assert.Len(t, out.(map[string]interface{})["results"], 1)
	assert.Equal(t, "uk-en", form["kl"])
}

func TestNewsSearchToolEmptyAndFailing(t *testing.T) {
	out, err := (&NewsSearchTool{}).Invoke(context.Background(), map[string]interface{}{"keywords": ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"error": "empty_query"}, out)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>no results</body></html>")
	}))
	defer srv.Close()
	out, err = (&NewsSearchTool{Client: srv.Client(), Endpoint: srv.URL}).Invoke(context.Background(), map[string]interface{}{"keywords": "quiet day"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"keywords": "quiet day", "results": "No news found."}, out)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer failing.Close()
	out, err = (&NewsSearchTool{Client: failing.Client(), Endpoint: failing.URL}).Invoke(context.Background(), map[string]interface{}{"keywords": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"error": "ddgs_news_failed: http 403", "keywords": "x"}, out)
}
