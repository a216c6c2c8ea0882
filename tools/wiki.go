package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	errPageNotFound    = errors.New("page not found")
	errSectionNotFound = errors.New("section_not_found")

	languageRe = regexp.MustCompile(`^[a-z]{2,3}(-[a-z]{2,8})*$`)
	headingRe  = regexp.MustCompile(`^(={2,6})\s*(.*?)\s*={2,6}$`)
)

// WikipediaAPI talks to the MediaWiki action API of one Wikipedia edition.
type WikipediaAPI struct {
	// Endpoint defaults to https://<Language>.wikipedia.org/w/api.php.
	Endpoint string
	Language string
	Client   *http.Client
}

func (w *WikipediaAPI) endpoint() string {
	if w == nil {
		return "https://en.wikipedia.org/w/api.php"
	}
	if w.Endpoint != "" {
		return w.Endpoint
	}
	lang := w.Language
	if lang == "" {
		lang = "en"
	}
	return "https://" + lang + ".wikipedia.org/w/api.php"
}

// In returns a copy of w bound to another language edition. An empty lang
// keeps w; a malformed one reports false. An explicit Endpoint still wins
// over the language.
func (w *WikipediaAPI) In(lang string) (*WikipediaAPI, bool) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return w, true
	}
	if !languageRe.MatchString(lang) {
		return nil, false
	}
	out := WikipediaAPI{Language: lang}
	if w != nil {
		out.Endpoint, out.Client = w.Endpoint, w.Client
	}
	return &out, true
}

func (w *WikipediaAPI) query(ctx context.Context, params url.Values) (gjson.Result, error) {
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("formatversion", "2")
	var client *http.Client
	if w != nil {
		client = w.Client
	}
	body, err := getJSON(ctx, clientOrDefault(client), w.endpoint(), params)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON response")
	}
	res := gjson.ParseBytes(body)
	if msg := res.Get("error.info"); msg.Exists() {
		return gjson.Result{}, errors.New(msg.String())
	}
	return res, nil
}

// page returns the single page object of a titles= query, following redirects.
func (w *WikipediaAPI) page(ctx context.Context, title string, params url.Values) (gjson.Result, error) {
	params.Set("titles", title)
	params.Set("redirects", "1")
	res, err := w.query(ctx, params)
	if err != nil {
		return gjson.Result{}, err
	}
	page := res.Get("query.pages.0")
	if !page.Exists() || page.Get("missing").Bool() || page.Get("invalid").Bool() {
		return gjson.Result{}, errPageNotFound
	}
	return page, nil
}

// Search returns up to limit matching page titles.
func (w *WikipediaAPI) Search(ctx context.Context, query string, limit int) ([]string, error) {
	res, err := w.query(ctx, url.Values{
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}
	return titles(res.Get("query.search")), nil
}

// Summary returns the plain-text intro, or the first n sentences when n > 0.
func (w *WikipediaAPI) Summary(ctx context.Context, title string, sentences int) (string, error) {
	params := url.Values{"prop": {"extracts"}, "explaintext": {"1"}}
	if sentences > 0 {
		params.Set("exsentences", strconv.Itoa(sentences))
	} else {
		params.Set("exintro", "1")
	}
	page, err := w.page(ctx, title, params)
	if err != nil {
		return "", err
	}
	return page.Get("extract").String(), nil
}

// Content returns the full plain-text extract of a page.
func (w *WikipediaAPI) Content(ctx context.Context, title string) (string, error) {
	page, err := w.page(ctx, title, url.Values{"prop": {"extracts"}, "explaintext": {"1"}})
	if err != nil {
		return "", err
	}
	return page.Get("extract").String(), nil
}

// Links lists the titles of pages linked from title.
func (w *WikipediaAPI) Links(ctx context.Context, title string) ([]string, error) {
	page, err := w.page(ctx, title, url.Values{"prop": {"links"}, "pllimit": {"max"}})
	if err != nil {
		return nil, err
	}
	return titles(page.Get("links")), nil
}

// Categories lists the categories title belongs to.
func (w *WikipediaAPI) Categories(ctx context.Context, title string) ([]string, error) {
	page, err := w.page(ctx, title, url.Values{"prop": {"categories"}, "cllimit": {"max"}})
	if err != nil {
		return nil, err
	}
	return titles(page.Get("categories")), nil
}

// Section returns the plain text under the heading named section, including
// its subsections.
func (w *WikipediaAPI) Section(ctx context.Context, title, section string) (string, error) {
	content, err := w.Content(ctx, title)
	if err != nil {
		return "", err
	}
	return extractSection(content, section)
}

// GeoSearch lists pages within radius meters of a coordinate, nearest first.
func (w *WikipediaAPI) GeoSearch(ctx context.Context, lat, lon float64, radius, limit int) ([]string, error) {
	res, err := w.query(ctx, url.Values{
		"list":     {"geosearch"},
		"gscoord":  {strconv.FormatFloat(lat, 'f', -1, 64) + "|" + strconv.FormatFloat(lon, 'f', -1, 64)},
		"gsradius": {strconv.Itoa(radius)},
		"gslimit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}
	return titles(res.Get("query.geosearch")), nil
}

// extractSection cuts one section out of an explaintext extract, where
// headings look like "== History ==" and deeper levels add more "=".
func extractSection(content, section string) (string, error) {
	var (
		body  []string
		level int
	)
	for _, line := range strings.Split(content, "\n") {
		m := headingRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			if level > 0 {
				body = append(body, line)
			}
			continue
		}
		depth := len(m[1])
		if level > 0 {
			if depth <= level {
				break
			}
			body = append(body, line)
			continue
		}
		if strings.EqualFold(m[2], strings.TrimSpace(section)) {
			level = depth
		}
	}
	if level == 0 {
		return "", errSectionNotFound
	}
	return strings.TrimSpace(strings.Join(body, "\n")), nil
}

func titles(list gjson.Result) []string {
	out := make([]string, 0)
	list.ForEach(func(_, item gjson.Result) bool {
		if t := item.Get("title").String(); t != "" {
			out = append(out, t)
		}
		return true
	})
	return out
}

func langProp() map[string]interface{} {
	return prop("string", "Optional Wikipedia language code for this call, e.g. 'de' or 'fr'. Defaults to the configured edition.")
}

func titleSchema(desc string) map[string]interface{} {
	return objectSchema(map[string]interface{}{"title": prop("string", desc), "lang": langProp()}, "title")
}

func invalidLanguage(args map[string]interface{}) map[string]interface{} {
	return toolError("invalid_language", "lang", stringArg(args, "lang"))
}

// WikipediaSearchTool returns matching page titles.
type WikipediaSearchTool struct{ API *WikipediaAPI }

func (t *WikipediaSearchTool) Name() string { return "wikipedia_search" }
func (t *WikipediaSearchTool) Description() string {
	return "Search Wikipedia for a query and return a list of matching page titles."
}
func (t *WikipediaSearchTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"query":   prop("string", "The term or phrase to search for on Wikipedia."),
		"results": prop("integer", "The maximum number of results to return. Defaults to 10."),
		"lang":    langProp(),
	}, "query")
}
func (t *WikipediaSearchTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		return toolError("empty_query"), nil
	}
	api, ok := t.API.In(stringArg(args, "lang"))
	if !ok {
		return invalidLanguage(args), nil
	}
	limit := intArg(args, "results", 10)
	if limit <= 0 {
		limit = 10
	}
	found, err := api.Search(ctx, query, clampInt(limit, 1, 50))
	if err != nil {
		return toolError("wikipedia_search failed: "+err.Error(), "query", query), nil
	}
	return map[string]interface{}{"query": query, "results": found}, nil
}

// WikipediaSummaryTool returns the introduction of a page.
type WikipediaSummaryTool struct{ API *WikipediaAPI }

func (t *WikipediaSummaryTool) Name() string        { return "wikipedia_summary" }
func (t *WikipediaSummaryTool) Description() string { return "Get a plain text summary of a Wikipedia page." }
func (t *WikipediaSummaryTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"title":     prop("string", "The exact title of the Wikipedia page."),
		"sentences": prop("integer", "The number of sentences to include. If 0, returns the introductory section."),
		"lang":      langProp(),
	}, "title")
}
func (t *WikipediaSummaryTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	title := stringArg(args, "title")
	if title == "" {
		return toolError("empty_title"), nil
	}
	api, ok := t.API.In(stringArg(args, "lang"))
	if !ok {
		return invalidLanguage(args), nil
	}
	summary, err := api.Summary(ctx, title, intArg(args, "sentences", 0))
	if err != nil {
		return toolError("wikipedia_summary failed: "+err.Error(), "title", title), nil
	}
	return map[string]interface{}{"title": title, "summary": summary}, nil
}

// WikipediaContentTool returns the full plain text of a page.
type WikipediaContentTool struct{ API *WikipediaAPI }

func (t *WikipediaContentTool) Name() string { return "wikipedia_get_page_content" }
func (t *WikipediaContentTool) Description() string {
	return "Retrieve the full plain text content of a Wikipedia page, excluding tables and images."
}
func (t *WikipediaContentTool) Schema() map[string]interface{} {
	return titleSchema("The exact title of the page to retrieve content from.")
}
func (t *WikipediaContentTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	title := stringArg(args, "title")
	if title == "" {
		return toolError("empty_title"), nil
	}
	api, ok := t.API.In(stringArg(args, "lang"))
	if !ok {
		return invalidLanguage(args), nil
	}
	content, err := api.Content(ctx, title)
	if err != nil {
		return toolError("wikipedia_page_content failed: "+err.Error(), "title", title), nil
	}
	return map[string]interface{}{"title": title, "content": content}, nil
}

// WikipediaLinksTool lists outgoing page links.
type WikipediaLinksTool struct{ API *WikipediaAPI }

func (t *WikipediaLinksTool) Name() string { return "wikipedia_get_page_links" }
func (t *WikipediaLinksTool) Description() string {
	return "List the titles of all Wikipedia pages linked from a given page."
}
func (t *WikipediaLinksTool) Schema() map[string]interface{} {
	return titleSchema("The title of the page.")
}
func (t *WikipediaLinksTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	title := stringArg(args, "title")
	if title == "" {
		return toolError("empty_title"), nil
	}
	api, ok := t.API.In(stringArg(args, "lang"))
	if !ok {
		return invalidLanguage(args), nil
	}
	links, err := api.Links(ctx, title)
	if err != nil {
		return toolError("wikipedia_page_links failed: "+err.Error(), "title", title), nil
	}
	return map[string]interface{}{"title": title, "links": links}, nil
}

// WikipediaCategoriesTool lists page categories.
type WikipediaCategoriesTool struct{ API *WikipediaAPI }

func (t *WikipediaCategoriesTool) Name() string { return "wikipedia_get_page_categories" }
func (t *WikipediaCategoriesTool) Description() string {
	return "List the categories a Wikipedia page belongs to."
}
func (t *WikipediaCategoriesTool) Schema() map[string]interface{} {
	return titleSchema("The title of the page.")
}
func (t *WikipediaCategoriesTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	title := stringArg(args, "title")
	if title == "" {
		return toolError("empty_title"), nil
	}
	api, ok := t.API.In(stringArg(args, "lang"))
	if !ok {
		return invalidLanguage(args), nil
	}
	cats, err := api.Categories(ctx, title)
	if err != nil {
		return toolError("wikipedia_page_categories failed: "+err.Error(), "title", title), nil
	}
	return map[string]interface{}{"title": title, "categories": cats}, nil
}

// WikipediaSectionTool returns the text of one section of a page.
type WikipediaSectionTool struct{ API *WikipediaAPI }

func (t *WikipediaSectionTool) Name() string { return "wikipedia_get_page_section_text" }
func (t *WikipediaSectionTool) Description() string {
	return "Get the plain text content of a specific section from a Wikipedia page."
}
func (t *WikipediaSectionTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"title":         prop("string", "The exact title of the page."),
		"section_title": prop("string", "The exact title of the section to retrieve."),
		"lang":          langProp(),
	}, "title", "section_title")
}
func (t *WikipediaSectionTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	title, section := stringArg(args, "title"), stringArg(args, "section_title")
	if title == "" || section == "" {
		return toolError("empty_title_or_section_title"), nil
	}
	api, ok := t.API.In(stringArg(args, "lang"))
	if !ok {
		return invalidLanguage(args), nil
	}
	text, err := api.Section(ctx, title, section)
	if errors.Is(err, errSectionNotFound) {
		return toolError("section_not_found", "title", title, "section_title", section), nil
	}
	if err != nil {
		return toolError("wikipedia_page_section_text failed: "+err.Error(), "title", title, "section_title", section), nil
	}
	return map[string]interface{}{"title": title, "section_title": section, "section_text": text}, nil
}

// WikipediaGeoSearchTool finds pages near a coordinate.
type WikipediaGeoSearchTool struct{ API *WikipediaAPI }

func (t *WikipediaGeoSearchTool) Name() string { return "wikipedia_geosearch" }
func (t *WikipediaGeoSearchTool) Description() string {
	return "Find Wikipedia articles geographically near a given latitude and longitude."
}
func (t *WikipediaGeoSearchTool) Schema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"latitude":  prop("number", "The latitude for the geographic search."),
		"longitude": prop("number", "The longitude for the geographic search."),
		"radius":    prop("integer", "Search radius in meters (must be between 10 and 10000). Defaults to 1000."),
		"results":   prop("integer", "The maximum number of results to return. Defaults to 10."),
		"lang":      langProp(),
	}, "latitude", "longitude")
}
func (t *WikipediaGeoSearchTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	lat, okLat := floatArg(args, "latitude")
	lon, okLon := floatArg(args, "longitude")
	if !okLat || !okLon || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return toolError("invalid_latitude_or_longitude"), nil
	}
	radius := intArg(args, "radius", 1000)
	if radius < 10 || radius > 10000 {
		return toolError("radius_out_of_bounds"), nil
	}
	limit := intArg(args, "results", 10)
	if limit <= 0 {
		limit = 10
	}
	api, ok := t.API.In(stringArg(args, "lang"))
	if !ok {
		return invalidLanguage(args), nil
	}
	found, err := api.GeoSearch(ctx, lat, lon, radius, clampInt(limit, 1, 500))
	if err != nil {
		return toolError("wikipedia_geosearch failed: "+err.Error(), "latitude", lat, "longitude", lon), nil
	}
	return map[string]interface{}{"latitude": lat, "longitude": lon, "radius": radius, "results": found}, nil
}
