package tools

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/lexcodex/thinkloop/framework"
	"github.com/lexcodex/thinkloop/persistence"
)

// Toolkit names accepted by Toolkits and BuildRegistry.
const (
	ToolkitMath   = "math"
	ToolkitWeb    = "web"
	ToolkitWiki   = "wiki"
	ToolkitDB     = "db"
	ToolkitSearch = "search"
)

// DefaultToolkits are enabled when nothing else is configured.
var DefaultToolkits = []string{ToolkitMath, ToolkitWeb}

// Options carries the collaborators the toolkits depend on.
type Options struct {
	HTTPClient   *http.Client
	SearchURL    string // DuckDuckGo endpoint override
	SearxngURL   string
	WikiLanguage string
	WikiEndpoint string
	DocStore     *persistence.DocStore
}

// Toolkit returns the tools of one named toolkit.
func Toolkit(name string, opts Options) ([]framework.Tool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ToolkitMath:
		return []framework.Tool{&CalcTool{}, &MatrixTool{}}, nil
	case ToolkitWeb:
		return []framework.Tool{
			&WebSearchTool{Client: opts.HTTPClient, Endpoint: opts.SearchURL},
			&FetchPageTool{Client: opts.HTTPClient},
			&NewsSearchTool{Client: opts.HTTPClient, Endpoint: opts.SearchURL},
		}, nil
	case ToolkitWiki:
		api := &WikipediaAPI{Endpoint: opts.WikiEndpoint, Language: opts.WikiLanguage, Client: opts.HTTPClient}
		return []framework.Tool{
			&WikipediaSearchTool{API: api},
			&WikipediaSummaryTool{API: api},
			&WikipediaContentTool{API: api},
			&WikipediaSectionTool{API: api},
			&WikipediaLinksTool{API: api},
			&WikipediaCategoriesTool{API: api},
			&WikipediaGeoSearchTool{API: api},
		}, nil
	case ToolkitDB:
		if opts.DocStore == nil {
			return nil, fmt.Errorf("toolkit %q requires a document store", ToolkitDB)
		}
		return DocStoreTools(opts.DocStore), nil
	case ToolkitSearch:
		if strings.TrimSpace(opts.SearxngURL) == "" {
			return nil, fmt.Errorf("toolkit %q requires a SearXNG URL", ToolkitSearch)
		}
		return []framework.Tool{&SearxngSearchTool{BaseURL: opts.SearxngURL, Client: opts.HTTPClient}}, nil
	default:
		return nil, fmt.Errorf("unknown toolkit %q (available: %s)", name, strings.Join(ToolkitNames(), ", "))
	}
}

// ToolkitNames lists every known toolkit.
func ToolkitNames() []string {
	names := []string{ToolkitMath, ToolkitWeb, ToolkitWiki, ToolkitDB, ToolkitSearch}
	sort.Strings(names)
	return names
}

// BuildRegistry registers the tools of every named toolkit, in order.
// Duplicate toolkit names are ignored.
func BuildRegistry(names []string, opts Options) (*framework.ToolRegistry, error) {
	registry := framework.NewToolRegistry()
	seen := make(map[string]bool)
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		kit, err := Toolkit(key, opts)
		if err != nil {
			return nil, err
		}
		for _, tool := range kit {
			if err := registry.Register(tool); err != nil {
				return nil, err
			}
		}
	}
	return registry, nil
}
