package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/thinkloop/persistence"
)

func TestBuildRegistry(t *testing.T) {
	store, err := persistence.OpenDocStore(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	defer store.Close()

	registry, err := BuildRegistry([]string{"math", "web", "MATH", "wiki", "db", "search"}, Options{
		SearxngURL: "http://searx.local",
		DocStore:   store,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"calc", "matrix_operation", "web_search", "fetch_page", "web_news_search",
		"wikipedia_search", "wikipedia_summary", "wikipedia_get_page_content",
		"wikipedia_get_page_section_text", "wikipedia_get_page_links",
		"wikipedia_get_page_categories", "wikipedia_geosearch",
		"db_insert_one", "db_find_one", "db_find", "db_update_one", "db_delete_one",
		"db_count_documents", "db_aggregate", "db_list_collections", "db_drop_collection",
		"searxng_search",
	}, registry.Names())
}

func TestBuildRegistryErrors(t *testing.T) {
	_, err := BuildRegistry([]string{"db"}, Options{})
	assert.ErrorContains(t, err, "requires a document store")

	_, err = BuildRegistry([]string{"search"}, Options{})
	assert.ErrorContains(t, err, "requires a SearXNG URL")

	_, err = BuildRegistry([]string{"shell"}, Options{})
	assert.ErrorContains(t, err, "unknown toolkit")

	registry, err := BuildRegistry(nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, registry.Len())
}

func TestRegistryValidatesToolArguments(t *testing.T) {
	registry, err := BuildRegistry(DefaultToolkits, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	outcome := registry.Invoke(ctx, "calc", map[string]interface{}{"expression": "1 + 1"})
	require.False(t, outcome.Failed())
	assert.Equal(t, `{"expression":"1 + 1","value":2}`, outcome.Observation())

	outcome = registry.Invoke(ctx, "calc", map[string]interface{}{"expr": "1 + 1"})
	assert.True(t, outcome.Failed())

	outcome = registry.Invoke(ctx, "web_search", map[string]interface{}{"query": "x", "time": "century"})
	assert.True(t, outcome.Failed())
}

func TestDocStoreTools(t *testing.T) {
	store, err := persistence.OpenDocStore(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	defer store.Close()
	registry, err := BuildRegistry([]string{"db"}, Options{DocStore: store})
	require.NoError(t, err)
	ctx := context.Background()

	outcome := registry.Invoke(ctx, "db_insert_one", map[string]interface{}{
		"collection": "notes",
		"document":   map[string]interface{}{"text": "hi", "n": float64(1)},
	})
	require.False(t, outcome.Failed())
	id := outcome.Value.(map[string]interface{})["inserted_id"].(string)
	assert.NotEmpty(t, id)

	outcome = registry.Invoke(ctx, "db_find", map[string]interface{}{"collection": "notes", "filter": map[string]interface{}{"n": float64(1)}})
	require.False(t, outcome.Failed())
	found := outcome.Value.(map[string]interface{})
	assert.Equal(t, 1, found["count"])

	outcome = registry.Invoke(ctx, "db_update_one", map[string]interface{}{
		"collection": "notes",
		"filter":     map[string]interface{}{"_id": id},
		"update":     map[string]interface{}{"$set": map[string]interface{}{"text": "bye"}},
	})
	require.False(t, outcome.Failed())
	assert.Equal(t, map[string]interface{}{"matched_count": int64(1), "modified_count": int64(1)}, outcome.Value)

	outcome = registry.Invoke(ctx, "db_find_one", map[string]interface{}{"collection": "notes", "filter": map[string]interface{}{"text": "bye"}})
	require.False(t, outcome.Failed())
	doc := outcome.Value.(map[string]interface{})["document"].(persistence.Document)
	assert.Equal(t, id, doc["_id"])

	outcome = registry.Invoke(ctx, "db_count_documents", map[string]interface{}{"collection": "notes"})
	assert.Equal(t, map[string]interface{}{"count": int64(1)}, outcome.Value)

	outcome = registry.Invoke(ctx, "db_aggregate", map[string]interface{}{
		"collection": "notes",
		"pipeline": []interface{}{
			map[string]interface{}{"$group": map[string]interface{}{"_id": "$text", "n": map[string]interface{}{"$sum": float64(1)}}},
		},
	})
	require.False(t, outcome.Failed())
	assert.Equal(t, map[string]interface{}{
		"documents": []persistence.Document{{"_id": "bye", "n": float64(1)}},
		"count":     1,
	}, outcome.Value)

	outcome = registry.Invoke(ctx, "db_aggregate", map[string]interface{}{
		"collection": "notes",
		"pipeline":   []interface{}{map[string]interface{}{"$out": "copy"}},
	})
	require.False(t, outcome.Failed())
	assert.Contains(t, outcome.Value.(map[string]interface{})["error"], "db_aggregate failed: stage 0: invalid pipeline")

	outcome = registry.Invoke(ctx, "db_list_collections", map[string]interface{}{})
	assert.Equal(t, map[string]interface{}{"collections": []string{"notes"}}, outcome.Value)

	outcome = registry.Invoke(ctx, "db_find_one", map[string]interface{}{"collection": "bad name"})
	require.False(t, outcome.Failed())
	assert.Contains(t, outcome.Value.(map[string]interface{})["error"], "db_find_one failed: invalid name")

	outcome = registry.Invoke(ctx, "db_delete_one", map[string]interface{}{"collection": "notes", "filter": map[string]interface{}{"_id": id}})
	assert.Equal(t, map[string]interface{}{"deleted_count": int64(1)}, outcome.Value)

	outcome = registry.Invoke(ctx, "db_drop_collection", map[string]interface{}{"collection": "notes"})
	assert.Equal(t, map[string]interface{}{"message": "Collection 'notes' dropped (0 documents)."}, outcome.Value)
}
