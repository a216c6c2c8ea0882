package tools

import (
	"context"
	"fmt"

	"github.com/lexcodex/thinkloop/framework"
	"github.com/lexcodex/thinkloop/persistence"
)

const defaultFindLimit = 25

func collectionProp() map[string]interface{} {
	return prop("string", "Collection name (letters, digits and underscores)")
}

func filterProp(desc string) map[string]interface{} {
	return prop("object", desc)
}

// DocStoreTools exposes store as db_* tools. Failures come back as
// {"error": "<tool> failed: ..."} values so the model can react to them.
func DocStoreTools(store *persistence.DocStore) []framework.Tool {
	wrap := func(name string, fn func(ctx context.Context, coll string, args map[string]interface{}) (interface{}, error)) framework.ToolHandler {
		return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			out, err := fn(ctx, stringArg(args, "collection"), args)
			if err != nil {
				return toolError(fmt.Sprintf("%s failed: %v", name, err)), nil
			}
			return out, nil
		}
	}

	return []framework.Tool{
		framework.NewFuncTool("db_insert_one", "Insert a JSON document into a collection and return its id.",
			objectSchema(map[string]interface{}{
				"collection": collectionProp(),
				"document":   prop("object", "The JSON document to insert."),
			}, "collection", "document"),
			wrap("db_insert_one", func(ctx context.Context, coll string, args map[string]interface{}) (interface{}, error) {
				id, err := store.InsertOne(ctx, coll, objectArg(args, "document"))
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"inserted_id": id}, nil
			})),

		framework.NewFuncTool("db_find_one", "Find the first document in a collection matching an equality filter.",
			objectSchema(map[string]interface{}{
				"collection": collectionProp(),
				"filter":     filterProp("Field/value pairs that must all match."),
			}, "collection"),
			wrap("db_find_one", func(ctx context.Context, coll string, args map[string]interface{}) (interface{}, error) {
				doc, err := store.FindOne(ctx, coll, objectArg(args, "filter"))
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"document": doc}, nil
			})),

		framework.NewFuncTool("db_find", "Find documents in a collection matching an equality filter. Returns up to 25 documents by default.",
			objectSchema(map[string]interface{}{
				"collection": collectionProp(),
				"filter":     filterProp("Field/value pairs that must all match."),
				"limit":      prop("integer", "Maximum number of documents to return."),
			}, "collection"),
			wrap("db_find", func(ctx context.Context, coll string, args map[string]interface{}) (interface{}, error) {
				limit := intArg(args, "limit", defaultFindLimit)
				if limit <= 0 {
					limit = defaultFindLimit
				}
				docs, err := store.Find(ctx, coll, objectArg(args, "filter"), limit)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"documents": docs, "count": len(docs)}, nil
			})),

		framework.NewFuncTool("db_update_one", "Update the first document matching the filter, using $set/$unset or a plain object to merge.",
			objectSchema(map[string]interface{}{
				"collection": collectionProp(),
				"filter":     filterProp("Field/value pairs selecting the document."),
				"update":     prop("object", "Either {\"$set\": {...}, \"$unset\": {...}} or fields to merge."),
			}, "collection", "filter", "update"),
			wrap("db_update_one", func(ctx context.Context, coll string, args map[string]interface{}) (interface{}, error) {
				n, err := store.UpdateOne(ctx, coll, objectArg(args, "filter"), objectArg(args, "update"))
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"matched_count": n, "modified_count": n}, nil
			})),

		framework.NewFuncTool("db_delete_one", "Delete the first document matching the filter.",
			objectSchema(map[string]interface{}{
				"collection": collectionProp(),
				"filter":     filterProp("Field/value pairs selecting the document."),
			}, "collection", "filter"),
			wrap("db_delete_one", func(ctx context.Context, coll string, args map[string]interface{}) (interface{}, error) {
				n, err := store.DeleteOne(ctx, coll, objectArg(args, "filter"))
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"deleted_count": n}, nil
			})),

		framework.NewFuncTool("db_count_documents", "Count documents in a collection matching an equality filter.",
			objectSchema(map[string]interface{}{
				"collection": collectionProp(),
				"filter":     filterProp("Field/value pairs that must all match."),
			}, "collection"),
			wrap("db_count_documents", func(ctx context.Context, coll string, args map[string]interface{}) (interface{}, error) {
				n, err := store.Count(ctx, coll, objectArg(args, "filter"))
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"count": n}, nil
			})),

		framework.NewFuncTool("db_aggregate", "Run an aggregation pipeline ($match, $group, $sort, $skip, $limit, $count) over a collection.",
			objectSchema(map[string]interface{}{
				"collection": collectionProp(),
				"pipeline": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "object"},
					"description": "Stages applied in order, e.g. [{\"$group\": {\"_id\": \"$city\", \"n\": {\"$sum\": 1}}}].",
				},
			}, "collection", "pipeline"),
			wrap("db_aggregate", func(ctx context.Context, coll string, args map[string]interface{}) (interface{}, error) {
				raw, _ := args["pipeline"].([]interface{})
				pipeline := make([]persistence.Document, 0, len(raw))
				for _, s := range raw {
					st, ok := s.(map[string]interface{})
					if !ok {
						return nil, fmt.Errorf("%w: stages must be objects", persistence.ErrInvalidPipeline)
					}
					pipeline = append(pipeline, st)
				}
				docs, err := store.Aggregate(ctx, coll, pipeline)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"documents": docs, "count": len(docs)}, nil
			})),

		framework.NewFuncTool("db_list_collections", "List the collections that hold documents.",
			objectSchema(map[string]interface{}{}),
			wrap("db_list_collections", func(ctx context.Context, _ string, _ map[string]interface{}) (interface{}, error) {
				names, err := store.Collections(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"collections": names}, nil
			})),

		framework.NewFuncTool("db_drop_collection", "Delete every document in a collection.",
			objectSchema(map[string]interface{}{
				"collection": collectionProp(),
			}, "collection"),
			wrap("db_drop_collection", func(ctx context.Context, coll string, _ map[string]interface{}) (interface{}, error) {
				n, err := store.DropCollection(ctx, coll)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"message": fmt.Sprintf("Collection '%s' dropped (%d documents).", coll, n)}, nil
			})),
	}
}
