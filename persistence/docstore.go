package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
)

// Document is a schemaless JSON object. The store keeps its id under "_id".
type Document map[string]interface{}

// IDField is the key that carries a document's id.
const IDField = "_id"

var (
	// ErrInvalidName reports a collection or field name outside [A-Za-z_][A-Za-z0-9_]*.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidFilter reports a filter value that is not a JSON scalar.
	ErrInvalidFilter = errors.New("invalid filter")

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// DocStore is a small document database on top of SQLite. Every document
// lives in one table keyed by collection; filters are equality matches on
// top-level fields evaluated with json_extract.
type DocStore struct {
	db *sql.DB
}

// OpenDocStore opens or creates the database at path. ":memory:" gives a
// private in-memory store.
func OpenDocStore(path string) (*DocStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("docstore path required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	store := &DocStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *DocStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT NOT NULL,
		collection TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`)
	return err
}

// Close releases the database handle.
func (s *DocStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertOne stores doc and returns its id. A string "_id" in doc is kept,
// otherwise a new one is generated.
func (s *DocStore) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	if err := checkName(collection); err != nil {
		return "", err
	}
	body := cloneDocument(doc)
	id, _ := body[IDField].(string)
	if id == "" {
		var err error
		if id, err = gonanoid.New(); err != nil {
			return "", err
		}
	}
	body[IDField] = id
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, collection, string(data), now, now)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

// Find returns documents matching filter in insertion order. limit <= 0
// means no limit.
func (s *DocStore) Find(ctx context.Context, collection string, filter Document, limit int) ([]Document, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return nil, err
	}
	query := `SELECT body FROM documents WHERE ` + where + ` ORDER BY rowid`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]Document, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// FindOne returns the first match or nil.
func (s *DocStore) FindOne(ctx context.Context, collection string, filter Document) (Document, error) {
	docs, err := s.Find(ctx, collection, filter, 1)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// UpdateOne applies update to the first match and reports how many
// documents were modified (0 or 1). update is either {"$set": {...},
// "$unset": {...}} or a plain object merged into the document. "_id" never
// changes.
func (s *DocStore) UpdateOne(ctx context.Context, collection string, filter, update Document) (int64, error) {
	set, unset, err := splitUpdate(update)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	var id, raw string
	err = tx.QueryRowContext(ctx, `SELECT id, body FROM documents WHERE `+where+` ORDER BY rowid LIMIT 1`, args...).Scan(&id, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return 0, err
	}
	for k, v := range set {
		doc[k] = v
	}
	for _, k := range unset {
		delete(doc, k)
	}
	doc[IDField] = id
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(data), time.Now().UTC(), collection, id); err != nil {
		return 0, err
	}
	return 1, tx.Commit()
}

// DeleteOne removes the first match and reports how many were deleted.
func (s *DocStore) DeleteOne(ctx context.Context, collection string, filter Document) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE rowid = (SELECT rowid FROM documents WHERE `+where+` ORDER BY rowid LIMIT 1)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of documents matching filter.
func (s *DocStore) Count(ctx context.Context, collection string, filter Document) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&n)
	return n, err
}

// Collections lists non-empty collections in name order.
func (s *DocStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT collection FROM documents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, rows.Err()
}

// DropCollection deletes every document of collection.
func (s *DocStore) DropCollection(ctx context.Context, collection string) (int64, error) {
	if err := checkName(collection); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func checkName(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// buildWhere turns an equality filter into a WHERE clause. Keys are sorted so
// the generated SQL is stable.
func buildWhere(collection string, filter Document) (string, []interface{}, error) {
	if err := checkName(collection); err != nil {
		return "", nil, err
	}
	clauses := []string{"collection = ?"}
	args := []interface{}{collection}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := checkName(key); err != nil {
			return "", nil, err
		}
		value := filter[key]
		if key == IDField {
			id, ok := value.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: _id must be a string", ErrInvalidFilter)
			}
			clauses = append(clauses, "id = ?")
			args = append(args, id)
			continue
		}
		path := "$." + key
		switch v := value.(type) {
		case nil:
			clauses = append(clauses, "json_type(body, ?) = 'null'")
			args = append(args, path)
		case bool:
			clauses = append(clauses, "json_extract(body, ?) = ?")
			args = append(args, path, boolInt(v))
		case string, float64, int, int64:
			clauses = append(clauses, "json_extract(body, ?) = ?")
			args = append(args, path, v)
		default:
			return "", nil, fmt.Errorf("%w: field %q must be a scalar", ErrInvalidFilter, key)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func splitUpdate(update Document) (map[string]interface{}, []string, error) {
	if len(update) == 0 {
		return nil, nil, errors.New("empty update")
	}
	set := map[string]interface{}{}
	var unset []string
	operators := false
	for k, v := range update {
		switch k {
		case "$set":
			operators = true
			fields, ok := v.(map[string]interface{})
			if !ok {
				return nil, nil, errors.New("$set must be an object")
			}
			for fk, fv := range fields {
				set[fk] = fv
			}
		case "$unset":
			operators = true
			fields, ok := v.(map[string]interface{})
			if !ok {
				return nil, nil, errors.New("$unset must be an object")
			}
			for fk := range fields {
				unset = append(unset, fk)
			}
		default:
			if strings.HasPrefix(k, "$") {
				return nil, nil, fmt.Errorf("unsupported update operator %s", k)
			}
			set[k] = v
		}
	}
	if operators {
		for k := range update {
			if !strings.HasPrefix(k, "$") {
				return nil, nil, errors.New("cannot mix update operators with plain fields")
			}
		}
	}
	delete(set, IDField)
	for k := range set {
		if err := checkName(k); err != nil {
			return nil, nil, err
		}
	}
	return set, unset, nil
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
