package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// ErrInvalidPipeline reports a malformed or unsupported aggregation stage.
var ErrInvalidPipeline = errors.New("invalid pipeline")

// Aggregate runs a pipeline of stages over collection. Supported stages are
// $match (top-level equality), $group, $sort (one field, 1 or -1), $skip,
// $limit and $count. A leading $match is evaluated by SQLite; the rest run in
// memory over the documents it returns.
//
// $group takes an "_id" expression ("$field", a constant or null) and named
// accumulators: $sum, $avg, $min, $max, $first, $last, $push and $count.
func (s *DocStore) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	stages := make([]stage, 0, len(pipeline))
	for i, raw := range pipeline {
		st, err := parseStage(raw)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		stages = append(stages, st)
	}

	var filter Document
	if len(stages) > 0 && stages[0].op == "$match" {
		filter = stages[0].spec.(map[string]interface{})
		stages = stages[1:]
	}
	docs, err := s.Find(ctx, collection, filter, 0)
	if err != nil {
		return nil, err
	}
	for i, st := range stages {
		if docs, err = st.apply(docs); err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, st.op, err)
		}
	}
	return docs, nil
}

type stage struct {
	op   string
	spec interface{}
}

func parseStage(raw Document) (stage, error) {
	if len(raw) != 1 {
		return stage{}, fmt.Errorf("%w: a stage has exactly one operator", ErrInvalidPipeline)
	}
	for op, spec := range raw {
		switch op {
		case "$match", "$group", "$sort":
			if _, ok := spec.(map[string]interface{}); !ok {
				return stage{}, fmt.Errorf("%w: %s takes an object", ErrInvalidPipeline, op)
			}
		case "$skip", "$limit":
			n, ok := toFloat(spec)
			if !ok || n < 0 || n != math.Trunc(n) {
				return stage{}, fmt.Errorf("%w: %s takes a non-negative integer", ErrInvalidPipeline, op)
			}
		case "$count":
			if name, ok := spec.(string); !ok || checkName(name) != nil {
				return stage{}, fmt.Errorf("%w: $count takes a field name", ErrInvalidPipeline)
			}
		default:
			return stage{}, fmt.Errorf("%w: unsupported stage %s", ErrInvalidPipeline, op)
		}
		return stage{op: op, spec: spec}, nil
	}
	return stage{}, ErrInvalidPipeline
}

func (st stage) apply(docs []Document) ([]Document, error) {
	switch st.op {
	case "$match":
		filter := st.spec.(map[string]interface{})
		out := make([]Document, 0, len(docs))
		for _, doc := range docs {
			if matchDocument(doc, filter) {
				out = append(out, doc)
			}
		}
		return out, nil
	case "$group":
		return group(docs, st.spec.(map[string]interface{}))
	case "$sort":
		return sortDocuments(docs, st.spec.(map[string]interface{}))
	case "$skip":
		n, _ := toFloat(st.spec)
		if int(n) >= len(docs) {
			return []Document{}, nil
		}
		return docs[int(n):], nil
	case "$limit":
		n, _ := toFloat(st.spec)
		if int(n) < len(docs) {
			return docs[:int(n)], nil
		}
		return docs, nil
	case "$count":
		return []Document{{st.spec.(string): float64(len(docs))}}, nil
	}
	return nil, fmt.Errorf("%w: unsupported stage %s", ErrInvalidPipeline, st.op)
}

func matchDocument(doc Document, filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok && want != nil {
			return false
		}
		if compareValues(got, want) != 0 {
			return false
		}
	}
	return true
}

type accumulator struct {
	name string
	op   string
	expr interface{}
}

type groupState struct {
	id     interface{}
	values map[string]interface{}
	counts map[string]int
}

func group(docs []Document, spec map[string]interface{}) ([]Document, error) {
	idExpr, ok := spec[IDField]
	if !ok {
		return nil, fmt.Errorf("%w: $group needs an _id", ErrInvalidPipeline)
	}
	accs := make([]accumulator, 0, len(spec))
	for name, raw := range spec {
		if name == IDField {
			continue
		}
		body, ok := raw.(map[string]interface{})
		if !ok || len(body) != 1 {
			return nil, fmt.Errorf("%w: accumulator %q takes one operator", ErrInvalidPipeline, name)
		}
		for op, expr := range body {
			switch op {
			case "$sum", "$avg", "$min", "$max", "$first", "$last", "$push", "$count":
			default:
				return nil, fmt.Errorf("%w: unsupported accumulator %s", ErrInvalidPipeline, op)
			}
			accs = append(accs, accumulator{name: name, op: op, expr: expr})
		}
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i].name < accs[j].name })

	var order []string
	groups := map[string]*groupState{}
	for _, doc := range docs {
		id := evalExpr(doc, idExpr)
		key := groupKey(id)
		g, ok := groups[key]
		if !ok {
			g = &groupState{id: id, values: map[string]interface{}{}, counts: map[string]int{}}
			groups[key] = g
			order = append(order, key)
		}
		for _, acc := range accs {
			accumulate(g, acc, doc)
		}
	}

	out := make([]Document, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := Document{IDField: g.id}
		for _, acc := range accs {
			v := g.values[acc.name]
			if acc.op == "$avg" {
				if n := g.counts[acc.name]; n > 0 {
					v = v.(float64) / float64(n)
				}
			}
			if acc.op == "$push" && v == nil {
				v = []interface{}{}
			}
			row[acc.name] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func accumulate(g *groupState, acc accumulator, doc Document) {
	cur, seen := g.values[acc.name]
	switch acc.op {
	case "$count":
		n, _ := cur.(float64)
		g.values[acc.name] = n + 1
	case "$sum", "$avg":
		n, _ := cur.(float64)
		v, ok := toFloat(evalExpr(doc, acc.expr))
		if !ok {
			if !seen {
				g.values[acc.name] = float64(0)
			}
			return
		}
		g.values[acc.name] = n + v
		g.counts[acc.name]++
	case "$min", "$max":
		v := evalExpr(doc, acc.expr)
		if v == nil {
			return
		}
		c := compareValues(v, cur)
		if !seen || cur == nil || (acc.op == "$min" && c < 0) || (acc.op == "$max" && c > 0) {
			g.values[acc.name] = v
		}
	case "$first":
		if !seen {
			g.values[acc.name] = evalExpr(doc, acc.expr)
		}
	case "$last":
		g.values[acc.name] = evalExpr(doc, acc.expr)
	case "$push":
		list, _ := cur.([]interface{})
		g.values[acc.name] = append(list, evalExpr(doc, acc.expr))
	}
}

// evalExpr resolves "$field" references against doc; anything else is a
// constant.
func evalExpr(doc Document, expr interface{}) interface{} {
	if ref, ok := expr.(string); ok && strings.HasPrefix(ref, "$") {
		return doc[strings.TrimPrefix(ref, "$")]
	}
	return expr
}

func groupKey(id interface{}) string {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Sprintf("%#v", id)
	}
	return string(data)
}

func sortDocuments(docs []Document, spec map[string]interface{}) ([]Document, error) {
	if len(spec) != 1 {
		return nil, fmt.Errorf("%w: $sort takes exactly one field", ErrInvalidPipeline)
	}
	var field string
	var dir float64
	for k, v := range spec {
		field = k
		dir, _ = toFloat(v)
	}
	if dir != 1 && dir != -1 {
		return nil, fmt.Errorf("%w: $sort direction must be 1 or -1", ErrInvalidPipeline)
	}
	out := append([]Document(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		c := compareValues(out[i][field], out[j][field])
		if dir < 0 {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

// compareValues orders null < numbers < strings < booleans < everything else.
func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(groupKey(a), groupKey(b))
}

func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case float64, float32, int, int64, json.Number:
		return 1
	case string:
		return 2
	case bool:
		return 3
	}
	return 4
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
