package store

import (
	"fmt"
	"strings"

	"github.com/SacredTexts/huly/internal/ir"
)

// compileFind converts a DocQuery into parameterized SQL over documents.
//
// Reserved keys (_id, space, base_id) compare columns; every other key is a
// dot path into the attributes JSON compared with json_extract. A Null value
// matches a missing or null attribute. Every query is ordered by id.
func compileFind(q ir.DocQuery, classes []ir.ClassRef, limit int) (string, []any, error) {
	var (
		where  []string
		params []any
	)

	if len(classes) == 0 && q.Class != "" {
		classes = []ir.ClassRef{q.Class}
	}
	if len(classes) > 0 {
		marks := make([]string, len(classes))
		for i, c := range classes {
			marks[i] = "?"
			params = append(params, string(c))
		}
		where = append(where, "class IN ("+strings.Join(marks, ", ")+")")
	}

	for _, key := range q.Query.SortedKeys() {
		clause, args, err := compileEquals(key, q.Query[key])
		if err != nil {
			return "", nil, err
		}
		where = append(where, clause)
		params = append(params, args...)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(docColumns)
	b.WriteString(" FROM documents")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY id ASC COLLATE BINARY")
	if limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}
	return b.String(), params, nil
}

func compileEquals(key string, v ir.Value) (string, []any, error) {
	var column string
	switch key {
	case ir.KeyID:
		column = "id"
	case ir.KeySpace:
		column = "space"
	case ir.KeyBaseID:
		column = "base_id"
	case ir.KeyClass:
		column = "class"
	default:
		path, err := jsonPath(key)
		if err != nil {
			return "", nil, err
		}
		column = "json_extract(attributes, '" + path + "')"
	}

	switch val := v.(type) {
	case nil, ir.Null:
		return column + " IS NULL", nil, nil
	case ir.String:
		return column + " = ?", []any{string(val)}, nil
	case ir.Int:
		return column + " = ?", []any{int64(val)}, nil
	case ir.Bool:
		// json_extract yields 1/0 for JSON booleans
		n := 0
		if val {
			n = 1
		}
		return column + " = ?", []any{n}, nil
	case ir.Array, ir.Object:
		data, err := ir.Encode(val)
		if err != nil {
			return "", nil, fmt.Errorf("query %s: %w", key, err)
		}
		return column + " = ?", []any{string(data)}, nil
	default:
		return "", nil, fmt.Errorf("query %s: unsupported value %T", key, v)
	}
}

// jsonPath quotes every segment of a dot path: a.b -> $."a"."b".
// Segments are embedded in SQL text, so quotes and backslashes are refused.
func jsonPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("query has an empty attribute name")
	}
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(key, ".") {
		if seg == "" || strings.ContainsAny(seg, `"'\`) {
			return "", fmt.Errorf("query attribute %q is not a valid path", key)
		}
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String(), nil
}
