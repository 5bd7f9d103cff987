package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/bbls/internal/store"
)

// Query host functions over the export database. Rows are returned as Risor
// maps with primitive values.

func makeSymbolsByNameFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("symbols_by_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols_by_name", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("symbols_by_name: %v", err)
		}
		syms, qErr := s.SymbolsByName(name)
		if qErr != nil {
			return object.Errorf("symbols_by_name: %v", qErr)
		}
		return symbolsToList(syms)
	})
}

func makeCommentsByNameFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("comments_by_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("comments_by_name", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("comments_by_name: %v", err)
		}
		comments, qErr := s.CommentsByName(name)
		if qErr != nil {
			return object.Errorf("comments_by_name: %v", qErr)
		}
		results := make([]object.Object, 0, len(comments))
		for _, c := range comments {
			results = append(results, object.NewMap(map[string]object.Object{
				"id":      object.NewInt(c.ID),
				"file_id": object.NewInt(c.FileID),
				"name":    object.NewString(c.Name),
				"text":    object.NewString(c.Text),
				"line":    object.NewInt(int64(c.Line)),
			}))
		}
		return object.NewList(results)
	})
}

func makeRecipesByLayerFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("recipes_by_layer", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("recipes_by_layer", 1, len(args))
		}
		layer, err := toString(args[0])
		if err != nil {
			return object.Errorf("recipes_by_layer: %v", err)
		}
		recipes, qErr := s.RecipesByLayer(layer)
		if qErr != nil {
			return object.Errorf("recipes_by_layer: %v", qErr)
		}
		return elementsToList(recipes)
	})
}

// makeDBQueryFn creates "db_query", a read-only SQL escape hatch.
//
// db_query(sql, args...) → []map[string]any
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		// Only allow SELECT statements.
		trimmed := strings.TrimSpace(strings.ToUpper(sqlStr))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		rows, queryErr := s.DB().QueryContext(ctx, sqlStr, queryArgs...)
		if queryErr != nil {
			return object.Errorf("db_query: %v", queryErr)
		}
		defer rows.Close()

		cols, colErr := rows.Columns()
		if colErr != nil {
			return object.Errorf("db_query: columns: %v", colErr)
		}

		var results []object.Object
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return object.Errorf("db_query: scan: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: rows: %v", err)
		}
		if results == nil {
			results = []object.Object{}
		}
		return object.NewList(results)
	})
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

// symbolsToList converts a slice of store.Symbol to a Risor list of maps.
func symbolsToList(syms []*store.Symbol) object.Object {
	results := make([]object.Object, 0, len(syms))
	for _, sym := range syms {
		results = append(results, object.NewMap(map[string]object.Object{
			"id":         object.NewInt(sym.ID),
			"file_id":    object.NewInt(sym.FileID),
			"name":       object.NewString(sym.Name),
			"kind":       object.NewString(sym.Kind),
			"start_line": object.NewInt(int64(sym.StartLine)),
			"start_col":  object.NewInt(int64(sym.StartCol)),
			"end_line":   object.NewInt(int64(sym.EndLine)),
			"end_col":    object.NewInt(int64(sym.EndCol)),
		}))
	}
	return object.NewList(results)
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
