package schema

import (
	"fmt"
	"sort"
)

// Columns maps column name to declared type.
type Columns map[string]string

// Tables flattens a schema document into table -> column -> type.
//
// Two shapes are understood: the introspection shape
// schema -> table -> column -> type, where tables are keyed "schema.table",
// and the legacy {"tables": {t: {"columns": {c: {"type": x}}}}} shape.
func Tables(doc map[string]interface{}) map[string]Columns {
	if legacy, ok := legacyTables(doc); ok {
		return legacy
	}
	out := make(map[string]Columns)
	for schemaName, rawTables := range doc {
		tables, ok := rawTables.(map[string]interface{})
		if !ok {
			continue
		}
		for tableName, rawCols := range tables {
			out[schemaName+"."+tableName] = columnsOf(rawCols)
		}
	}
	return out
}

func legacyTables(doc map[string]interface{}) (map[string]Columns, bool) {
	raw, ok := doc["tables"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	out := make(map[string]Columns, len(raw))
	for tableName, rawTable := range raw {
		table, ok := rawTable.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cols, ok := table["columns"]
		if !ok {
			return nil, false
		}
		out[tableName] = columnsOf(cols)
	}
	return out, true
}

func columnsOf(raw interface{}) Columns {
	cols := Columns{}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return cols
	}
	for name, v := range m {
		switch typ := v.(type) {
		case string:
			cols[name] = typ
		case map[string]interface{}:
			if t, ok := typ["type"]; ok && t != nil {
				cols[name] = fmt.Sprint(t)
			} else {
				cols[name] = ""
			}
		case nil:
			cols[name] = ""
		default:
			cols[name] = fmt.Sprint(typ)
		}
	}
	return cols
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromTables builds an introspection-shaped document from flat
// "schema.table" keys. Keys without a dot land in the "public" schema.
func FromTables(tables map[string]Columns) map[string]interface{} {
	out := map[string]interface{}{}
	for _, key := range sortedKeys(tables) {
		schemaName, tableName := "public", key
		for i := 0; i < len(key); i++ {
			if key[i] == '.' {
				schemaName, tableName = key[:i], key[i+1:]
				break
			}
		}
		sch, ok := out[schemaName].(map[string]interface{})
		if !ok {
			sch = map[string]interface{}{}
			out[schemaName] = sch
		}
		cols := map[string]interface{}{}
		for c, t := range tables[key] {
			cols[c] = t
		}
		sch[tableName] = cols
	}
	return out
}
