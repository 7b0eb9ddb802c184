package schema

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const introspectQuery = `
	SELECT table_schema, table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
	ORDER BY table_schema, table_name, ordinal_position
`

// IntrospectPostgres reads schema -> table -> column -> type from a live
// postgres database.
func IntrospectPostgres(ctx context.Context, dsn string) (map[string]interface{}, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	return Introspect(ctx, db)
}

// Introspect runs the information_schema query on an open connection.
func Introspect(ctx context.Context, db *sql.DB) (map[string]interface{}, error) {
	rows, err := db.QueryContext(ctx, introspectQuery)
	if err != nil {
		return nil, fmt.Errorf("query information_schema: %w", err)
	}
	defer rows.Close()
	tables := map[string]Columns{}
	for rows.Next() {
		var schemaName, tableName, columnName, dataType string
		if err := rows.Scan(&schemaName, &tableName, &columnName, &dataType); err != nil {
			return nil, err
		}
		key := schemaName + "." + tableName
		cols, ok := tables[key]
		if !ok {
			cols = Columns{}
			tables[key] = cols
		}
		cols[columnName] = dataType
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return FromTables(tables), nil
}
