package dbutil

import (
	"regexp"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
)

// gendry renders pagination as "LIMIT offset,count", which postgres rejects.
var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize turns ?-style SQL into positional $N form. Both lib/pq and
// modernc sqlite bind $N by ordinal, so repos call it unconditionally.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := limitRegex.FindStringIndex(query); loc != nil {
		pos := strings.Count(query[:loc[0]], "?")
		if pos+1 < len(args) {
			args[pos], args[pos+1] = args[pos+1], args[pos]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// Select builds a gendry select and finalizes it.
func Select(table string, where map[string]interface{}, fields []string) (string, []interface{}, error) {
	sqlStr, args, err := builder.BuildSelect(table, where, fields)
	if err != nil {
		return "", nil, err
	}
	sqlStr, args = Finalize(sqlStr, args)
	return sqlStr, args, nil
}

// Delete builds a gendry delete and finalizes it.
func Delete(table string, where map[string]interface{}) (string, []interface{}, error) {
	sqlStr, args, err := builder.BuildDelete(table, where)
	if err != nil {
		return "", nil, err
	}
	sqlStr, args = Finalize(sqlStr, args)
	return sqlStr, args, nil
}
