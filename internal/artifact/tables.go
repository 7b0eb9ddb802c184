package artifact

import (
	"regexp"
	"sort"
	"strings"
)

var tableRefRe = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-z_][\w]*(?:\.[a-z_][\w]*)?)`)

// TablesReferenced lists the distinct table names a SQL text reads from,
// lower-cased and sorted.
func TablesReferenced(sqlText string) []string {
	seen := make(map[string]struct{})
	for _, m := range tableRefRe.FindAllStringSubmatch(sqlText, -1) {
		seen[strings.ToLower(m[1])] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
