package storage

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring pattern for LIKE ... ESCAPE '\'.
func likePattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}
