package repository

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern turns a keyword into a substring pattern for LIKE ... ESCAPE '\'.
// Wildcards typed by the user match literally.
func LikePattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}
