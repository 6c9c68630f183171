package app

import (
	"regexp"
	"strings"
)

const maxTracedQueryLength = 512

var (
	queryLineCommentRegex = regexp.MustCompile(`--[^\n]*`)
	queryWhitespaceRegex  = regexp.MustCompile(`\s+`)
)

// formatDBQueryForTrace collapses a query onto one line for span attributes.
// Line comments are dropped; string literals are not parsed, the queries are built
// by querybuilder and never embed "--" in values.
func formatDBQueryForTrace(query string) string {
	query = queryLineCommentRegex.ReplaceAllString(query, " ")
	query = strings.TrimSpace(queryWhitespaceRegex.ReplaceAllString(query, " "))
	if len(query) <= maxTracedQueryLength {
		return query
	}

	return query[:maxTracedQueryLength] + "..."
}
