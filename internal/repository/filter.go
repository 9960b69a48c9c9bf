package repository

import (
	"strings"

	"github.com/notifyhub/waitlist/internal/domain"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns a free-text search into a substring LIKE pattern with
// wildcards in the input escaped. Queries must declare ESCAPE '\'.
func likePattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}

// memberOrderBy maps a filter to an ORDER BY clause. Only whitelisted
// columns reach the SQL text; id breaks ties so pagination is stable.
func memberOrderBy(f domain.MemberFilter) string {
	col := domain.SortByJoinedAt
	if f.SortBy.IsValid() {
		col = f.SortBy
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	return " ORDER BY " + string(col) + " " + dir + ", id " + dir
}
