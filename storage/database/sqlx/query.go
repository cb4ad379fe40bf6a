// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
)

// PostgreSQL error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// where accumulates AND-ed conditions written with `?` bind vars.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// addIn adds a condition holding a single `(?)` expanded to the values.
func (w *where) addIn(cond string, values interface{}) error {
	expanded, args, err := sqlx.In(cond, values)
	if err != nil {
		return errors.Wrap(err, "expanding IN clause")
	}
	w.add(expanded, args...)
	return nil
}

func (w *where) addSearch(term string, columns ...string) {
	if term == "" {
		return
	}
	pattern := "%" + escapeLike(term) + "%"
	conds := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		conds[i] = col + " ILIKE ?"
		args[i] = pattern
	}
	w.add("("+strings.Join(conds, " OR ")+")", args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// orderClause renders the ordering restricted to the allowed fields, mapped to their SQL expressions.
// Unknown fields are ignored.
func orderClause(ordering []core.DBOrdering, allowed map[string]string, defaults ...core.DBOrdering) string {
	all := append(append(make([]core.DBOrdering, 0, len(ordering)+len(defaults)), ordering...), defaults...)
	terms := make([]string, 0, len(all))
	for _, ord := range all {
		expr, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		terms = append(terms, core.DBOrdering{Field: expr, Ascending: ord.Ascending}.String())
	}
	if len(terms) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func pageClause(page *core.Pagination) (string, []interface{}) {
	if page == nil {
		return "", nil
	}
	return " LIMIT ? OFFSET ?", []interface{}{page.Limit(), page.Offset()}
}

func isViolation(err error, code, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code && pqErr.Constraint == constraint
}

// isUniqueViolation reports whether err breaks the given unique constraint.
func isUniqueViolation(err error, constraint string) bool {
	return isViolation(err, uniqueViolation, constraint)
}

func isForeignKeyViolation(err error, constraint string) bool {
	return isViolation(err, foreignKeyViolation, constraint)
}

// validIDs drops the ids that are not UUIDs; no row can match them.
func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
