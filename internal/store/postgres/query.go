package postgres

import (
	"fmt"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// query accumulates a statement and its positional arguments.
type query struct {
	sql  string
	args []any
}

func newQuery(base string, args ...any) *query {
	return &query{sql: base, args: args}
}

// arg appends v and returns its placeholder.
func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// where appends " AND <cond><placeholder>".
func (q *query) where(cond string, v any) {
	q.sql += " AND " + cond + q.arg(v)
}

func (q *query) order(by string) {
	q.sql += " ORDER BY " + by
}

func (q *query) page(opts domain.ListOpts) {
	if opts.Limit > 0 {
		q.sql += " LIMIT " + q.arg(opts.Limit)
	}
	if opts.Offset > 0 {
		q.sql += " OFFSET " + q.arg(opts.Offset)
	}
}
