// Copyright (C) 2026 Servebolt AS
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package purgedb

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Cond is one predicate over purge_queue_items. Conds compose into groups;
// rendering always produces positional placeholders, never inlined values.
type Cond struct {
	expr string // uses ? placeholders
	args []any
	or   bool // joined to the previous cond with OR instead of AND
	sub  []Cond
}

// Expr builds a raw predicate. The expression must use ? for every value.
func Expr(expr string, args ...any) Cond {
	return Cond{expr: expr, args: args}
}

// Group nests conds into a parenthesized subexpression.
func Group(conds ...Cond) Cond {
	return Cond{sub: conds}
}

// Or marks a cond to be joined with OR rather than AND.
func Or(c Cond) Cond {
	c.or = true
	return c
}

// Named predicate helpers. These are the only way the rest of the code
// states claim/lifecycle conditions, so the claim rules read the same
// everywhere they appear.

func InQueue(name string) Cond    { return Expr("queue = ?", name) }
func IsReserved() Cond            { return Expr("reserved_at IS NOT NULL") }
func NotReserved() Cond           { return Expr("reserved_at IS NULL") }
func IsCompleted() Cond           { return Expr("completed_at IS NOT NULL") }
func NotCompleted() Cond          { return Expr("completed_at IS NULL") }
func IsFailed() Cond              { return Expr("failed_at IS NOT NULL") }
func NotFailed() Cond             { return Expr("failed_at IS NULL") }
func ForceRetrySet() Cond         { return Expr("force_retry") }
func AttemptsBelow(n int32) Cond  { return Expr("attempts < ?", n) }
func AttemptsAtLeast(n int32) Cond { return Expr("attempts >= ?", n) }
func IDEquals(id int64) Cond      { return Expr("id = ?", id) }
func IDIn(ids []int64) Cond       { return Expr("id = ANY(?)", ids) }

// IsActive matches items that are neither completed nor failed.
func IsActive() Cond {
	return Group(NotFailed(), NotCompleted())
}

// IsClaimable matches items a worker may reserve: active, unreserved, and
// either under the attempt ceiling or explicitly forced.
func IsClaimable(maxAttempts int32) Cond {
	return Group(
		NotFailed(),
		NotCompleted(),
		NotReserved(),
		Group(AttemptsBelow(maxAttempts), Or(ForceRetrySet())),
	)
}

// BelongsToParent matches children of one queue item in another queue.
func BelongsToParent(parentID int64, parentQueue string) Cond {
	return Group(
		Expr("parent_id = ?", parentID),
		Expr("parent_queue_name = ?", parentQueue),
	)
}

func ReservedBefore(t time.Time) Cond  { return Expr("reserved_at < ?", t) }
func CompletedBefore(t time.Time) Cond { return Expr("completed_at < ?", t) }
func FailedBefore(t time.Time) Cond    { return Expr("failed_at < ?", t) }
func CreatedBefore(t time.Time) Cond   { return Expr("created_at < ?", t) }

// ItemQuery assembles a parameterized filter/order/limit over the queue
// table. It only builds SQL; execution happens through the Store.
type ItemQuery struct {
	conds   []Cond
	orderBy string
	desc    bool
	limit   int32
}

// NewItemQuery starts a query with the given conds ANDed together.
func NewItemQuery(conds ...Cond) *ItemQuery {
	return &ItemQuery{conds: conds}
}

// Where appends an ANDed cond.
func (q *ItemQuery) Where(c Cond) *ItemQuery {
	q.conds = append(q.conds, c)
	return q
}

// AndWhere is an alias of Where.
func (q *ItemQuery) AndWhere(c Cond) *ItemQuery {
	return q.Where(c)
}

// OrWhere appends a cond joined with OR.
func (q *ItemQuery) OrWhere(c Cond) *ItemQuery {
	q.conds = append(q.conds, Or(c))
	return q
}

// OrderBy sets the ordering column. Only known column names are accepted;
// anything else leaves the query unordered.
func (q *ItemQuery) OrderBy(column string, desc bool) *ItemQuery {
	switch column {
	case "id", "created_at", "updated_at", "reserved_at", "completed_at", "failed_at", "attempts":
		q.orderBy = column
		q.desc = desc
	}
	return q
}

// Limit caps the number of rows returned. Zero means no limit.
func (q *ItemQuery) Limit(n int32) *ItemQuery {
	q.limit = n
	return q
}

// Rows executes the query and returns matching items.
func (q *ItemQuery) Rows(ctx context.Context, s *Store) ([]QueueItem, error) {
	return s.SelectQueueItems(ctx, q)
}

// Count executes the query as a COUNT(*) and returns the scalar.
func (q *ItemQuery) Count(ctx context.Context, s *Store) (int64, error) {
	return s.CountQueueItems(ctx, q)
}

// whereClause renders the conds. The returned SQL uses ? placeholders; the
// caller numbers them via numberPlaceholders once the full statement is
// assembled.
func (q *ItemQuery) whereClause() (string, []any) {
	if len(q.conds) == 0 {
		return "", nil
	}
	var sb strings.Builder
	var args []any
	renderConds(&sb, &args, q.conds)
	return sb.String(), args
}

func renderConds(sb *strings.Builder, args *[]any, conds []Cond) {
	for i, c := range conds {
		if i > 0 {
			if c.or {
				sb.WriteString(" OR ")
			} else {
				sb.WriteString(" AND ")
			}
		}
		if c.sub != nil {
			sb.WriteString("(")
			renderConds(sb, args, c.sub)
			sb.WriteString(")")
			continue
		}
		sb.WriteString(c.expr)
		*args = append(*args, c.args...)
	}
}

func (q *ItemQuery) tail() string {
	var sb strings.Builder
	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.orderBy)
		if q.desc {
			sb.WriteString(" DESC")
		}
	}
	if q.limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(int(q.limit)))
	}
	return sb.String()
}

// numberPlaceholders rewrites ? placeholders into $1..$n form.
func numberPlaceholders(sql string) string {
	var sb strings.Builder
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
