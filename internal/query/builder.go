// Package query assembles the read queries of the catalogue from structured
// filters. Every query carries the tables it reads so that cached results can
// be dropped when any of them is written.
package query

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Query is a built statement with $n placeholders.
type Query struct {
	SQL    string
	Args   []any
	Tables []string
}

// Fingerprint identifies the statement and its arguments independently of
// whitespace. It is the cache key of the query.
func (q Query) Fingerprint() string {
	sum := sha1.New()
	sum.Write([]byte(strings.Join(strings.Fields(q.SQL), " ")))
	sum.Write([]byte{0})
	args, err := json.Marshal(q.Args)
	if err != nil {
		args = []byte(strconv.Itoa(len(q.Args)))
	}
	sum.Write(args)
	return hex.EncodeToString(sum.Sum(nil))
}

type fragment struct {
	sql  string
	args []any
}

// Builder collects SELECT fragments written with ? placeholders. Arguments are
// kept next to their fragment and numbered in textual order by Build.
type Builder struct {
	columns []string
	from    string
	joins   []fragment
	where   []fragment
	groupBy []string
	orderBy []string
	limit   *fragment
	tables  map[string]struct{}
}

func Select(columns ...string) *Builder {
	return &Builder{columns: columns, tables: map[string]struct{}{}}
}

func (b *Builder) Columns(columns ...string) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

func (b *Builder) From(table, alias string) *Builder {
	b.from = table + " " + alias
	b.Touch(table)
	return b
}

func (b *Builder) Join(table, alias, on string, args ...any) *Builder {
	b.joins = append(b.joins, fragment{sql: "JOIN " + table + " " + alias + " ON " + on, args: args})
	b.Touch(table)
	return b
}

func (b *Builder) LeftJoin(table, alias, on string, args ...any) *Builder {
	b.joins = append(b.joins, fragment{sql: "LEFT JOIN " + table + " " + alias + " ON " + on, args: args})
	b.Touch(table)
	return b
}

// Where adds a condition joined with AND to the others.
func (b *Builder) Where(condition string, args ...any) *Builder {
	b.where = append(b.where, fragment{sql: condition, args: args})
	return b
}

func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

func (b *Builder) OrderBy(terms ...string) *Builder {
	b.orderBy = append(b.orderBy, terms...)
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = &fragment{sql: "LIMIT ?", args: []any{n}}
	return b
}

// Touch records a table read through a subquery or a raw fragment.
func (b *Builder) Touch(tables ...string) *Builder {
	for _, table := range tables {
		b.tables[table] = struct{}{}
	}
	return b
}

func (b *Builder) Build() Query {
	var sql strings.Builder
	var args []any

	sql.WriteString("SELECT ")
	sql.WriteString(strings.Join(b.columns, ", "))
	sql.WriteString(" FROM ")
	sql.WriteString(b.from)
	for _, join := range b.joins {
		sql.WriteString(" ")
		sql.WriteString(join.sql)
		args = append(args, join.args...)
	}
	if len(b.where) > 0 {
		conditions := make([]string, len(b.where))
		for i, condition := range b.where {
			conditions[i] = condition.sql
			args = append(args, condition.args...)
		}
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(conditions, " AND "))
	}
	if len(b.groupBy) > 0 {
		sql.WriteString(" GROUP BY ")
		sql.WriteString(strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limit != nil {
		sql.WriteString(" ")
		sql.WriteString(b.limit.sql)
		args = append(args, b.limit.args...)
	}

	tables := make([]string, 0, len(b.tables))
	for table := range b.tables {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	return Query{SQL: Rebind(sql.String()), Args: args, Tables: tables}
}

// Rebind turns ? placeholders outside string literals into $1, $2, ...
func Rebind(sql string) string {
	var out strings.Builder
	out.Grow(len(sql) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			quoted = !quoted
			out.WriteByte(c)
		case c == '?' && !quoted:
			n++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// Placeholders returns "?, ?, ..." for n values, for use inside IN (...).
func Placeholders(n int) string {
	if n <= 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Values converts typed values to query arguments.
func Values[T any](values []T) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}
