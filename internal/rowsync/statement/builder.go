// Package statement renders the batched write statements used to replicate
// rows into a target store.
package statement

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
)

// MaxParameters is the largest number of bound parameters a single statement
// may carry.
const MaxParameters = 2000

var (
	// ErrTooManyParameters is returned when a batch would exceed MaxParameters,
	// and by store executors when the store itself rejects a statement for the
	// same reason.
	ErrTooManyParameters = errors.New("too many parameters")
	// ErrNoRows is returned when a statement is requested for an empty batch.
	ErrNoRows = errors.New("no rows to write")
	// ErrGeneratedMatchKey is returned when a store-generated key is used to
	// match rows by a dialect that inserts straight from the VALUES list.
	ErrGeneratedMatchKey = errors.New("store-generated key can't be used as match key")
	// ErrRowShape is returned when a row doesn't have a value for every column.
	ErrRowShape = errors.New("row doesn't match descriptor columns")
)

// Kind is the kind of write a statement performs.
type Kind int

const (
	// Upsert inserts rows that are missing and updates the ones that match.
	Upsert Kind = iota
	// Delete removes the matching rows.
	Delete
	// InsertIfAbsent inserts rows that are missing and leaves the rest untouched.
	InsertIfAbsent
	// Query loads the rows that are not replicated to every target yet.
	Query
	// StatusUpdate persists the sync status of a row in the source.
	StatusUpdate
)

func (k Kind) String() string {
	switch k {
	case Upsert:
		return "upsert"
	case Delete:
		return "delete"
	case InsertIfAbsent:
		return "insert-if-absent"
	case Query:
		return "query"
	case StatusUpdate:
		return "status-update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Statement is a rendered batch write.
type Statement struct {
	Kind  Kind
	Query string
	Args  []interface{}
	// Rows is the number of rows the statement is expected to modify.
	Rows int
}

// Builder renders statements for one entity type in one dialect.
type Builder struct {
	Dialect    Dialect
	Descriptor schema.Descriptor
}

// Validate reports configuration errors that would make every statement fail.
func (b Builder) Validate() error {
	if err := b.Descriptor.Validate(); err != nil {
		return err
	}

	if b.Dialect.valuesSource() {
		for _, p := range b.Descriptor.MatchFields() {
			if b.Descriptor.IsGenerated(p) {
				return fmt.Errorf("%s: property %q in %s dialect: %w", b.Descriptor.Table, p, b.Dialect, ErrGeneratedMatchKey)
			}
		}
	}

	return nil
}

// Build renders a statement of the given kind for rows. Every row holds the
// values of the descriptor columns in order.
func (b Builder) Build(kind Kind, rows [][]interface{}) (Statement, error) {
	if len(rows) == 0 {
		return Statement{}, ErrNoRows
	}

	perRow := len(b.Descriptor.Columns)
	if kind == Delete {
		perRow = len(b.Descriptor.MatchFields())
	}

	if total := perRow * len(rows); total > MaxParameters {
		return Statement{}, fmt.Errorf("%w: %d rows with %d parameters each need %d, limit is %d",
			ErrTooManyParameters, len(rows), perRow, total, MaxParameters)
	}

	for i, row := range rows {
		if len(row) != len(b.Descriptor.Columns) {
			return Statement{}, fmt.Errorf("row %d has %d values for %d columns: %w", i, len(row), len(b.Descriptor.Columns), ErrRowShape)
		}
	}

	switch kind {
	case Delete:
		return b.buildDelete(rows), nil
	case Upsert, InsertIfAbsent:
		if b.Dialect == SQLServer {
			return b.buildMerge(kind, rows), nil
		}
		return b.buildInsert(kind, rows), nil
	default:
		return Statement{}, fmt.Errorf("unsupported statement kind %s", kind)
	}
}

type args struct {
	dialect Dialect
	values  []interface{}
}

func (a *args) bind(value interface{}, ct schema.ColumnType) string {
	if value == nil {
		value = a.dialect.Null(ct)
	}
	a.values = append(a.values, value)
	return a.dialect.Placeholder(len(a.values))
}

func (b Builder) columnIndexes(filter func(schema.Column) bool) []int {
	var idx []int
	for i, c := range b.Descriptor.Columns {
		if filter(c) {
			idx = append(idx, i)
		}
	}
	return idx
}

func (b Builder) insertable() []int {
	return b.columnIndexes(func(c schema.Column) bool { return !b.Descriptor.IsGenerated(c.Property) })
}

func (b Builder) updatable() []int {
	return b.columnIndexes(func(c schema.Column) bool { return !b.Descriptor.IsKey(c.Property) })
}

func (b Builder) matchIndexes() []int {
	fields := b.Descriptor.MatchFields()
	idx := make([]int, 0, len(fields))
	for _, p := range fields {
		_, i, _ := b.Descriptor.Column(p)
		idx = append(idx, i)
	}
	return idx
}

func (b Builder) quotedColumns(idx []int, prefix string) []string {
	quoted := make([]string, len(idx))
	for i, ci := range idx {
		quoted[i] = prefix + b.Dialect.Quote(b.Descriptor.Columns[ci].Name)
	}
	return quoted
}

func (b Builder) values(sb *strings.Builder, a *args, rows [][]interface{}, idx []int) {
	for r, row := range rows {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for i, ci := range idx {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.bind(row[ci], b.Descriptor.Columns[ci].Type))
		}
		sb.WriteString(")")
	}
}

func (b Builder) buildInsert(kind Kind, rows [][]interface{}) Statement {
	d := b.Dialect
	insert := b.insertable()
	update := b.updatable()
	match := b.matchIndexes()
	a := &args{dialect: d, values: make([]interface{}, 0, len(rows)*len(insert))}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", d.QuoteTable(b.Descriptor.Table), strings.Join(b.quotedColumns(insert, ""), ", "))
	b.values(&sb, a, rows, insert)

	if d == MySQL {
		sb.WriteString(" ON DUPLICATE KEY UPDATE ")
		if kind == InsertIfAbsent || len(update) == 0 {
			k := d.Quote(b.Descriptor.Columns[match[0]].Name)
			fmt.Fprintf(&sb, "%s = %s", k, k)
		} else {
			for i, ci := range update {
				if i > 0 {
					sb.WriteString(", ")
				}
				c := d.Quote(b.Descriptor.Columns[ci].Name)
				fmt.Fprintf(&sb, "%s = VALUES(%s)", c, c)
			}
		}
	} else {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO ", strings.Join(b.quotedColumns(match, ""), ", "))
		if kind == InsertIfAbsent || len(update) == 0 {
			sb.WriteString("NOTHING")
		} else {
			sb.WriteString("UPDATE SET ")
			for i, ci := range update {
				if i > 0 {
					sb.WriteString(", ")
				}
				c := d.Quote(b.Descriptor.Columns[ci].Name)
				fmt.Fprintf(&sb, "%s = EXCLUDED.%s", c, c)
			}
		}
	}

	return Statement{Kind: kind, Query: sb.String(), Args: a.values, Rows: len(rows)}
}

func (b Builder) buildMerge(kind Kind, rows [][]interface{}) Statement {
	d := b.Dialect
	all := b.columnIndexes(func(schema.Column) bool { return true })
	insert := b.insertable()
	update := b.updatable()
	match := b.matchIndexes()
	a := &args{dialect: d, values: make([]interface{}, 0, len(rows)*len(all))}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE INTO %s AS T USING (VALUES ", d.QuoteTable(b.Descriptor.Table))
	b.values(&sb, a, rows, all)
	fmt.Fprintf(&sb, ") AS S (%s) ON ", strings.Join(b.quotedColumns(all, ""), ", "))

	for i, ci := range match {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		c := d.Quote(b.Descriptor.Columns[ci].Name)
		fmt.Fprintf(&sb, "T.%s = S.%s", c, c)
	}

	if kind == Upsert && len(update) > 0 {
		sb.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		for i, ci := range update {
			if i > 0 {
				sb.WriteString(", ")
			}
			c := d.Quote(b.Descriptor.Columns[ci].Name)
			fmt.Fprintf(&sb, "T.%s = S.%s", c, c)
		}
	}

	fmt.Fprintf(&sb, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(b.quotedColumns(insert, ""), ", "),
		strings.Join(b.quotedColumns(insert, "S."), ", "))

	return Statement{Kind: kind, Query: sb.String(), Args: a.values, Rows: len(rows)}
}

func (b Builder) buildDelete(rows [][]interface{}) Statement {
	d := b.Dialect
	match := b.matchIndexes()
	a := &args{dialect: d, values: make([]interface{}, 0, len(rows)*len(match))}

	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s WHERE ", d.QuoteTable(b.Descriptor.Table))
	for r, row := range rows {
		if r > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(")
		for i, ci := range match {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			c := b.Descriptor.Columns[ci]
			fmt.Fprintf(&sb, "%s = %s", d.Quote(c.Name), a.bind(row[ci], c.Type))
		}
		sb.WriteString(")")
	}

	return Statement{Kind: Delete, Query: sb.String(), Args: a.values, Rows: len(rows)}
}
