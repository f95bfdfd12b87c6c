package statement

import (
	"fmt"
	"strings"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
)

// Select renders the query loading every row whose sync status differs from
// complete. A NULL status counts as 0. The result columns are the descriptor
// columns in order followed by the sync status.
func (b Builder) Select(complete int64) Statement {
	d := b.Dialect
	all := b.columnIndexes(func(schema.Column) bool { return true })
	sync := d.Quote(b.Descriptor.SyncColumn)

	query := fmt.Sprintf("SELECT %s, COALESCE(%s, 0) FROM %s WHERE COALESCE(%s, 0) <> %s",
		strings.Join(b.quotedColumns(all, ""), ", "),
		sync,
		d.QuoteTable(b.Descriptor.Table),
		sync,
		d.Placeholder(1),
	)

	return Statement{Kind: Query, Query: query, Args: []interface{}{complete}}
}

// identity returns the properties identifying a row in the source.
func (b Builder) identity() []string {
	if len(b.Descriptor.PrimaryKey) > 0 {
		return b.Descriptor.PrimaryKey
	}
	return b.Descriptor.MatchKey
}

// UpdateStatus renders the statement writing status into the sync status
// column of the source row holding the values of row.
func (b Builder) UpdateStatus(status int64, row []interface{}) (Statement, error) {
	if len(row) != len(b.Descriptor.Columns) {
		return Statement{}, fmt.Errorf("row has %d values for %d columns: %w", len(row), len(b.Descriptor.Columns), ErrRowShape)
	}

	d := b.Dialect
	a := &args{dialect: d}

	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s SET %s = %s WHERE ",
		d.QuoteTable(b.Descriptor.Table), d.Quote(b.Descriptor.SyncColumn), a.bind(status, schema.TypeGeneric))

	for i, p := range b.identity() {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		c, ci, _ := b.Descriptor.Column(p)
		fmt.Fprintf(&sb, "%s = %s", d.Quote(c.Name), a.bind(row[ci], c.Type))
	}

	return Statement{Kind: StatusUpdate, Query: sb.String(), Args: a.values, Rows: 1}, nil
}
