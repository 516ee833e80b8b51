package main

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"baserepo"
	sqlstore "baserepo/sql"
	"baserepo/sql/adapter"
)

type explainOptions struct {
	dialect string
	table   string
	columns []string
	where   []string
	order   []string
	cursor  string
	limit   int
	page    int
	size    int
	strict  bool
}

var explainOpts explainOptions

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Compile a list query to SQL",
	Long: `Compile a list query to SQL for a dialect without connecting.

Columns are given as name:type[:pk][:auto] with type one of int, float,
string, bool, time or any. Filters are name=value; a comma separated value
becomes an IN list and true/false on a bool column becomes IS TRUE/IS FALSE.
Order items are column names, prefixed with - for descending.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		compiled, err := explain(explainOpts)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), compiled.SQL)
		if len(compiled.Args) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "-- args: %v\n", compiled.Args)
		}
		return nil
	},
}

func init() {
	f := explainCmd.Flags()
	f.StringVar(&explainOpts.dialect, "dialect", "postgres", "adapter whose dialect to use")
	f.StringVar(&explainOpts.table, "table", "", "table name")
	f.StringSliceVar(&explainOpts.columns, "columns", nil, "columns as name:type[:pk][:auto]")
	f.StringArrayVar(&explainOpts.where, "where", nil, "filter field as name=value (repeatable)")
	f.StringSliceVar(&explainOpts.order, "order", nil, "order columns, - prefix for descending")
	f.StringVar(&explainOpts.cursor, "cursor", "", "cursor token or JSON object; selects keyset paging")
	f.IntVar(&explainOpts.limit, "limit", 0, "keyset page size")
	f.IntVar(&explainOpts.page, "page", 0, "offset page number")
	f.IntVar(&explainOpts.size, "size", 0, "offset page size")
	f.BoolVar(&explainOpts.strict, "strict", false, "reject filter fields without a column")
	_ = explainCmd.MarkFlagRequired("table")
	_ = explainCmd.MarkFlagRequired("columns")

	rootCmd.AddCommand(explainCmd)
}

func explain(o explainOptions) (*sqlstore.CompiledSQL, error) {
	dialect, err := adapter.Get(adapter.AdapterName(o.dialect))
	if err != nil {
		return nil, err
	}
	table, err := parseTable(o.table, o.columns)
	if err != nil {
		return nil, err
	}

	fields := make(baserepo.Fields, 0, len(o.where))
	for _, w := range o.where {
		name, raw, ok := strings.Cut(w, "=")
		if !ok {
			return nil, fmt.Errorf("filter %q is not name=value", w)
		}
		v, err := parseFilterValue(table.Col(name), raw)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
		fields = append(fields, baserepo.Value(name, v))
	}
	var filter baserepo.Filter = fields
	if o.strict {
		filter = baserepo.Strict(fields)
	}

	q := baserepo.NewListQuery(table, filter)
	if len(o.order) > 0 {
		items := make([]any, len(o.order))
		for i, name := range o.order {
			if desc, ok := strings.CutPrefix(name, "-"); ok {
				items[i] = baserepo.Desc(desc)
			} else {
				items[i] = baserepo.Asc(name)
			}
		}
		q.OrderBy(items...)
	}
	switch {
	case o.cursor != "" || o.limit > 0:
		c, err := parseCursor(o.cursor)
		if err != nil {
			return nil, err
		}
		if len(o.order) == 0 {
			q.OrderBy(pkItems(table)...)
		}
		q.WithCursor(c).Limit(o.limit)
	case o.page > 0 || o.size > 0:
		q.Paging(o.page, o.size)
	}

	desc, err := q.Build()
	if err != nil {
		return nil, err
	}
	return sqlstore.NewSQLCompiler(dialect).Select(desc)
}

func pkItems(t *baserepo.Table) []any {
	var items []any
	for _, c := range t.PrimaryKey() {
		items = append(items, c)
	}
	return items
}

// parseTable builds a table from name:type[:pk][:auto] specs.
func parseTable(name string, specs []string) (*baserepo.Table, error) {
	if name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	cols := make([]baserepo.Column, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		col := baserepo.Column{Name: parts[0]}
		if col.Name == "" {
			return nil, fmt.Errorf("column spec %q has no name", spec)
		}
		for i, p := range parts[1:] {
			switch p {
			case "pk":
				col.PrimaryKey = true
			case "auto":
				col.AutoIncrement = true
			default:
				if i != 0 {
					return nil, fmt.Errorf("column %s: unknown flag %q", col.Name, p)
				}
				t, err := parseColumnType(p)
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", col.Name, err)
				}
				col.Type = t
			}
		}
		cols = append(cols, col)
	}
	return baserepo.NewTable(name, cols...), nil
}

func parseColumnType(s string) (baserepo.ColumnType, error) {
	for _, t := range []baserepo.ColumnType{
		baserepo.TypeAny, baserepo.TypeInt, baserepo.TypeFloat,
		baserepo.TypeString, baserepo.TypeBool, baserepo.TypeTime,
	} {
		if t.String() == s {
			return t, nil
		}
	}
	return baserepo.TypeAny, fmt.Errorf("unknown column type %q", s)
}

// parseFilterValue converts a flag value to the column's type. Comma
// separated values become a list.
func parseFilterValue(col *baserepo.Column, raw string) (any, error) {
	typ := baserepo.TypeAny
	if col != nil {
		typ = col.Type
	}
	if strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			v, err := parseLiteral(typ, strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return parseLiteral(typ, raw)
}

func parseLiteral(typ baserepo.ColumnType, s string) (any, error) {
	switch typ {
	case baserepo.TypeInt:
		return strconv.ParseInt(s, 10, 64)
	case baserepo.TypeFloat:
		return strconv.ParseFloat(s, 64)
	case baserepo.TypeBool:
		return strconv.ParseBool(s)
	case baserepo.TypeTime:
		return time.Parse(time.RFC3339Nano, s)
	}
	return s, nil
}

// parseCursor accepts either a cursor token or the JSON object it encodes.
func parseCursor(s string) (baserepo.Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return baserepo.Cursor{}, nil
	}
	if strings.HasPrefix(s, "{") {
		s = base64.RawURLEncoding.EncodeToString([]byte(s))
	}
	c, err := baserepo.DecodeCursor(s)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = baserepo.Cursor{}
	}
	return c, nil
}
