package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/queryir"
)

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// CRITICAL: every SELECT ends with an ORDER BY carrying an id tiebreaker.
// CRITICAL: all values are parameterized (never interpolated).
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
//
// The query is validated first; malformed trees never reach SQL.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Join:
		return c.compileJoin(query)
	case *queryir.Join:
		return c.compileJoin(*query)
	case queryir.Count:
		return c.compileCount(query)
	case *queryir.Count:
		return c.compileCount(*query)
	case queryir.Insert:
		return c.compileInsert(query)
	case *queryir.Insert:
		return c.compileInsert(*query)
	case queryir.Update:
		return c.compileUpdate(query)
	case *queryir.Update:
		return c.compileUpdate(*query)
	case queryir.Delete:
		return c.compileDelete(query)
	case *queryir.Delete:
		return c.compileDelete(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileSelect compiles a queryir.Select to SQL.
func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var b strings.Builder
	var params []any

	b.WriteString("SELECT ")
	b.WriteString(c.compileColumns(q.Columns, ""))
	b.WriteString(" FROM ")
	b.WriteString(q.From)

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter, "")
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(filterSQL)
		params = append(params, filterParams...)
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(c.stableOrderKey(q.OrderBy, ""))

	params = append(params, c.compilePage(&b, q.Limit, q.Offset)...)
	return b.String(), params, nil
}

// compileColumns renders the SELECT column list, qualified when a table
// prefix is given.
func (c *SQLCompiler) compileColumns(cols []string, table string) string {
	if len(cols) == 0 {
		if table != "" {
			return table + ".*"
		}
		return "*"
	}
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = qualify(col, table)
	}
	return strings.Join(parts, ", ")
}

// stableOrderKey returns the ORDER BY clause body.
// MANDATORY: every select goes through here so the id tiebreaker is never
// forgotten. The tiebreaker follows the direction of the first key.
// Text keys use COLLATE BINARY for ordering that is stable across SQLite
// builds; numeric keys are cast to REAL. SQLite requires the collation before
// the direction.
func (c *SQLCompiler) stableOrderKey(order []queryir.Order, table string) string {
	var parts []string
	tieDesc := false
	hasID := false
	for i, o := range order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		if i == 0 {
			tieDesc = o.Desc
		}
		if o.Field == ir.FieldID {
			hasID = true
			parts = append(parts, qualify(o.Field, table)+" "+dir)
			break // nothing after a unique key can change the order
		}
		if o.Numeric {
			parts = append(parts, fmt.Sprintf("CAST(%s AS REAL) %s", qualify(o.Field, table), dir))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s COLLATE BINARY %s", qualify(o.Field, table), dir))
	}
	if !hasID {
		dir := "ASC"
		if tieDesc {
			dir = "DESC"
		}
		parts = append(parts, qualify(ir.FieldID, table)+" "+dir)
	}
	return strings.Join(parts, ", ")
}

// compilePage appends LIMIT/OFFSET as parameters.
func (c *SQLCompiler) compilePage(b *strings.Builder, limit, offset int) []any {
	var params []any
	switch {
	case limit > 0:
		b.WriteString(" LIMIT ?")
		params = append(params, int64(limit))
	case offset > 0:
		// SQLite requires a LIMIT before OFFSET; -1 means no limit
		b.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		b.WriteString(" OFFSET ?")
		params = append(params, int64(offset))
	}
	return params
}

// compileJoin compiles a queryir.Join to SQL INNER JOIN. Columns, order and
// pagination come from the left select; both sides' filters are combined.
func (c *SQLCompiler) compileJoin(j queryir.Join) (string, []any, error) {
	left := getSelect(j.Left)
	right := getSelect(j.Right)
	if left == nil || right == nil {
		return "", nil, fmt.Errorf("join sides must be Select")
	}

	var b strings.Builder
	var params []any

	b.WriteString("SELECT ")
	b.WriteString(c.compileColumns(left.Columns, left.From))
	b.WriteString(" FROM ")
	b.WriteString(left.From)
	b.WriteString(" INNER JOIN ")
	b.WriteString(right.From)

	onSQL, onParams, err := c.compilePredicate(j.On, "")
	if err != nil {
		return "", nil, fmt.Errorf("compile join ON: %w", err)
	}
	b.WriteString(" ON ")
	b.WriteString(onSQL)
	params = append(params, onParams...)

	var where []string
	if left.Filter != nil {
		sql, p, err := c.compilePredicate(left.Filter, left.From)
		if err != nil {
			return "", nil, fmt.Errorf("compile left filter: %w", err)
		}
		where = append(where, sql)
		params = append(params, p...)
	}
	if right.Filter != nil {
		sql, p, err := c.compilePredicate(right.Filter, right.From)
		if err != nil {
			return "", nil, fmt.Errorf("compile right filter: %w", err)
		}
		where = append(where, sql)
		params = append(params, p...)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(c.stableOrderKey(left.OrderBy, left.From))

	params = append(params, c.compilePage(&b, left.Limit, left.Offset)...)
	return b.String(), params, nil
}

// compileCount compiles a queryir.Count. The result is a single row, so no
// ORDER BY is needed.
func (c *SQLCompiler) compileCount(q queryir.Count) (string, []any, error) {
	sql := "SELECT COUNT(*) FROM " + q.From
	if q.Filter == nil {
		return sql, nil, nil
	}
	filterSQL, params, err := c.compilePredicate(q.Filter, "")
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return sql + " WHERE " + filterSQL, params, nil
}

// compileInsert compiles a queryir.Insert in assignment order.
func (c *SQLCompiler) compileInsert(q queryir.Insert) (string, []any, error) {
	cols := make([]string, len(q.Set))
	marks := make([]string, len(q.Set))
	params := make([]any, len(q.Set))
	for i, a := range q.Set {
		p, err := toParam(a.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", a.Column, err)
		}
		cols[i] = a.Column
		marks[i] = "?"
		params[i] = p
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		q.Table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return sql, params, nil
}

// compileUpdate compiles a queryir.Update. A nil filter updates every row.
func (c *SQLCompiler) compileUpdate(q queryir.Update) (string, []any, error) {
	sets := make([]string, len(q.Set))
	params := make([]any, 0, len(q.Set)+1)
	for i, a := range q.Set {
		p, err := toParam(a.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", a.Column, err)
		}
		sets[i] = a.Column + " = ?"
		params = append(params, p)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", q.Table, strings.Join(sets, ", "))
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter, "")
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sql += " WHERE " + filterSQL
		params = append(params, filterParams...)
	}
	return sql, params, nil
}

// compileDelete compiles a queryir.Delete. A nil filter deletes every row.
func (c *SQLCompiler) compileDelete(q queryir.Delete) (string, []any, error) {
	sql := "DELETE FROM " + q.Table
	if q.Filter == nil {
		return sql, nil, nil
	}
	filterSQL, params, err := c.compilePredicate(q.Filter, "")
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return sql + " WHERE " + filterSQL, params, nil
}

// compilePredicate compiles a queryir.Predicate to a WHERE clause fragment.
// Unqualified fields are prefixed with table when one is given.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate, table string) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil // Always true
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileBinary(pred.Field, "=", pred.Value, pred.Numeric, table)
	case *queryir.Equals:
		return c.compileBinary(pred.Field, "=", pred.Value, pred.Numeric, table)
	case queryir.NotEquals:
		return c.compileBinary(pred.Field, "<>", pred.Value, pred.Numeric, table)
	case *queryir.NotEquals:
		return c.compileBinary(pred.Field, "<>", pred.Value, pred.Numeric, table)
	case queryir.Compare:
		return c.compileBinary(pred.Field, string(pred.Op), pred.Value, pred.Numeric, table)
	case *queryir.Compare:
		return c.compileBinary(pred.Field, string(pred.Op), pred.Value, pred.Numeric, table)
	case queryir.In:
		return c.compileIn(pred, table)
	case *queryir.In:
		return c.compileIn(*pred, table)
	case queryir.IsNull:
		return c.compileIsNull(pred, table)
	case *queryir.IsNull:
		return c.compileIsNull(*pred, table)
	case queryir.FieldEquals:
		return fmt.Sprintf("%s = %s", qualify(pred.Left, table), qualify(pred.Right, table)), nil, nil
	case *queryir.FieldEquals:
		return fmt.Sprintf("%s = %s", qualify(pred.Left, table), qualify(pred.Right, table)), nil, nil
	case queryir.FieldCompare:
		if !queryir.ValidOps[pred.Op] {
			return "", nil, fmt.Errorf("unknown comparison operator %q", pred.Op)
		}
		return fmt.Sprintf("%s %s %s", qualify(pred.Left, table), pred.Op, qualify(pred.Right, table)), nil, nil
	case queryir.And:
		return c.compileList(pred.Predicates, " AND ", "1 = 1", table)
	case *queryir.And:
		return c.compileList(pred.Predicates, " AND ", "1 = 1", table)
	case queryir.Or:
		return c.compileList(pred.Predicates, " OR ", "1 = 0", table)
	case *queryir.Or:
		return c.compileList(pred.Predicates, " OR ", "1 = 0", table)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileBinary compiles "field <op> ?". Numeric comparisons cast both
// sides so decimal TEXT compares by value.
func (c *SQLCompiler) compileBinary(field, op string, value any, numeric bool, table string) (string, []any, error) {
	param, err := toParam(value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value for %s: %w", field, err)
	}
	col := qualify(field, table)
	if numeric {
		return fmt.Sprintf("CAST(%s AS REAL) %s CAST(? AS REAL)", col, op), []any{param}, nil
	}
	return fmt.Sprintf("%s %s ?", col, op), []any{param}, nil
}

// compileIn compiles "field IN (?, ...)". An empty list matches nothing.
func (c *SQLCompiler) compileIn(in queryir.In, table string) (string, []any, error) {
	if len(in.Values) == 0 {
		return "1 = 0", nil, nil
	}
	marks := make([]string, len(in.Values))
	params := make([]any, len(in.Values))
	for i, v := range in.Values {
		p, err := toParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("convert value for %s: %w", in.Field, err)
		}
		marks[i] = "?"
		params[i] = p
	}
	return fmt.Sprintf("%s IN (%s)", qualify(in.Field, table), strings.Join(marks, ", ")), params, nil
}

func (c *SQLCompiler) compileIsNull(n queryir.IsNull, table string) (string, []any, error) {
	if n.Negate {
		return qualify(n.Field, table) + " IS NOT NULL", nil, nil
	}
	return qualify(n.Field, table) + " IS NULL", nil, nil
}

// compileList joins sub-predicates, parenthesizing each so mixed And/Or
// nesting keeps its meaning.
func (c *SQLCompiler) compileList(preds []queryir.Predicate, sep, empty, table string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range preds {
		sql, params, err := c.compilePredicate(pred, table)
		if err != nil {
			return "", nil, err
		}
		if len(preds) > 1 {
			sql = "(" + sql + ")"
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, sep), allParams, nil
}

// getSelect extracts the Select from a Query if it's a Select.
func getSelect(q queryir.Query) *queryir.Select {
	switch query := q.(type) {
	case queryir.Select:
		return &query
	case *queryir.Select:
		return query
	default:
		return nil
	}
}

// qualify prefixes a bare column with its table.
func qualify(field, table string) string {
	if table == "" || strings.Contains(field, ".") {
		return field
	}
	return table + "." + field
}

// toParam converts a predicate or assignment value to a driver parameter.
// Storage-native Go values pass through; ir scalars are converted the same
// way the coercer encodes them.
func toParam(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string, int64, float64, []byte:
		return val, nil
	case int:
		return int64(val), nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRDecimal:
		return val.String(), nil
	case ir.IRTime:
		return ir.FormatStorageTime(val.Time()), nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
