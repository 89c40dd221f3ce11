package storage

import (
	"fmt"
	"strings"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/query"
	"github.com/restlessgo/restless/schema"
)

// selectBuilder compiles parsed query parameters into one parameterized
// SELECT statement. It is the canonical query.Evaluator: filter
// expression trees compile to WHERE fragments through the Accept
// callbacks, with operands bound as $N placeholders.
//
// Field paths may cross one relationship hop ("author.age"); the hop
// materializes as a LEFT JOIN on the related table, added once per
// relationship regardless of how many criteria reference it.
type selectBuilder struct {
	registry *schema.Registry
	schema   *schema.Schema

	joins    []string
	joined   map[string]bool
	distinct bool

	where   []string
	orderBy []string
	groupBy []string
	selects []string

	args         []any
	paramCounter int

	// Work area for the evaluator: each Evaluate* callback pushes its
	// compiled fragment; combinators pop their operands back off.
	stack []string
}

func newSelectBuilder(registry *schema.Registry, s *schema.Schema) *selectBuilder {
	return &selectBuilder{
		registry:     registry,
		schema:       s,
		joined:       make(map[string]bool),
		paramCounter: 1,
	}
}

// apply folds the filter, sort, and grouping parameters into the
// builder, validating every referenced field against the schema.
func (b *selectBuilder) apply(params *query.Params) error {
	for _, filter := range params.Filters {
		if err := filter.Accept(b); err != nil {
			return err
		}
		b.where = append(b.where, b.pop())
	}

	for _, criterion := range params.Sort {
		column, err := b.resolveColumn(criterion.Field)
		if err != nil {
			return err
		}
		direction := "ASC"
		if criterion.Descending {
			direction = "DESC"
		}
		b.orderBy = append(b.orderBy, fmt.Sprintf("%s %s", column, direction))
	}

	for _, field := range params.GroupBy {
		column, err := b.resolveColumn(field)
		if err != nil {
			return err
		}
		b.groupBy = append(b.groupBy, column)
		b.selects = append(b.selects, column)
	}

	return nil
}

// whereEqual constrains the statement to rows whose column equals the
// given value. The column is trusted; it comes from schema metadata,
// never from the request.
func (b *selectBuilder) whereEqual(column string, value any) {
	b.where = append(b.where, fmt.Sprintf("%s = %s", column, b.placeholder(value)))
}

// selectSQL renders the full statement. A limit of zero omits the
// LIMIT/OFFSET clauses entirely.
func (b *selectBuilder) selectSQL(limit, offset int) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(b.selects) > 0 {
		sb.WriteString(strings.Join(b.selects, ", "))
	} else {
		sb.WriteString(b.schema.TableName() + ".*")
	}
	sb.WriteString(b.fromClause())
	sb.WriteString(b.whereClause())

	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}

	args := b.args
	counter := b.paramCounter
	if limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", counter))
		args = append(append([]any{}, args...), limit)
		counter++
		if offset > 0 {
			sb.WriteString(fmt.Sprintf(" OFFSET $%d", counter))
			args = append(args, offset)
		}
	}

	return sb.String(), args
}

// countSQL renders the matching-row count for the same criteria,
// without ordering or pagination. Joined to-many criteria count
// distinct primary keys so fanned-out rows are not double counted.
func (b *selectBuilder) countSQL() (string, []any) {
	var sb strings.Builder
	if b.distinct {
		sb.WriteString(fmt.Sprintf("SELECT COUNT(DISTINCT %s.%s)",
			b.schema.TableName(), b.schema.PrimaryKeyColumn()))
	} else {
		sb.WriteString("SELECT COUNT(*)")
	}
	sb.WriteString(b.fromClause())
	sb.WriteString(b.whereClause())
	return sb.String(), b.args
}

func (b *selectBuilder) fromClause() string {
	var sb strings.Builder
	sb.WriteString(" FROM ")
	sb.WriteString(b.schema.TableName())
	for _, join := range b.joins {
		sb.WriteString(join)
	}
	return sb.String()
}

func (b *selectBuilder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// EvaluateComparison compiles a leaf comparison to a parameterized
// fragment.
func (b *selectBuilder) EvaluateComparison(c *query.Comparison) error {
	column, err := b.resolveColumn(c.Field)
	if err != nil {
		return err
	}
	fragment, err := b.comparisonSQL(column, c.Op, c.Value)
	if err != nil {
		return err
	}
	b.push(fragment)
	return nil
}

// EvaluateAnd compiles a conjunction of sub-expressions.
func (b *selectBuilder) EvaluateAnd(and *query.And) error {
	parts, err := b.evaluateOperands(and.Operands)
	if err != nil {
		return err
	}
	b.push("(" + strings.Join(parts, " AND ") + ")")
	return nil
}

// EvaluateOr compiles a disjunction of sub-expressions.
func (b *selectBuilder) EvaluateOr(or *query.Or) error {
	parts, err := b.evaluateOperands(or.Operands)
	if err != nil {
		return err
	}
	b.push("(" + strings.Join(parts, " OR ") + ")")
	return nil
}

// EvaluateNot compiles a negation.
func (b *selectBuilder) EvaluateNot(not *query.Not) error {
	if err := not.Operand.Accept(b); err != nil {
		return err
	}
	b.push("NOT (" + b.pop() + ")")
	return nil
}

func (b *selectBuilder) evaluateOperands(operands []query.Expression) ([]string, error) {
	parts := make([]string, 0, len(operands))
	for _, operand := range operands {
		if err := operand.Accept(b); err != nil {
			return nil, err
		}
		parts = append(parts, b.pop())
	}
	return parts, nil
}

func (b *selectBuilder) comparisonSQL(column string, op query.Operator, value any) (string, error) {
	switch op {
	case query.OpEqual:
		return fmt.Sprintf("%s = %s", column, b.placeholder(value)), nil
	case query.OpNotEqual:
		return fmt.Sprintf("%s != %s", column, b.placeholder(value)), nil
	case query.OpGreaterThan:
		return fmt.Sprintf("%s > %s", column, b.placeholder(value)), nil
	case query.OpGreaterThanEqual:
		return fmt.Sprintf("%s >= %s", column, b.placeholder(value)), nil
	case query.OpLessThan:
		return fmt.Sprintf("%s < %s", column, b.placeholder(value)), nil
	case query.OpLessThanEqual:
		return fmt.Sprintf("%s <= %s", column, b.placeholder(value)), nil
	case query.OpLike:
		return fmt.Sprintf("%s LIKE %s", column, b.placeholder(value)), nil
	case query.OpILike:
		return fmt.Sprintf("%s ILIKE %s", column, b.placeholder(value)), nil
	case query.OpNotLike:
		return fmt.Sprintf("%s NOT LIKE %s", column, b.placeholder(value)), nil
	case query.OpIn, query.OpNotIn:
		return b.listSQL(column, op, value)
	case query.OpIsNull:
		return fmt.Sprintf("%s IS NULL", column), nil
	case query.OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", column), nil
	default:
		return "", fmt.Errorf("unsupported operator %q", op)
	}
}

func (b *selectBuilder) listSQL(column string, op query.Operator, value any) (string, error) {
	values, ok := value.([]any)
	if !ok {
		return "", fmt.Errorf("operator %q requires a list operand", op)
	}
	if len(values) == 0 {
		// Membership in an empty set is vacuously false, and its
		// complement vacuously true.
		if op == query.OpIn {
			return "FALSE", nil
		}
		return "TRUE", nil
	}

	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = b.placeholder(v)
	}
	keyword := "IN"
	if op == query.OpNotIn {
		keyword = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", column, keyword, strings.Join(placeholders, ", ")), nil
}

// resolveColumn maps a field path to a qualified column, adding a join
// when the path crosses a relationship. Unknown names are rejected so
// malformed requests never reach the database.
func (b *selectBuilder) resolveColumn(path string) (string, error) {
	name, remainder, dotted := strings.Cut(path, ".")
	if !dotted {
		field, ok := b.schema.Field(name)
		if !ok {
			return "", restless.NewUnknownField(name)
		}
		return b.schema.TableName() + "." + field.ColumnName(), nil
	}

	related, rel, ok := b.registry.Related(b.schema, name)
	if !ok {
		return "", restless.NewUnknownField(path)
	}
	field, ok := related.Field(remainder)
	if !ok {
		return "", restless.NewUnknownField(path)
	}

	b.addJoin(rel, related)
	return related.TableName() + "." + field.ColumnName(), nil
}

func (b *selectBuilder) addJoin(rel schema.Relationship, related *schema.Schema) {
	if b.joined[rel.Name] {
		return
	}
	b.joined[rel.Name] = true

	table := b.schema.TableName()
	relatedTable := related.TableName()

	switch {
	case rel.Through != "":
		b.joins = append(b.joins,
			fmt.Sprintf(" LEFT JOIN %s ON %s.%s = %s.%s",
				rel.Through, rel.Through, rel.ThroughLocal, table, b.schema.PrimaryKeyColumn()),
			fmt.Sprintf(" LEFT JOIN %s ON %s.%s = %s.%s",
				relatedTable, relatedTable, related.PrimaryKeyColumn(), rel.Through, rel.ThroughRemote))
		b.distinct = true
	case rel.ToMany:
		b.joins = append(b.joins,
			fmt.Sprintf(" LEFT JOIN %s ON %s.%s = %s.%s",
				relatedTable, relatedTable, rel.Remote, table, b.schema.PrimaryKeyColumn()))
		b.distinct = true
	default:
		b.joins = append(b.joins,
			fmt.Sprintf(" LEFT JOIN %s ON %s.%s = %s.%s",
				relatedTable, table, rel.Column, relatedTable, related.PrimaryKeyColumn()))
	}
}

func (b *selectBuilder) placeholder(value any) string {
	b.args = append(b.args, value)
	p := fmt.Sprintf("$%d", b.paramCounter)
	b.paramCounter++
	return p
}

func (b *selectBuilder) push(fragment string) {
	b.stack = append(b.stack, fragment)
}

func (b *selectBuilder) pop() string {
	fragment := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return fragment
}
