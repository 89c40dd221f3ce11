// Package query parses JSON:API request query parameters into an
// immutable, validated bag consumed by the query builder, the inclusion
// resolver, and the serializer.
package query

import (
	"fmt"
	"strings"
)

// Operator is a comparison operator accepted by the filter grammar.
// Synonyms from the wire (e.g. "==", "ne") normalize to one canonical
// operator.
type Operator string

const (
	OpEqual            Operator = "eq"
	OpNotEqual         Operator = "neq"
	OpGreaterThan      Operator = "gt"
	OpGreaterThanEqual Operator = "gte"
	OpLessThan         Operator = "lt"
	OpLessThanEqual    Operator = "lte"
	OpLike             Operator = "like"
	OpILike            Operator = "ilike"
	OpNotLike          Operator = "not_like"
	OpIn               Operator = "in"
	OpNotIn            Operator = "not_in"
	OpIsNull           Operator = "is_null"
	OpIsNotNull        Operator = "is_not_null"
)

var operatorSynonyms = map[string]Operator{
	"eq": OpEqual, "==": OpEqual, "equals": OpEqual, "equal_to": OpEqual,
	"neq": OpNotEqual, "ne": OpNotEqual, "!=": OpNotEqual, "not_equal_to": OpNotEqual,
	"gt": OpGreaterThan, ">": OpGreaterThan,
	"gte": OpGreaterThanEqual, ">=": OpGreaterThanEqual, "ge": OpGreaterThanEqual,
	"lt": OpLessThan, "<": OpLessThan,
	"lte": OpLessThanEqual, "<=": OpLessThanEqual, "le": OpLessThanEqual,
	"like": OpLike, "ilike": OpILike, "not_like": OpNotLike,
	"in": OpIn, "not_in": OpNotIn,
	"is_null": OpIsNull, "is_not_null": OpIsNotNull,
}

// ParseOperator normalizes a wire operator to its canonical form.
func ParseOperator(op string) (Operator, bool) {
	normalized, ok := operatorSynonyms[strings.ToLower(strings.TrimSpace(op))]
	return normalized, ok
}

// TakesOperand reports whether the operator requires a comparison value.
// Nullness checks take none.
func (o Operator) TakesOperand() bool {
	return o != OpIsNull && o != OpIsNotNull
}

// TakesList reports whether the operator expects a list operand.
func (o Operator) TakesList() bool {
	return o == OpIn || o == OpNotIn
}

// Expression is a node of the boolean predicate tree produced by the
// filter grammar. Expressions are compiled by an Evaluator; the SQL
// builder in the storage package is the canonical implementation.
type Expression interface {
	fmt.Stringer
	// Accept invokes the evaluator method that corresponds to the
	// concrete expression type.
	Accept(Evaluator) error
}

// Evaluator compiles or interprets a filter expression tree.
type Evaluator interface {
	EvaluateComparison(*Comparison) error
	EvaluateAnd(*And) error
	EvaluateOr(*Or) error
	EvaluateNot(*Not) error
}

// Comparison is a leaf node binding a field path, an operator, and an
// operand. The field path may cross one relationship hop with a dot
// ("author.age").
type Comparison struct {
	Field string
	Op    Operator
	Value any
}

// String returns a readable representation of the comparison.
func (c Comparison) String() string {
	if !c.Op.TakesOperand() {
		return fmt.Sprintf("[%s %s]", c.Field, c.Op)
	}
	return fmt.Sprintf("[%s %s %v]", c.Field, c.Op, c.Value)
}

// Accept applies the evaluator to this comparison.
func (c *Comparison) Accept(e Evaluator) error { return e.EvaluateComparison(c) }

// And combines child expressions with logical conjunction.
type And struct {
	Operands []Expression
}

// String returns a readable representation of the conjunction.
func (a And) String() string { return joinOperands(a.Operands, " && ") }

// Accept applies the evaluator to this conjunction.
func (a *And) Accept(e Evaluator) error { return e.EvaluateAnd(a) }

// Or combines child expressions with logical disjunction.
type Or struct {
	Operands []Expression
}

// String returns a readable representation of the disjunction.
func (o Or) String() string { return joinOperands(o.Operands, " || ") }

// Accept applies the evaluator to this disjunction.
func (o *Or) Accept(e Evaluator) error { return e.EvaluateOr(o) }

// Not negates a single child expression.
type Not struct {
	Operand Expression
}

// String returns a readable representation of the negation.
func (n Not) String() string { return fmt.Sprintf("!(%s)", n.Operand) }

// Accept applies the evaluator to this negation.
func (n *Not) Accept(e Evaluator) error { return e.EvaluateNot(n) }

func joinOperands(operands []Expression, sep string) string {
	parts := make([]string, len(operands))
	for i, op := range operands {
		parts[i] = op.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
