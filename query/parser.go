package query

import (
	"encoding/json"
	"fmt"

	"github.com/gonobo/validator"

	"github.com/restlessgo/restless"
)

// ParseFilters parses the JSON filter grammar carried by the
// filter[objects] query parameter: an array of specifications, each
// either a comparison {"name": ..., "op": ..., "val": ...} or a boolean
// combinator {"and"|"or"|"not": ...}. The top-level specifications are
// combined with logical AND.
func ParseFilters(raw string) ([]Expression, error) {
	if raw == "" {
		return nil, nil
	}

	var specs []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, fmt.Errorf("filter[objects] is not a JSON array: %w", err)
	}

	expressions := make([]Expression, 0, len(specs))
	for _, spec := range specs {
		expr, err := parseSpec(spec)
		if err != nil {
			return nil, err
		}
		expressions = append(expressions, expr)
	}
	return expressions, nil
}

// filterSpec is the raw shape of one grammar node. Exactly one of the
// comparison members or combinator members applies.
type filterSpec struct {
	Name string           `json:"name"`
	Op   string           `json:"op"`
	Val  *json.RawMessage `json:"val"`

	And []json.RawMessage `json:"and"`
	Or  []json.RawMessage `json:"or"`
	Not *json.RawMessage  `json:"not"`
}

func parseSpec(raw json.RawMessage) (Expression, error) {
	spec := filterSpec{}
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("malformed filter specification: %w", err)
	}

	switch {
	case len(spec.And) > 0:
		operands, err := parseSpecs(spec.And)
		if err != nil {
			return nil, err
		}
		return &And{Operands: operands}, nil
	case len(spec.Or) > 0:
		operands, err := parseSpecs(spec.Or)
		if err != nil {
			return nil, err
		}
		return &Or{Operands: operands}, nil
	case spec.Not != nil:
		return parseNot(*spec.Not)
	default:
		return parseComparison(spec)
	}
}

func parseSpecs(raws []json.RawMessage) ([]Expression, error) {
	operands := make([]Expression, 0, len(raws))
	for _, raw := range raws {
		expr, err := parseSpec(raw)
		if err != nil {
			return nil, err
		}
		operands = append(operands, expr)
	}
	return operands, nil
}

// parseNot accepts either a single specification object or a
// one-element array; both shapes appear in the wild.
func parseNot(raw json.RawMessage) (Expression, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) != 1 {
			return nil, fmt.Errorf(`"not" combinator requires exactly one operand, got %d`, len(list))
		}
		raw = list[0]
	}
	operand, err := parseSpec(raw)
	if err != nil {
		return nil, err
	}
	return &Not{Operand: operand}, nil
}

func parseComparison(spec filterSpec) (Expression, error) {
	err := validator.Validate(
		validator.All(
			validator.Rule(spec.Name != "", "filter name missing or empty"),
			validator.Rule(spec.Op != "", "filter operator missing or empty"),
		),
	)
	if err != nil {
		return nil, err
	}

	op, ok := ParseOperator(spec.Op)
	if !ok {
		return nil, fmt.Errorf("unknown filter operator %q", spec.Op)
	}

	comparison := &Comparison{Field: spec.Name, Op: op}

	if !op.TakesOperand() {
		return comparison, nil
	}

	// Comparing a field to null is only valid through the nullness
	// operators; a missing or null operand via any other operator is a
	// rejected request.
	if spec.Val == nil || string(*spec.Val) == "null" {
		return nil, restless.NewComparisonToNull(spec.Name)
	}

	var value any
	if err := json.Unmarshal(*spec.Val, &value); err != nil {
		return nil, fmt.Errorf("malformed filter value for field %q: %w", spec.Name, err)
	}

	if op.TakesList() {
		list, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("operator %q for field %q requires a list operand", op, spec.Name)
		}
		comparison.Value = list
		return comparison, nil
	}

	comparison.Value = value
	return comparison, nil
}
