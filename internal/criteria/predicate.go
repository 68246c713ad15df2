package criteria

import "strings"

// BooleanOperator joins the operands of a compound predicate.
type BooleanOperator string

const (
	OperatorNone BooleanOperator = ""
	OperatorAnd  BooleanOperator = "AND"
	OperatorOr   BooleanOperator = "OR"
	OperatorNot  BooleanOperator = "NOT"
)

// Predicate is a boolean condition. Placeholders inside SQL refer to the
// arguments of the Builder that created it.
type Predicate interface {
	SQL() string
	Operator() BooleanOperator
	Operands() []Predicate
}

type simplePredicate struct {
	sql string
}

func (p *simplePredicate) SQL() string               { return p.sql }
func (p *simplePredicate) Operator() BooleanOperator { return OperatorNone }
func (p *simplePredicate) Operands() []Predicate     { return nil }

type compoundPredicate struct {
	op       BooleanOperator
	operands []Predicate
}

func (p *compoundPredicate) Operator() BooleanOperator { return p.op }

func (p *compoundPredicate) Operands() []Predicate {
	out := make([]Predicate, len(p.operands))
	copy(out, p.operands)
	return out
}

func (p *compoundPredicate) SQL() string {
	if p.op == OperatorNot {
		return "NOT (" + p.operands[0].SQL() + ")"
	}
	parts := make([]string, len(p.operands))
	for i, operand := range p.operands {
		parts[i] = operand.SQL()
	}
	return "(" + strings.Join(parts, " "+string(p.op)+" ") + ")"
}
