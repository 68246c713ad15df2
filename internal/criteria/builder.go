package criteria

import (
	"fmt"
	"strings"
	"time"
)

// Builder creates predicates and owns their positional arguments. A Builder
// belongs to one statement: arguments are numbered in creation order.
type Builder struct {
	args []any
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{args: make([]any, 0)}
}

// Args returns the arguments bound so far.
func (b *Builder) Args() []any {
	out := make([]any, len(b.args))
	copy(out, b.args)
	return out
}

// Bind adds an argument and returns its placeholder.
func (b *Builder) Bind(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *Builder) compare(x Expression, op string, value any) Predicate {
	return &simplePredicate{sql: fmt.Sprintf("%s %s %s", x.SQL(), op, b.Bind(value))}
}

func (b *Builder) Equal(x Expression, value any) Predicate    { return b.compare(x, "=", value) }
func (b *Builder) NotEqual(x Expression, value any) Predicate { return b.compare(x, "<>", value) }
func (b *Builder) GreaterThan(x Expression, value any) Predicate {
	return b.compare(x, ">", value)
}
func (b *Builder) GreaterThanOrEqual(x Expression, value any) Predicate {
	return b.compare(x, ">=", value)
}
func (b *Builder) LessThan(x Expression, value any) Predicate { return b.compare(x, "<", value) }
func (b *Builder) LessThanOrEqual(x Expression, value any) Predicate {
	return b.compare(x, "<=", value)
}

// Like matches x against a LIKE pattern.
func (b *Builder) Like(x Expression, pattern string) Predicate {
	return b.compare(x, "LIKE", pattern)
}

// In matches x against any of values, bound as a single array argument.
func (b *Builder) In(x Expression, values []any) Predicate {
	return &simplePredicate{sql: fmt.Sprintf("%s = ANY(%s)", x.SQL(), b.Bind(typedSlice(values)))}
}

// NotIn is the negation of In.
func (b *Builder) NotIn(x Expression, values []any) Predicate {
	return &simplePredicate{sql: fmt.Sprintf("NOT (%s = ANY(%s))", x.SQL(), b.Bind(typedSlice(values)))}
}

func (b *Builder) IsNull(x Expression) Predicate {
	return &simplePredicate{sql: x.SQL() + " IS NULL"}
}

func (b *Builder) IsNotNull(x Expression) Predicate {
	return &simplePredicate{sql: x.SQL() + " IS NOT NULL"}
}

// And returns the conjunction of the non-nil predicates. No operands yields
// nil and a single operand is returned as is.
func (b *Builder) And(predicates ...Predicate) Predicate {
	return junction(OperatorAnd, predicates)
}

// Or returns the disjunction of the non-nil predicates, following the same
// rules as And.
func (b *Builder) Or(predicates ...Predicate) Predicate {
	return junction(OperatorOr, predicates)
}

// Not negates p. A nil predicate stays nil.
func (b *Builder) Not(p Predicate) Predicate {
	if p == nil {
		return nil
	}
	return &compoundPredicate{op: OperatorNot, operands: []Predicate{p}}
}

func junction(op BooleanOperator, predicates []Predicate) Predicate {
	operands := make([]Predicate, 0, len(predicates))
	for _, p := range predicates {
		if p != nil {
			operands = append(operands, p)
		}
	}
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	}
	return &compoundPredicate{op: op, operands: operands}
}

// EscapeLike escapes LIKE wildcards in a user supplied value.
func EscapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(value)
}

// typedSlice narrows a homogeneous []any so pgx can encode it as a typed array.
func typedSlice(values []any) any {
	if len(values) == 0 {
		return []string{}
	}
	switch values[0].(type) {
	case string:
		return convertSlice[string](values)
	case int32:
		return convertSlice[int32](values)
	case int64:
		return convertSlice[int64](values)
	case float64:
		return convertSlice[float64](values)
	case bool:
		return convertSlice[bool](values)
	case time.Time:
		return convertSlice[time.Time](values)
	}
	return values
}

func convertSlice[T any](values []any) any {
	out := make([]T, 0, len(values))
	for _, v := range values {
		typed, ok := v.(T)
		if !ok {
			return values
		}
		out = append(out, typed)
	}
	return out
}
