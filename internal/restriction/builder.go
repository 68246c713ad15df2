package restriction

import (
	"errors"
	"fmt"

	"github.com/rpattn/propspec/internal/criteria"
	"github.com/rpattn/propspec/internal/domain"
)

var (
	// ErrNoContext is returned when a restriction is requested before
	// SetSpecificationProperty or after ClearSpecificationProperty.
	ErrNoContext = errors.New("restriction builder has no query context")
	// ErrUnsupportedRestriction is returned for restrictions with no registered PredicateBuilder.
	ErrUnsupportedRestriction = errors.New("unsupported restriction")
	// ErrMissingValue is returned when a restriction needs a value but the filter matches NULL.
	ErrMissingValue = errors.New("restriction requires a value")
)

// Context is the query context a restriction is translated in.
type Context struct {
	Root    *criteria.Root
	Query   *criteria.Query
	Builder *criteria.Builder
}

// PredicateBuilder translates one restriction for one property. value is nil
// for a NULL match and a []any for collection restrictions.
type PredicateBuilder interface {
	Build(ctx Context, x criteria.Expression, value any) (criteria.Predicate, error)
}

// PredicateBuilderFunc adapts a function to PredicateBuilder.
type PredicateBuilderFunc func(ctx Context, x criteria.Expression, value any) (criteria.Predicate, error)

func (f PredicateBuilderFunc) Build(ctx Context, x criteria.Expression, value any) (criteria.Predicate, error) {
	return f(ctx, x, value)
}

// Builder turns property filters into predicates. It is stateful: the query
// context is set before a batch of filters is translated and cleared after,
// so a Builder must not be shared by concurrent translations.
type Builder struct {
	builders map[domain.Restriction]PredicateBuilder
	ctx      *Context
}

// NewBuilder returns a Builder with every standard restriction registered.
func NewBuilder() *Builder {
	b := &Builder{builders: make(map[domain.Restriction]PredicateBuilder)}
	for restriction, pb := range defaultBuilders() {
		b.Register(restriction, pb)
	}
	return b
}

// Register installs or replaces the PredicateBuilder for restriction.
func (b *Builder) Register(restriction domain.Restriction, pb PredicateBuilder) {
	b.builders[restriction] = pb
}

// SetSpecificationProperty installs the query context.
func (b *Builder) SetSpecificationProperty(root *criteria.Root, query *criteria.Query, cb *criteria.Builder) {
	b.ctx = &Context{Root: root, Query: query, Builder: cb}
}

// ClearSpecificationProperty drops the query context.
func (b *Builder) ClearSpecificationProperty() {
	b.ctx = nil
}

// HasContext reports whether a query context is installed.
func (b *Builder) HasContext() bool {
	return b.ctx != nil
}

// Restriction translates filter. Several property names are OR-ed, and so
// are several values unless the restriction takes the whole collection.
func (b *Builder) Restriction(filter domain.PropertyFilter) (criteria.Predicate, error) {
	if b.ctx == nil {
		return nil, ErrNoContext
	}
	pb, ok := b.builders[filter.Restriction]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRestriction, filter.Restriction)
	}
	if len(filter.PropertyNames) == 0 {
		return nil, fmt.Errorf("%w: filter %s has no property", domain.ErrInvalidExpression, filter)
	}

	ctx := *b.ctx
	predicates := make([]criteria.Predicate, 0, len(filter.PropertyNames))
	for _, name := range filter.PropertyNames {
		x, err := ctx.Root.Get(name)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", filter.Expression(), err)
		}
		x = x.As(filter.FieldType)

		p, err := b.property(ctx, pb, filter, x)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", filter.Expression(), err)
		}
		predicates = append(predicates, p)
	}
	return ctx.Builder.Or(predicates...), nil
}

func (b *Builder) property(ctx Context, pb PredicateBuilder, filter domain.PropertyFilter, x criteria.Expression) (criteria.Predicate, error) {
	if filter.Restriction.IsCollection() {
		if filter.IsNull() {
			return nil, fmt.Errorf("%w: %s", ErrMissingValue, filter.Restriction)
		}
		return pb.Build(ctx, x, append([]any(nil), filter.Values...))
	}
	if filter.IsNull() {
		return pb.Build(ctx, x, nil)
	}

	predicates := make([]criteria.Predicate, 0, len(filter.Values))
	for _, value := range filter.Values {
		p, err := pb.Build(ctx, x, value)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
	}
	return ctx.Builder.Or(predicates...), nil
}
