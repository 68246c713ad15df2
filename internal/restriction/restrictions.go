package restriction

import (
	"fmt"

	"github.com/rpattn/propspec/internal/criteria"
	"github.com/rpattn/propspec/internal/domain"
)

func defaultBuilders() map[domain.Restriction]PredicateBuilder {
	return map[domain.Restriction]PredicateBuilder{
		domain.RestrictionEQ: PredicateBuilderFunc(equal),
		domain.RestrictionNE: PredicateBuilderFunc(notEqual),
		domain.RestrictionGT: comparison(domain.RestrictionGT, (*criteria.Builder).GreaterThan),
		domain.RestrictionGE: comparison(domain.RestrictionGE, (*criteria.Builder).GreaterThanOrEqual),
		domain.RestrictionLT: comparison(domain.RestrictionLT, (*criteria.Builder).LessThan),
		domain.RestrictionLE: comparison(domain.RestrictionLE, (*criteria.Builder).LessThanOrEqual),

		domain.RestrictionLike:  like(domain.RestrictionLike, "%", "%"),
		domain.RestrictionLLike: like(domain.RestrictionLLike, "%", ""),
		domain.RestrictionRLike: like(domain.RestrictionRLike, "", "%"),

		domain.RestrictionIn:  collection(domain.RestrictionIn, (*criteria.Builder).In),
		domain.RestrictionNIn: collection(domain.RestrictionNIn, (*criteria.Builder).NotIn),
	}
}

func equal(ctx Context, x criteria.Expression, value any) (criteria.Predicate, error) {
	if value == nil {
		return ctx.Builder.IsNull(x), nil
	}
	return ctx.Builder.Equal(x, value), nil
}

func notEqual(ctx Context, x criteria.Expression, value any) (criteria.Predicate, error) {
	if value == nil {
		return ctx.Builder.IsNotNull(x), nil
	}
	return ctx.Builder.NotEqual(x, value), nil
}

func comparison(r domain.Restriction, fn func(*criteria.Builder, criteria.Expression, any) criteria.Predicate) PredicateBuilder {
	return PredicateBuilderFunc(func(ctx Context, x criteria.Expression, value any) (criteria.Predicate, error) {
		if value == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingValue, r)
		}
		return fn(ctx.Builder, x, value), nil
	})
}

// like wraps the escaped value with prefix and suffix wildcards.
func like(r domain.Restriction, prefix, suffix string) PredicateBuilder {
	return PredicateBuilderFunc(func(ctx Context, x criteria.Expression, value any) (criteria.Predicate, error) {
		if value == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingValue, r)
		}
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a string value, got %T", domain.ErrInvalidValue, r, value)
		}
		return ctx.Builder.Like(x, prefix+criteria.EscapeLike(s)+suffix), nil
	})
}

func collection(r domain.Restriction, fn func(*criteria.Builder, criteria.Expression, []any) criteria.Predicate) PredicateBuilder {
	return PredicateBuilderFunc(func(ctx Context, x criteria.Expression, value any) (criteria.Predicate, error) {
		values, ok := value.([]any)
		if !ok || len(values) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingValue, r)
		}
		return fn(ctx.Builder, x, values), nil
	})
}
