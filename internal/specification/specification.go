// Package specification composes query conditions. A Specification yields a
// predicate for a query context; nil means "no restriction".
package specification

import (
	"github.com/rpattn/propspec/internal/criteria"
)

// Specification produces the WHERE condition for one query.
type Specification interface {
	ToPredicate(root *criteria.Root, query *criteria.Query, cb *criteria.Builder) (criteria.Predicate, error)
}

// Func adapts a function to Specification.
type Func func(root *criteria.Root, query *criteria.Query, cb *criteria.Builder) (criteria.Predicate, error)

func (f Func) ToPredicate(root *criteria.Root, query *criteria.Query, cb *criteria.Builder) (criteria.Predicate, error) {
	return f(root, query, cb)
}

// Where wraps spec so that a nil spec means no restriction.
func Where(spec Specification) Specification {
	return Func(func(root *criteria.Root, query *criteria.Query, cb *criteria.Builder) (criteria.Predicate, error) {
		if spec == nil {
			return nil, nil
		}
		return spec.ToPredicate(root, query, cb)
	})
}

// And combines specs with AND. Nil specs and absent predicates are skipped.
func And(specs ...Specification) Specification {
	return Func(func(root *criteria.Root, query *criteria.Query, cb *criteria.Builder) (criteria.Predicate, error) {
		predicates, err := collect(specs, root, query, cb)
		if err != nil {
			return nil, err
		}
		return cb.And(predicates...), nil
	})
}

// Or combines specs with OR. Nil specs and absent predicates are skipped.
func Or(specs ...Specification) Specification {
	return Func(func(root *criteria.Root, query *criteria.Query, cb *criteria.Builder) (criteria.Predicate, error) {
		predicates, err := collect(specs, root, query, cb)
		if err != nil {
			return nil, err
		}
		return cb.Or(predicates...), nil
	})
}

// Not negates spec. Negating an absent predicate is still absent.
func Not(spec Specification) Specification {
	return Func(func(root *criteria.Root, query *criteria.Query, cb *criteria.Builder) (criteria.Predicate, error) {
		if spec == nil {
			return nil, nil
		}
		p, err := spec.ToPredicate(root, query, cb)
		if err != nil {
			return nil, err
		}
		return cb.Not(p), nil
	})
}

func collect(specs []Specification, root *criteria.Root, query *criteria.Query, cb *criteria.Builder) ([]criteria.Predicate, error) {
	predicates := make([]criteria.Predicate, 0, len(specs))
	for _, spec := range specs {
		if spec == nil {
			continue
		}
		p, err := spec.ToPredicate(root, query, cb)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
	}
	return predicates, nil
}
