package specification

import (
	"sync"

	"github.com/rpattn/propspec/internal/criteria"
	"github.com/rpattn/propspec/internal/domain"
	"github.com/rpattn/propspec/internal/restriction"
)

// RestrictionBuilder translates property filters inside a query context that
// is installed and released around each translation.
type RestrictionBuilder interface {
	SetSpecificationProperty(root *criteria.Root, query *criteria.Query, cb *criteria.Builder)
	ClearSpecificationProperty()
	Restriction(filter domain.PropertyFilter) (criteria.Predicate, error)
}

// PropertyFilterSpecification is a Specification whose predicate is the
// conjunction of its property filters.
type PropertyFilterSpecification struct {
	mu                 sync.Mutex
	filters            []domain.PropertyFilter
	restrictionBuilder RestrictionBuilder
}

// Option configures a PropertyFilterSpecification.
type Option func(*PropertyFilterSpecification)

// WithRestrictionBuilder replaces the default restriction builder.
func WithRestrictionBuilder(rb RestrictionBuilder) Option {
	return func(s *PropertyFilterSpecification) {
		s.restrictionBuilder = rb
	}
}

// NewPropertyFilterSpecification returns a specification over filters, kept in order.
func NewPropertyFilterSpecification(filters []domain.PropertyFilter, opts ...Option) *PropertyFilterSpecification {
	s := &PropertyFilterSpecification{
		filters:            cloneFilters(filters),
		restrictionBuilder: restriction.NewBuilder(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromFilter returns a specification holding a single filter.
func FromFilter(filter domain.PropertyFilter, opts ...Option) *PropertyFilterSpecification {
	return NewPropertyFilterSpecification([]domain.PropertyFilter{filter}, opts...)
}

// FromExpression parses expression and matchValue into a single-filter specification.
func FromExpression(expression, matchValue string, opts ...Option) (*PropertyFilterSpecification, error) {
	filter, err := domain.ParsePropertyFilter(expression, matchValue)
	if err != nil {
		return nil, err
	}
	return FromFilter(filter, opts...), nil
}

// FromExpressions parses expressions and matchValues pairwise.
func FromExpressions(expressions, matchValues []string, opts ...Option) (*PropertyFilterSpecification, error) {
	filters, err := domain.ParsePropertyFilters(expressions, matchValues)
	if err != nil {
		return nil, err
	}
	return NewPropertyFilterSpecification(filters, opts...), nil
}

// Filters returns a deep copy of the filters.
func (s *PropertyFilterSpecification) Filters() []domain.PropertyFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFilters(s.filters)
}

// SetFilters replaces the filters with a deep copy of filters.
func (s *PropertyFilterSpecification) SetFilters(filters []domain.PropertyFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = cloneFilters(filters)
}

// AddFilter appends a copy of filter.
func (s *PropertyFilterSpecification) AddFilter(filter domain.PropertyFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, filter.Clone())
}

// ToPredicate translates every filter and returns their conjunction, or nil
// when there are no filters. The restriction builder's context is released
// before returning, also on error.
func (s *PropertyFilterSpecification) ToPredicate(root *criteria.Root, query *criteria.Query, cb *criteria.Builder) (criteria.Predicate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.restrictionBuilder.SetSpecificationProperty(root, query, cb)
	defer s.restrictionBuilder.ClearSpecificationProperty()

	predicates := make([]criteria.Predicate, 0, len(s.filters))
	for _, filter := range s.filters {
		p, err := s.restrictionBuilder.Restriction(filter)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
	}
	if len(predicates) == 0 {
		return nil, nil
	}
	return cb.And(predicates...), nil
}

func cloneFilters(filters []domain.PropertyFilter) []domain.PropertyFilter {
	if filters == nil {
		return nil
	}
	out := make([]domain.PropertyFilter, len(filters))
	for i, filter := range filters {
		out[i] = filter.Clone()
	}
	return out
}
