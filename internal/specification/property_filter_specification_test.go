package specification_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/rpattn/propspec/internal/criteria"
	"github.com/rpattn/propspec/internal/domain"
	"github.com/rpattn/propspec/internal/specification"
)

var testMapping = criteria.Mapping{
	Table:      "entities",
	Columns:    map[string]string{"entityType": "entity_type"},
	Properties: "properties",
}

// spyRestrictionBuilder records the context lifecycle and the predicates it hands out.
type spyRestrictionBuilder struct {
	root     *criteria.Root
	cb       *criteria.Builder
	sets     int
	clears   int
	produced []criteria.Predicate
	failOn   string
}

func (s *spyRestrictionBuilder) SetSpecificationProperty(root *criteria.Root, _ *criteria.Query, cb *criteria.Builder) {
	s.sets++
	s.root = root
	s.cb = cb
}

func (s *spyRestrictionBuilder) ClearSpecificationProperty() {
	s.clears++
	s.root = nil
	s.cb = nil
}

func (s *spyRestrictionBuilder) Restriction(filter domain.PropertyFilter) (criteria.Predicate, error) {
	if s.root == nil {
		return nil, errors.New("no context")
	}
	if filter.PropertyName() == s.failOn {
		return nil, errors.New("boom")
	}
	x, err := s.root.Get(filter.PropertyName())
	if err != nil {
		return nil, err
	}
	p := s.cb.Equal(x, filter.Value())
	s.produced = append(s.produced, p)
	return p, nil
}

func (s *spyRestrictionBuilder) hasContext() bool { return s.root != nil }

type PropertyFilterSpecificationTestSuite struct {
	suite.Suite

	root  *criteria.Root
	query *criteria.Query
	cb    *criteria.Builder
	spy   *spyRestrictionBuilder
}

func TestPropertyFilterSpecificationTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(PropertyFilterSpecificationTestSuite))
}

func (s *PropertyFilterSpecificationTestSuite) SetupTest() {
	s.root = criteria.NewRoot(testMapping, "e")
	s.query = criteria.NewQuery(s.root)
	s.cb = criteria.NewBuilder()
	s.spy = &spyRestrictionBuilder{}
}

func (s *PropertyFilterSpecificationTestSuite) filters(pairs ...string) []domain.PropertyFilter {
	var out []domain.PropertyFilter
	for i := 0; i < len(pairs); i += 2 {
		filter, err := domain.ParsePropertyFilter(pairs[i], pairs[i+1])
		s.Require().NoError(err)
		out = append(out, filter)
	}
	return out
}

func (s *PropertyFilterSpecificationTestSuite) TestEmptyFilterSetYieldsNoPredicate() {
	spec := specification.NewPropertyFilterSpecification(nil, specification.WithRestrictionBuilder(s.spy))

	p, err := spec.ToPredicate(s.root, s.query, s.cb)

	s.Require().NoError(err)
	s.Require().Nil(p)
	s.Require().Equal(1, s.spy.sets)
	s.Require().Equal(1, s.spy.clears)
	s.Require().False(s.spy.hasContext())
}

func (s *PropertyFilterSpecificationTestSuite) TestSingleFilterYieldsBuilderPredicate() {
	spec := specification.FromFilter(s.filters("EQS_name", "bob")[0], specification.WithRestrictionBuilder(s.spy))

	p, err := spec.ToPredicate(s.root, s.query, s.cb)

	s.Require().NoError(err)
	s.Require().Len(s.spy.produced, 1)
	s.Require().Same(s.spy.produced[0], p)
	s.Require().False(s.spy.hasContext())
}

func (s *PropertyFilterSpecificationTestSuite) TestSeveralFiltersYieldConjunction() {
	spec := specification.NewPropertyFilterSpecification(
		s.filters("EQS_name", "bob", "EQS_code", "x1", "EQS_entityType", "asset"),
		specification.WithRestrictionBuilder(s.spy),
	)

	p, err := spec.ToPredicate(s.root, s.query, s.cb)

	s.Require().NoError(err)
	s.Require().Equal(criteria.OperatorAnd, p.Operator())
	s.Require().ElementsMatch(s.spy.produced, p.Operands())
	s.Require().Equal(
		"(e.properties ->> 'name' = $1 AND e.properties ->> 'code' = $2 AND e.entity_type = $3)",
		p.SQL(),
	)
	s.Require().Equal([]any{"bob", "x1", "asset"}, s.cb.Args())
	s.Require().Equal(1, s.spy.clears)
}

func (s *PropertyFilterSpecificationTestSuite) TestContextClearedOnError() {
	s.spy.failOn = "code"
	spec := specification.NewPropertyFilterSpecification(
		s.filters("EQS_name", "bob", "EQS_code", "x1", "EQS_other", "y"),
		specification.WithRestrictionBuilder(s.spy),
	)

	p, err := spec.ToPredicate(s.root, s.query, s.cb)

	s.Require().Error(err)
	s.Require().Nil(p)
	s.Require().Equal(1, s.spy.sets)
	s.Require().Equal(1, s.spy.clears)
	s.Require().False(s.spy.hasContext())
}

func (s *PropertyFilterSpecificationTestSuite) TestContextClearedOnEveryInvocation() {
	spec := specification.NewPropertyFilterSpecification(
		s.filters("EQS_name", "bob"),
		specification.WithRestrictionBuilder(s.spy),
	)

	for i := 0; i < 3; i++ {
		_, err := spec.ToPredicate(s.root, s.query, criteria.NewBuilder())
		s.Require().NoError(err)
		s.Require().False(s.spy.hasContext())
	}
	s.Require().Equal(3, s.spy.sets)
	s.Require().Equal(3, s.spy.clears)
}

func (s *PropertyFilterSpecificationTestSuite) TestDefaultRestrictionBuilder() {
	spec, err := specification.FromExpressions(
		[]string{"LIKES_title_OR_code", "GEI_age"},
		[]string{"pump", "30"},
	)
	s.Require().NoError(err)

	p, err := spec.ToPredicate(s.root, s.query, s.cb)

	s.Require().NoError(err)
	s.Require().Equal(
		"((e.properties ->> 'title' LIKE $1 OR e.properties ->> 'code' LIKE $2) AND (e.properties ->> 'age')::integer >= $3)",
		p.SQL(),
	)
	s.Require().Equal([]any{"%pump%", "%pump%", int32(30)}, s.cb.Args())
}

func (s *PropertyFilterSpecificationTestSuite) TestDefaultRestrictionBuilderPropagatesErrors() {
	spec, err := specification.FromExpression("EQS_bad name", "x")
	s.Require().NoError(err)

	_, err = spec.ToPredicate(s.root, s.query, s.cb)
	s.Require().ErrorIs(err, criteria.ErrInvalidPath)

	// the builder was released, so the next invocation works again
	spec.SetFilters(s.filters("EQS_name", "bob"))
	p, err := spec.ToPredicate(s.root, s.query, criteria.NewBuilder())
	s.Require().NoError(err)
	s.Require().NotNil(p)
}

func (s *PropertyFilterSpecificationTestSuite) TestConstructorErrors() {
	_, err := specification.FromExpression("NOPE", "x")
	s.Require().ErrorIs(err, domain.ErrInvalidExpression)

	_, err = specification.FromExpressions([]string{"EQS_a"}, []string{"1", "2"})
	s.Require().ErrorIs(err, domain.ErrInvalidExpression)
}

func (s *PropertyFilterSpecificationTestSuite) TestFilterAccessorsCopy() {
	filters := s.filters("EQS_name", "bob")
	spec := specification.NewPropertyFilterSpecification(filters)
	filters[0].RawValue = "changed"

	s.Require().Equal("bob", spec.Filters()[0].RawValue)

	spec.AddFilter(s.filters("EQS_code", "c")[0])
	s.Require().Len(spec.Filters(), 2)

	got := spec.Filters()
	got[0].RawValue = "mutated"
	s.Require().Equal("bob", spec.Filters()[0].RawValue)

	spec.SetFilters(nil)
	s.Require().Empty(spec.Filters())
}

func (s *PropertyFilterSpecificationTestSuite) TestFilterAccessorsCopyNestedSlices() {
	filters := s.filters("INI_age_OR_size", "1,2")
	spec := specification.NewPropertyFilterSpecification(filters)

	filters[0].PropertyNames[0] = "changed"
	filters[0].Values[0] = int32(99)

	got := spec.Filters()
	s.Require().Equal([]string{"age", "size"}, got[0].PropertyNames)
	s.Require().Equal([]any{int32(1), int32(2)}, got[0].Values)

	got[0].PropertyNames[1] = "mutated"
	got[0].Values[1] = int32(-1)

	again := spec.Filters()
	s.Require().Equal([]string{"age", "size"}, again[0].PropertyNames)
	s.Require().Equal([]any{int32(1), int32(2)}, again[0].Values)

	replacement := s.filters("EQS_name", "bob")
	spec.SetFilters(replacement)
	replacement[0].Values[0] = "alice"
	s.Require().Equal([]any{"bob"}, spec.Filters()[0].Values)
}

func TestPropertyFilterSpecificationConcurrentUse(t *testing.T) {
	t.Parallel()

	spec, err := specification.FromExpressions([]string{"EQS_name", "GTI_age"}, []string{"bob", "3"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			root := criteria.NewRoot(testMapping, "e")
			p, err := spec.ToPredicate(root, criteria.NewQuery(root), criteria.NewBuilder())
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, "(e.properties ->> 'name' = $1 AND (e.properties ->> 'age')::integer > $2)", p.SQL())
		}()
	}
	wg.Wait()
}
