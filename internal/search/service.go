package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rpattn/propspec/internal/domain"
	"github.com/rpattn/propspec/internal/repository"
	"github.com/rpattn/propspec/internal/specification"
)

// ErrInvalidEntity is returned when an entity to be created is incomplete or malformed.
var ErrInvalidEntity = errors.New("invalid entity")

// Request is a parsed entity search.
type Request struct {
	EntityType string
	Filters    []domain.PropertyFilter
	Sorts      []domain.EntitySort
	Page       domain.Page
}

// Result is one page of matches.
type Result struct {
	Items  []domain.Entity `json:"items"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// EntityInput is an entity to be created.
type EntityInput struct {
	EntityType string         `json:"entityType"`
	Path       string         `json:"path"`
	Properties map[string]any `json:"properties"`
}

func (in EntityInput) entity() (domain.Entity, error) {
	entityType := strings.TrimSpace(in.EntityType)
	if entityType == "" {
		return domain.Entity{}, fmt.Errorf("%w: entityType is required", ErrInvalidEntity)
	}
	path := strings.TrimSpace(in.Path)
	if err := domain.ValidatePath(path); err != nil {
		return domain.Entity{}, err
	}
	return domain.NewEntity(entityType, path, in.Properties), nil
}

// Options controls request parsing.
type Options struct {
	FilterPrefix string
	DefaultLimit int
	// MaxLimit is capped at domain.MaxPageLimit.
	MaxLimit int
}

// Service runs property-filter searches against the entity repository.
type Service struct {
	repo repository.EntityRepository
	opts Options
}

func NewService(repo repository.EntityRepository, opts Options) *Service {
	if opts.FilterPrefix == "" {
		opts.FilterPrefix = "filter_"
	}
	if opts.MaxLimit <= 0 || opts.MaxLimit > domain.MaxPageLimit {
		opts.MaxLimit = domain.MaxPageLimit
	}
	return &Service{repo: repo, opts: opts}
}

// ParseRequest reads filters, entityType, sort, limit and offset from query parameters.
func (s *Service) ParseRequest(values url.Values) (Request, error) {
	filters, err := domain.PropertyFiltersFromValues(values, s.opts.FilterPrefix)
	if err != nil {
		return Request{}, err
	}

	var page domain.Page
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return Request{}, fmt.Errorf("invalid limit %q", raw)
		}
		page.Limit = limit
	}
	if raw := strings.TrimSpace(values.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return Request{}, fmt.Errorf("invalid offset %q", raw)
		}
		page.Offset = offset
	}
	return s.BuildRequest(values.Get("entityType"), filters, values["sort"], page), nil
}

// BuildRequest assembles a request from parsed filters and raw "field[,desc]"
// sorts. Blank sorts are ignored and the page is clamped to the service limits.
func (s *Service) BuildRequest(entityType string, filters []domain.PropertyFilter, sorts []string, page domain.Page) Request {
	req := Request{
		EntityType: strings.TrimSpace(entityType),
		Filters:    filters,
		Page:       page.Normalize(s.opts.DefaultLimit, s.opts.MaxLimit),
	}
	for _, raw := range sorts {
		if sort, ok := domain.ParseEntitySort(raw); ok {
			req.Sorts = append(req.Sorts, sort)
		}
	}
	return req
}

// Specification returns the specification a request searches with.
func (s *Service) Specification(req Request) specification.Specification {
	filters := append([]domain.PropertyFilter(nil), req.Filters...)
	if req.EntityType != "" {
		filters = append(filters, domain.PropertyFilter{
			Restriction:   domain.RestrictionEQ,
			FieldType:     domain.FieldTypeString,
			PropertyNames: []string{"entityType"},
			RawValue:      req.EntityType,
			Values:        []any{req.EntityType},
		})
	}
	return specification.NewPropertyFilterSpecification(filters)
}

// Search returns one page of entities matching req.
func (s *Service) Search(ctx context.Context, req Request) (Result, error) {
	items, total, err := s.repo.FindAll(ctx, s.Specification(req), req.Sorts, req.Page)
	if err != nil {
		return Result{}, err
	}
	return Result{Items: items, Total: total, Limit: req.Page.Limit, Offset: req.Page.Offset}, nil
}

// FindOne returns the first match for req, or nil when nothing matches.
func (s *Service) FindOne(ctx context.Context, req Request) (*domain.Entity, error) {
	entity, err := s.repo.FindOne(ctx, s.Specification(req))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// FindByPaths returns, per path, the oldest entity stored at that path.
// Paths with no entity are absent from the result.
func (s *Service) FindByPaths(ctx context.Context, paths []string) (map[string]domain.Entity, error) {
	found := make(map[string]domain.Entity, len(paths))
	if len(paths) == 0 {
		return found, nil
	}
	filter, err := domain.ParsePropertyFilter("INS_path", strings.Join(paths, domain.ValueSeparator))
	if err != nil {
		return nil, err
	}
	sorts := []domain.EntitySort{{Field: "createdAt", Direction: domain.SortDirectionAsc}}
	spec := specification.FromFilter(filter)

	page := domain.Page{Limit: domain.MaxPageLimit}
	for {
		items, err := s.repo.List(ctx, spec, sorts, page)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if _, seen := found[item.Path]; !seen {
				found[item.Path] = item
			}
		}
		if len(items) < page.Limit || len(found) == len(paths) {
			return found, nil
		}
		page.Offset += len(items)
	}
}

// Create stores a new entity.
func (s *Service) Create(ctx context.Context, input EntityInput) (domain.Entity, error) {
	entity, err := input.entity()
	if err != nil {
		return domain.Entity{}, err
	}
	return s.repo.Create(ctx, entity)
}

// CreateBatch validates every input and then stores them all in one transaction.
func (s *Service) CreateBatch(ctx context.Context, inputs []EntityInput) ([]domain.Entity, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", ErrInvalidEntity)
	}
	entities := make([]domain.Entity, 0, len(inputs))
	for i, input := range inputs {
		entity, err := input.entity()
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		entities = append(entities, entity)
	}
	return s.repo.CreateBatch(ctx, entities)
}
