package graphql

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cast"

	"github.com/rpattn/propspec/internal/domain"
	"github.com/rpattn/propspec/internal/logger"
	"github.com/rpattn/propspec/internal/middleware"
	"github.com/rpattn/propspec/internal/search"
)

// ErrInvalidArgument is returned when a field argument has the wrong shape.
var ErrInvalidArgument = errors.New("invalid argument")

// Resolver answers the Query and Mutation fields with the search service.
type Resolver struct {
	service *search.Service
	log     logger.Logger
}

func NewResolver(service *search.Service, log logger.Logger) *Resolver {
	return &Resolver{service: service, log: log}
}

// EntitiesArgs are the arguments of Query.entities.
type EntitiesArgs struct {
	EntityType  string
	Expressions []string
	Values      []string
	Sort        []string
	Limit       int
	Offset      int
}

// Entities runs a property-filter search.
func (r *Resolver) Entities(ctx context.Context, args EntitiesArgs) (search.Result, error) {
	filters, err := domain.ParsePropertyFilters(args.Expressions, args.Values)
	if err != nil {
		return search.Result{}, err
	}
	req := r.service.BuildRequest(args.EntityType, filters, args.Sort, domain.Page{Limit: args.Limit, Offset: args.Offset})
	result, err := r.service.Search(ctx, req)
	if err != nil {
		return search.Result{}, r.fail(ctx, "search entities", err)
	}
	return result, nil
}

// Entity returns the first match, or nil.
func (r *Resolver) Entity(ctx context.Context, expressions, values []string) (*domain.Entity, error) {
	filters, err := domain.ParsePropertyFilters(expressions, values)
	if err != nil {
		return nil, err
	}
	entity, err := r.service.FindOne(ctx, r.service.BuildRequest("", filters, nil, domain.Page{}))
	if err != nil {
		return nil, r.fail(ctx, "find entity", err)
	}
	return entity, nil
}

func (r *Resolver) CreateEntity(ctx context.Context, input search.EntityInput) (domain.Entity, error) {
	entity, err := r.service.Create(ctx, input)
	if err != nil {
		return domain.Entity{}, r.fail(ctx, "create entity", err)
	}
	return entity, nil
}

func (r *Resolver) CreateEntities(ctx context.Context, inputs []search.EntityInput) ([]domain.Entity, error) {
	entities, err := r.service.CreateBatch(ctx, inputs)
	if err != nil {
		return nil, r.fail(ctx, "create entities", err)
	}
	return entities, nil
}

// Parent resolves Entity.parent through the request's entity loader when
// one is attached, and with a direct lookup otherwise.
func (r *Resolver) Parent(ctx context.Context, entity domain.Entity) (*domain.Entity, error) {
	path := domain.ParentPath(entity.Path)
	if path == "" {
		return nil, nil
	}
	if loader := middleware.EntityLoaderFromContext(ctx); loader != nil {
		parent, err := loader.Load(ctx, path)
		if err != nil {
			return nil, r.fail(ctx, "load parent", err)
		}
		return parent, nil
	}

	found, err := r.service.FindByPaths(ctx, []string{path})
	if err != nil {
		return nil, r.fail(ctx, "load parent", err)
	}
	if parent, ok := found[path]; ok {
		return &parent, nil
	}
	return nil, nil
}

// primeParents queues the parent lookups of entities on the request loader.
func (r *Resolver) primeParents(ctx context.Context, entities []domain.Entity) {
	loader := middleware.EntityLoaderFromContext(ctx)
	if loader == nil {
		return
	}
	for _, entity := range entities {
		if path := domain.ParentPath(entity.Path); path != "" {
			loader.Prime(ctx, path)
		}
	}
}

// fail passes caller errors through and hides everything else behind a
// generic message after logging it.
func (r *Resolver) fail(ctx context.Context, action string, err error) error {
	if search.IsClientError(err) {
		return err
	}
	r.log.WithContext(ctx).Error().Err(err).Str("action", action).Msg("graphql request failed")
	return fmt.Errorf("%s: internal error", action)
}

func decodeEntitiesArgs(args map[string]any) (EntitiesArgs, error) {
	var (
		out EntitiesArgs
		err error
	)
	if out.EntityType, err = optionalString(args, "entityType"); err != nil {
		return EntitiesArgs{}, err
	}
	if out.Expressions, err = stringList(args, "expressions"); err != nil {
		return EntitiesArgs{}, err
	}
	if out.Values, err = stringList(args, "values"); err != nil {
		return EntitiesArgs{}, err
	}
	if out.Sort, err = stringList(args, "sort"); err != nil {
		return EntitiesArgs{}, err
	}
	if out.Limit, err = optionalInt(args, "limit"); err != nil {
		return EntitiesArgs{}, err
	}
	if out.Offset, err = optionalInt(args, "offset"); err != nil {
		return EntitiesArgs{}, err
	}
	return out, nil
}

func decodeEntityInput(raw any) (search.EntityInput, error) {
	fields, ok := raw.(map[string]any)
	if !ok {
		return search.EntityInput{}, fmt.Errorf("%w: EntityInput must be an object, got %T", ErrInvalidArgument, raw)
	}
	var (
		input search.EntityInput
		err   error
	)
	if input.EntityType, err = optionalString(fields, "entityType"); err != nil {
		return search.EntityInput{}, err
	}
	if input.Path, err = optionalString(fields, "path"); err != nil {
		return search.EntityInput{}, err
	}
	switch props := fields["properties"].(type) {
	case nil:
	case map[string]any:
		input.Properties = props
	default:
		return search.EntityInput{}, fmt.Errorf("%w: properties must be an object, got %T", ErrInvalidArgument, props)
	}
	return input, nil
}

func decodeEntityInputs(raw any) ([]search.EntityInput, error) {
	items, ok := raw.([]any)
	if !ok {
		// a single object is accepted for a list argument
		input, err := decodeEntityInput(raw)
		if err != nil {
			return nil, err
		}
		return []search.EntityInput{input}, nil
	}
	inputs := make([]search.EntityInput, 0, len(items))
	for i, item := range items {
		input, err := decodeEntityInput(item)
		if err != nil {
			return nil, fmt.Errorf("inputs[%d]: %w", i, err)
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func optionalString(args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return "", nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return s, nil
}

func optionalInt(args map[string]any, name string) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, nil
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	return n, nil
}

func stringList(args map[string]any, name string) ([]string, error) {
	switch raw := args[name].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{raw}, nil
	default:
		list, err := cast.ToStringSliceE(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
		}
		return list, nil
	}
}
