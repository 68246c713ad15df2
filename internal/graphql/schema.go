package graphql

import (
	"bytes"
	"context"
	_ "embed"
	"errors"

	gql "github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/rpattn/propspec/internal/domain"
	"github.com/rpattn/propspec/internal/search"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

var errIntrospectionDisabled = errors.New("introspection disabled")

// NewExecutableSchema serves schema.graphqls with resolver. The gqlgen
// handler parses and validates every operation before it reaches Exec.
func NewExecutableSchema(resolver *Resolver) gql.ExecutableSchema {
	return &executableSchema{resolver: resolver}
}

type executableSchema struct {
	resolver *Resolver
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Complexity(_ context.Context, _, _ string, childComplexity int, _ map[string]any) (int, bool) {
	return childComplexity + 1, true
}

func (e *executableSchema) Exec(ctx context.Context) gql.ResponseHandler {
	opCtx := gql.GetOperationContext(ctx)
	ec := &executionContext{OperationContext: opCtx, resolver: e.resolver}

	var object string
	switch opCtx.Operation.Operation {
	case ast.Query:
		object = "Query"
	case ast.Mutation:
		object = "Mutation"
	default:
		return gql.OneShot(gql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}

	done := false
	return func(ctx context.Context) *gql.Response {
		if done {
			return nil
		}
		done = true

		data := ec.root(ctx, object, opCtx.Operation.SelectionSet)
		var buf bytes.Buffer
		data.MarshalGQL(&buf)
		return &gql.Response{Data: buf.Bytes()}
	}
}

// executionContext walks one operation. Fields run one after another, which
// is also the order mutations require.
type executionContext struct {
	*gql.OperationContext
	resolver *Resolver
}

func (ec *executionContext) root(ctx context.Context, object string, sel ast.SelectionSet) gql.Marshaler {
	fields := gql.CollectFields(ec.OperationContext, sel, []string{object})
	ctx = gql.WithFieldContext(ctx, &gql.FieldContext{Object: object})

	out := gql.NewFieldSet(fields)
	invalids := 0
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = gql.MarshalString(object)
			continue
		case "__schema", "__type":
			fc := &gql.FieldContext{Object: object, Field: field}
			gql.AddError(gql.WithFieldContext(ctx, fc), errIntrospectionDisabled)
			out.Values[i] = gql.Null
			continue
		}

		out.Values[i] = ec.rootField(ctx, object, field)
		if out.Values[i] == gql.Null && field.Definition.Type.NonNull {
			invalids++
		}
	}
	if invalids > 0 {
		return gql.Null
	}
	return out
}

func (ec *executionContext) rootField(ctx context.Context, object string, field gql.CollectedField) gql.Marshaler {
	args := field.ArgumentMap(ec.Variables)
	fc := &gql.FieldContext{Object: object, Field: field, Args: args, IsMethod: true, IsResolver: true}

	var resolve gql.Resolver
	switch field.Name {
	case "entities":
		resolve = func(ctx context.Context) (any, error) {
			decoded, err := decodeEntitiesArgs(args)
			if err != nil {
				return nil, err
			}
			return ec.resolver.Entities(ctx, decoded)
		}
	case "entity":
		resolve = func(ctx context.Context) (any, error) {
			expressions, err := stringList(args, "expressions")
			if err != nil {
				return nil, err
			}
			values, err := stringList(args, "values")
			if err != nil {
				return nil, err
			}
			return ec.resolver.Entity(ctx, expressions, values)
		}
	case "createEntity":
		resolve = func(ctx context.Context) (any, error) {
			input, err := decodeEntityInput(args["input"])
			if err != nil {
				return nil, err
			}
			return ec.resolver.CreateEntity(ctx, input)
		}
	case "createEntities":
		resolve = func(ctx context.Context) (any, error) {
			inputs, err := decodeEntityInputs(args["inputs"])
			if err != nil {
				return nil, err
			}
			return ec.resolver.CreateEntities(ctx, inputs)
		}
	default:
		// validation rejects unknown fields before execution
		return gql.Null
	}

	ctx, res, ok := ec.resolve(ctx, fc, resolve)
	if !ok {
		return gql.Null
	}

	switch v := res.(type) {
	case search.Result:
		return ec.marshalConnection(ctx, field.Selections, v)
	case *domain.Entity:
		if v == nil {
			return gql.Null
		}
		return ec.marshalEntity(ctx, field.Selections, *v)
	case domain.Entity:
		return ec.marshalEntity(ctx, field.Selections, v)
	case []domain.Entity:
		return ec.marshalEntities(ctx, field.Selections, v)
	}
	return gql.Null
}

// resolve runs fn through the operation's resolver middleware and reports
// any error against the field.
func (ec *executionContext) resolve(ctx context.Context, fc *gql.FieldContext, fn gql.Resolver) (context.Context, any, bool) {
	ctx = gql.WithFieldContext(ctx, fc)
	res, err := ec.ResolverMiddleware(ctx, fn)
	if err != nil {
		gql.AddError(ctx, err)
		return ctx, nil, false
	}
	fc.Result = res
	return ctx, res, true
}

func (ec *executionContext) marshalConnection(ctx context.Context, sel ast.SelectionSet, result search.Result) gql.Marshaler {
	fields := gql.CollectFields(ec.OperationContext, sel, []string{"EntityConnection"})
	out := gql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = gql.MarshalString("EntityConnection")
		case "items":
			fc := &gql.FieldContext{Object: "EntityConnection", Field: field}
			out.Values[i] = ec.marshalEntities(gql.WithFieldContext(ctx, fc), field.Selections, result.Items)
		case "total":
			out.Values[i] = gql.MarshalInt64(result.Total)
		case "limit":
			out.Values[i] = gql.MarshalInt(result.Limit)
		case "offset":
			out.Values[i] = gql.MarshalInt(result.Offset)
		}
	}
	return out
}

func (ec *executionContext) marshalEntities(ctx context.Context, sel ast.SelectionSet, entities []domain.Entity) gql.Marshaler {
	if ec.selects(sel, "Entity", "parent") {
		ec.resolver.primeParents(ctx, entities)
	}

	out := make(gql.Array, len(entities))
	for i := range entities {
		fc := &gql.FieldContext{Index: &i, Result: &entities[i]}
		out[i] = ec.marshalEntity(gql.WithFieldContext(ctx, fc), sel, entities[i])
	}
	return out
}

func (ec *executionContext) marshalEntity(ctx context.Context, sel ast.SelectionSet, entity domain.Entity) gql.Marshaler {
	fields := gql.CollectFields(ec.OperationContext, sel, []string{"Entity"})
	out := gql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = gql.MarshalString("Entity")
		case "id":
			out.Values[i] = gql.MarshalID(entity.ID.String())
		case "entityType":
			out.Values[i] = gql.MarshalString(entity.EntityType)
		case "path":
			out.Values[i] = gql.MarshalString(entity.Path)
		case "version":
			out.Values[i] = gql.MarshalInt64(entity.Version)
		case "properties":
			props := entity.Properties
			if props == nil {
				props = map[string]any{}
			}
			out.Values[i] = gql.MarshalMap(props)
		case "createdAt":
			out.Values[i] = gql.MarshalTime(entity.CreatedAt)
		case "updatedAt":
			out.Values[i] = gql.MarshalTime(entity.UpdatedAt)
		case "parent":
			out.Values[i] = ec.marshalParent(ctx, field, entity)
		}
	}
	return out
}

func (ec *executionContext) marshalParent(ctx context.Context, field gql.CollectedField, entity domain.Entity) gql.Marshaler {
	fc := &gql.FieldContext{Object: "Entity", Field: field, Args: field.ArgumentMap(ec.Variables), IsMethod: true, IsResolver: true}
	ctx, res, ok := ec.resolve(ctx, fc, func(ctx context.Context) (any, error) {
		return ec.resolver.Parent(ctx, entity)
	})
	if !ok {
		return gql.Null
	}
	parent, _ := res.(*domain.Entity)
	if parent == nil {
		return gql.Null
	}
	return ec.marshalEntity(ctx, field.Selections, *parent)
}

// selects reports whether sel asks for name on an object of type object.
func (ec *executionContext) selects(sel ast.SelectionSet, object, name string) bool {
	for _, field := range gql.CollectFields(ec.OperationContext, sel, []string{object}) {
		if field.Name == name {
			return true
		}
	}
	return false
}
