package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/propspec/internal/criteria"
	"github.com/rpattn/propspec/internal/db"
	"github.com/rpattn/propspec/internal/domain"
	"github.com/rpattn/propspec/internal/specification"
)

const entityAlias = "e"

// EntityMapping maps entity property names onto the entities table. Names
// not listed are looked up in the JSONB properties column.
var EntityMapping = criteria.Mapping{
	Table: "entities",
	Columns: map[string]string{
		"id":          "id",
		"entityType":  "entity_type",
		"entity_type": "entity_type",
		"path":        "path",
		"version":     "version",
		"createdAt":   "created_at",
		"created_at":  "created_at",
		"updatedAt":   "updated_at",
		"updated_at":  "updated_at",
	},
	Properties: "properties",
}

var entityColumns = []string{
	entityAlias + ".id",
	entityAlias + ".entity_type",
	entityAlias + ".path",
	entityAlias + ".properties",
	entityAlias + ".version",
	entityAlias + ".created_at",
	entityAlias + ".updated_at",
}

const defaultEntityOrder = entityAlias + ".created_at DESC, " + entityAlias + ".id"

// entityRepository implements EntityRepository interface
type entityRepository struct {
	db  db.DBTX
	txr db.Transactor
}

// NewEntityRepository creates a new entity repository. txr may be nil, in
// which case CreateBatch fails with ErrNoTransactor.
func NewEntityRepository(conn db.DBTX, txr db.Transactor) EntityRepository {
	return &entityRepository{db: conn, txr: txr}
}

// Create creates a new entity
func (r *entityRepository) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	return insertEntity(ctx, r.db, entity)
}

// CreateBatch inserts entities inside a single transaction.
func (r *entityRepository) CreateBatch(ctx context.Context, entities []domain.Entity) ([]domain.Entity, error) {
	if r.txr == nil {
		return nil, ErrNoTransactor
	}

	created := make([]domain.Entity, 0, len(entities))
	err := r.txr.WithTx(ctx, func(tx pgx.Tx) error {
		for i, entity := range entities {
			stored, err := insertEntity(ctx, tx, entity)
			if err != nil {
				return fmt.Errorf("entity %d: %w", i, err)
			}
			created = append(created, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func insertEntity(ctx context.Context, q db.DBTX, entity domain.Entity) (domain.Entity, error) {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	if entity.Version == 0 {
		entity.Version = 1
	}
	now := time.Now()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = entity.CreatedAt
	}

	propertiesJSON, err := entity.PropertiesJSON()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	row := q.QueryRow(ctx,
		`INSERT INTO entities (id, entity_type, path, properties, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, entity_type, path, properties, version, created_at, updated_at`,
		entity.ID, entity.EntityType, entity.Path, propertiesJSON, entity.Version, entity.CreatedAt, entity.UpdatedAt,
	)
	created, err := scanEntity(row)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to create entity: %w", err)
	}
	return created, nil
}

// FindAll returns one page of entities matching spec and the total match count.
func (r *entityRepository) FindAll(
	ctx context.Context,
	spec specification.Specification,
	sorts []domain.EntitySort,
	page domain.Page,
) ([]domain.Entity, int64, error) {
	stmt, err := buildFindAll(spec, sorts, page)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRow(ctx, stmt.countSQL, stmt.countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entities: %w", err)
	}

	entities, err := r.list(ctx, stmt)
	if err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}

// List returns one page of entities matching spec.
func (r *entityRepository) List(
	ctx context.Context,
	spec specification.Specification,
	sorts []domain.EntitySort,
	page domain.Page,
) ([]domain.Entity, error) {
	stmt, err := buildFindAll(spec, sorts, page)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, stmt)
}

func (r *entityRepository) list(ctx context.Context, stmt findStatement) ([]domain.Entity, error) {
	rows, err := r.db.Query(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return collectEntities(rows)
}

// FindOne returns the first entity matching spec.
func (r *entityRepository) FindOne(ctx context.Context, spec specification.Specification) (domain.Entity, error) {
	stmt, err := buildFindAll(spec, nil, domain.Page{Limit: 1})
	if err != nil {
		return domain.Entity{}, err
	}

	entity, err := scanEntity(r.db.QueryRow(ctx, stmt.sql, stmt.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, ErrNotFound
		}
		return domain.Entity{}, fmt.Errorf("find entity: %w", err)
	}
	return entity, nil
}

// Count returns the number of entities matching spec.
func (r *entityRepository) Count(ctx context.Context, spec specification.Specification) (int64, error) {
	stmt, err := buildFindAll(spec, nil, domain.Page{})
	if err != nil {
		return 0, err
	}

	var total int64
	if err := r.db.QueryRow(ctx, stmt.countSQL, stmt.countArgs...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return total, nil
}

// PropertyKeys returns the distinct property keys of the entities matching spec.
func (r *entityRepository) PropertyKeys(ctx context.Context, spec specification.Specification) ([]string, error) {
	sql, args, err := buildPropertyKeys(spec)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list property keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan property keys: %w", err)
	}
	return keys, nil
}

type findStatement struct {
	sql       string
	args      []any
	countSQL  string
	countArgs []any
}

// buildFindAll renders the listing and count statements for spec. Listings
// always end on the primary key so that LIMIT/OFFSET pages are stable.
func buildFindAll(spec specification.Specification, sorts []domain.EntitySort, page domain.Page) (findStatement, error) {
	root := criteria.NewRoot(EntityMapping, entityAlias)
	query := criteria.NewQuery(root)
	cb := criteria.NewBuilder()

	where, err := specification.Where(spec).ToPredicate(root, query, cb)
	if err != nil {
		return findStatement{}, fmt.Errorf("build entity predicate: %w", err)
	}

	byID := false
	for _, sort := range sorts {
		x, err := root.Get(sort.Field)
		if err != nil {
			return findStatement{}, fmt.Errorf("sort by %q: %w", sort.Field, err)
		}
		query.OrderBy(criteria.Order{Expression: x, Descending: sort.Direction == domain.SortDirectionDesc})
		byID = byID || x.SQL() == entityAlias+".id"
	}
	if len(sorts) > 0 && !byID {
		id, err := root.Get("id")
		if err != nil {
			return findStatement{}, err
		}
		query.OrderBy(criteria.Order{Expression: id})
	}

	stmt := findStatement{
		countSQL:  query.Count(where),
		countArgs: cb.Args(),
	}

	page = page.Normalize(domain.DefaultPageLimit, domain.MaxPageLimit)
	limit := cb.Bind(page.Limit)
	offset := cb.Bind(page.Offset)
	stmt.sql = query.Select(entityColumns, where, defaultEntityOrder) + fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)
	stmt.args = cb.Args()

	return stmt, nil
}

func buildPropertyKeys(spec specification.Specification) (string, []any, error) {
	root := criteria.NewRoot(EntityMapping, entityAlias)
	query := criteria.NewQuery(root).Distinct(true)
	cb := criteria.NewBuilder()

	where, err := specification.Where(spec).ToPredicate(root, query, cb)
	if err != nil {
		return "", nil, fmt.Errorf("build entity predicate: %w", err)
	}
	column := "jsonb_object_keys(" + entityAlias + "." + EntityMapping.Properties + ") AS property_key"
	return query.Select([]string{column}, where, "property_key"), cb.Args(), nil
}

func collectEntities(rows pgx.Rows) ([]domain.Entity, error) {
	defer rows.Close()

	entities := make([]domain.Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

func scanEntity(row pgx.Row) (domain.Entity, error) {
	var (
		id         uuid.UUID
		entityType string
		path       string
		properties json.RawMessage
		version    int64
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(&id, &entityType, &path, &properties, &version, &createdAt, &updatedAt); err != nil {
		return domain.Entity{}, err
	}
	return buildEntity(id, entityType, path, properties, version, createdAt, updatedAt)
}

func buildEntity(
	id uuid.UUID,
	entityType string,
	path string,
	propertiesJSON json.RawMessage,
	version int64,
	createdAt time.Time,
	updatedAt time.Time,
) (domain.Entity, error) {
	properties, err := domain.FromJSONBProperties(propertiesJSON)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to decode properties for entity %s: %w", id, err)
	}

	return domain.Entity{
		ID:         id,
		EntityType: entityType,
		Path:       path,
		Properties: properties,
		Version:    version,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}
