package repository

import (
	"context"
	"errors"

	"github.com/rpattn/propspec/internal/domain"
	"github.com/rpattn/propspec/internal/specification"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("entity not found")
	// ErrNoTransactor is returned by batch writes on a repository built without a Transactor.
	ErrNoTransactor = errors.New("entity repository has no transactor")
)

// EntityRepository defines the interface for entity operations. Listing
// operations take a Specification; a nil Specification matches everything.
type EntityRepository interface {
	Create(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	// CreateBatch stores every entity in one transaction, or none of them.
	CreateBatch(ctx context.Context, entities []domain.Entity) ([]domain.Entity, error)
	FindAll(ctx context.Context, spec specification.Specification, sorts []domain.EntitySort, page domain.Page) ([]domain.Entity, int64, error)
	// List is FindAll without the total count.
	List(ctx context.Context, spec specification.Specification, sorts []domain.EntitySort, page domain.Page) ([]domain.Entity, error)
	FindOne(ctx context.Context, spec specification.Specification) (domain.Entity, error)
	Count(ctx context.Context, spec specification.Specification) (int64, error)
	// PropertyKeys returns the sorted union of property keys across matches.
	PropertyKeys(ctx context.Context, spec specification.Specification) ([]string, error)
}
