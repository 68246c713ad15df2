package entityloader

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/propspec/internal/domain"
)

// PathFinder looks entities up by path, one per path.
type PathFinder interface {
	FindByPaths(ctx context.Context, paths []string) (map[string]domain.Entity, error)
}

// EntityLoader batches entity lookups by path within one request.
type EntityLoader struct {
	Loader *dataloader.Loader
}

func NewEntityLoader(finder PathFinder) *EntityLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		paths := keys.Keys()

		found, err := finder.FindByPaths(ctx, paths)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// results must line up with keys
		results := make([]*dataloader.Result, len(keys))
		for i, path := range paths {
			if e, ok := found[path]; ok {
				results[i] = &dataloader.Result{Data: e}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn,
		dataloader.WithWait(5*time.Millisecond),
		dataloader.WithBatchCapacity(domain.MaxPageLimit),
	)
	return &EntityLoader{Loader: loader}
}

// Prime queues a lookup for path without waiting for it, so that later
// loads in the same request share one batch.
func (l *EntityLoader) Prime(ctx context.Context, path string) {
	l.Loader.Load(ctx, dataloader.StringKey(path))
}

// Load returns the entity stored at path, or nil when there is none.
func (l *EntityLoader) Load(ctx context.Context, path string) (*domain.Entity, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(path))()
	if err != nil {
		return nil, err
	}
	entity, ok := data.(domain.Entity)
	if !ok {
		return nil, nil
	}
	return &entity, nil
}
