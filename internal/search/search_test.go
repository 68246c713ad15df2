package search_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/propspec/internal/criteria"
	"github.com/rpattn/propspec/internal/domain"
	"github.com/rpattn/propspec/internal/logger"
	"github.com/rpattn/propspec/internal/repository"
	"github.com/rpattn/propspec/internal/search"
	"github.com/rpattn/propspec/internal/specification"
)

// fakeRepository evaluates the specification against the real entity mapping
// and serves a fixed slice of entities.
type fakeRepository struct {
	items    []domain.Entity
	err      error
	keysErr  error
	where    []string
	args     [][]any
	pages    []domain.Page
	sorts    [][]domain.EntitySort
	created  []domain.Entity
	batches  [][]domain.Entity
	counted  int
	keysSeen int
}

func (f *fakeRepository) render(spec specification.Specification) error {
	root := criteria.NewRoot(repository.EntityMapping, "e")
	cb := criteria.NewBuilder()
	p, err := specification.Where(spec).ToPredicate(root, criteria.NewQuery(root), cb)
	if err != nil {
		return err
	}
	sql := ""
	if p != nil {
		sql = p.SQL()
	}
	f.where = append(f.where, sql)
	f.args = append(f.args, cb.Args())
	return nil
}

func (f *fakeRepository) Create(_ context.Context, entity domain.Entity) (domain.Entity, error) {
	if f.err != nil {
		return domain.Entity{}, f.err
	}
	f.created = append(f.created, entity)
	return entity, nil
}

func (f *fakeRepository) CreateBatch(_ context.Context, entities []domain.Entity) ([]domain.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, entities)
	return entities, nil
}

func (f *fakeRepository) FindAll(ctx context.Context, spec specification.Specification, sorts []domain.EntitySort, page domain.Page) ([]domain.Entity, int64, error) {
	f.counted++
	items, err := f.List(ctx, spec, sorts, page)
	if err != nil {
		return nil, 0, err
	}
	return items, int64(len(f.items)), nil
}

func (f *fakeRepository) List(_ context.Context, spec specification.Specification, sorts []domain.EntitySort, page domain.Page) ([]domain.Entity, error) {
	if err := f.render(spec); err != nil {
		return nil, err
	}
	root := criteria.NewRoot(repository.EntityMapping, "e")
	for _, order := range sorts {
		if _, err := root.Get(order.Field); err != nil {
			return nil, fmt.Errorf("sort by %q: %w", order.Field, err)
		}
	}
	f.pages = append(f.pages, page)
	f.sorts = append(f.sorts, sorts)
	if f.err != nil {
		return nil, f.err
	}
	if page.Offset >= len(f.items) {
		return []domain.Entity{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(f.items) {
		end = len(f.items)
	}
	return f.items[page.Offset:end], nil
}

func (f *fakeRepository) PropertyKeys(_ context.Context, spec specification.Specification) ([]string, error) {
	if err := f.render(spec); err != nil {
		return nil, err
	}
	f.keysSeen++
	if f.keysErr != nil {
		return nil, f.keysErr
	}
	seen := map[string]bool{}
	var keys []string
	for _, item := range f.items {
		for key := range item.Properties {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeRepository) FindOne(_ context.Context, spec specification.Specification) (domain.Entity, error) {
	if err := f.render(spec); err != nil {
		return domain.Entity{}, err
	}
	if len(f.items) == 0 {
		return domain.Entity{}, repository.ErrNotFound
	}
	return f.items[0], nil
}

func (f *fakeRepository) Count(_ context.Context, spec specification.Specification) (int64, error) {
	if err := f.render(spec); err != nil {
		return 0, err
	}
	return int64(len(f.items)), nil
}

func newService(repo *fakeRepository) *search.Service {
	return search.NewService(repo, search.Options{FilterPrefix: "filter_", DefaultLimit: 20, MaxLimit: 100})
}

func sampleEntities() []domain.Entity {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return []domain.Entity{
		{ID: uuid.New(), EntityType: "asset", Path: "site.a", Version: 1, CreatedAt: created, UpdatedAt: created,
			Properties: map[string]any{"name": "pump", "rating": 4.5}},
		{ID: uuid.New(), EntityType: "asset", Path: "site.b", Version: 2, CreatedAt: created, UpdatedAt: created,
			Properties: map[string]any{"name": "valve", "owner": map[string]any{"name": "ops"}}},
	}
}

func TestParseRequest(t *testing.T) {
	t.Parallel()

	svc := newService(&fakeRepository{})
	req, err := svc.ParseRequest(url.Values{
		"filter_EQS_name": {"pump"},
		"entityType":      {" asset "},
		"sort":            {"createdAt,desc", "", "name"},
		"limit":           {"500"},
		"offset":          {"10"},
	})
	require.NoError(t, err)
	require.Equal(t, "asset", req.EntityType)
	require.Len(t, req.Filters, 1)
	require.Equal(t, []domain.EntitySort{
		{Field: "createdAt", Direction: domain.SortDirectionDesc},
		{Field: "name", Direction: domain.SortDirectionAsc},
	}, req.Sorts)
	require.Equal(t, domain.Page{Limit: 100, Offset: 10}, req.Page)

	req, err = svc.ParseRequest(url.Values{})
	require.NoError(t, err)
	require.Equal(t, domain.Page{Limit: 20}, req.Page)

	_, err = svc.ParseRequest(url.Values{"limit": {"ten"}})
	require.Error(t, err)
	_, err = svc.ParseRequest(url.Values{"offset": {"x"}})
	require.Error(t, err)
	_, err = svc.ParseRequest(url.Values{"filter_EQX_name": {"x"}})
	require.ErrorIs(t, err, domain.ErrInvalidExpression)
}

func TestSearchAddsEntityTypeRestriction(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{items: sampleEntities()}
	svc := newService(repo)

	req, err := svc.ParseRequest(url.Values{"filter_LIKES_name": {"pu"}, "entityType": {"asset"}})
	require.NoError(t, err)

	result, err := svc.Search(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Total)
	require.Len(t, result.Items, 2)
	require.Equal(t, 20, result.Limit)

	require.Equal(t, []string{"(e.properties ->> 'name' LIKE $1 AND e.entity_type = $2)"}, repo.where)
	require.Equal(t, [][]any{{"%pu%", "asset"}}, repo.args)
}

func TestSearchWithoutFiltersIsUnrestricted(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	_, err := newService(repo).Search(context.Background(), search.Request{Page: domain.Page{Limit: 5}})
	require.NoError(t, err)
	require.Equal(t, []string{""}, repo.where)
}

func TestHandlerSearch(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{items: sampleEntities()}
	handler := search.NewHTTPHandler(newService(repo), logger.NewTestLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities?filter_EQS_name=pump&limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Items []domain.Entity `json:"items"`
		Total int64           `json:"total"`
		Limit int             `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(2), body.Total)
	require.Equal(t, 1, body.Limit)
	require.Len(t, body.Items, 1)
	require.Equal(t, "pump", body.Items[0].Properties["name"])
}

func TestHandlerSearchErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{name: "malformed expression", target: "/entities?filter_XXS_name=a", status: http.StatusBadRequest},
		{name: "bad value", target: "/entities?filter_EQI_age=old", status: http.StatusBadRequest},
		{name: "bad path", target: "/entities?filter_EQS_a%20b=x", status: http.StatusBadRequest},
		{name: "like on a number", target: "/entities?filter_LIKEI_age=3", status: http.StatusBadRequest},
		{name: "bad sort", target: "/entities?sort=a%20b", status: http.StatusBadRequest},
		{name: "repository failure", target: "/entities", err: errors.New("connection reset"), status: http.StatusInternalServerError},
		{name: "wrapped client error", target: "/entities", err: fmt.Errorf("build: %w", criteria.ErrInvalidPath), status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeRepository{err: tc.err}
			handler := search.NewHTTPHandler(newService(repo), logger.NewTestLogger())

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.target, nil))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerCreate(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	handler := search.NewHTTPHandler(newService(repo), logger.NewTestLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/entities",
		strings.NewReader(`{"entityType":"asset","path":"site.a","properties":{"name":"pump"}}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.created, 1)
	require.Equal(t, "asset", repo.created[0].EntityType)
	require.Equal(t, "pump", repo.created[0].Properties["name"])

	for _, body := range []string{`{`, `{"path":"x"}`, `{"entityType":"asset","path":"site..a"}`} {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/entities", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/entities", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerExport(t *testing.T) {
	t.Parallel()

	entities := sampleEntities()
	repo := &fakeRepository{items: entities}
	handler := search.NewHTTPHandler(newService(repo), logger.NewTestLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities/export?entityType=asset", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	require.Equal(t, []string{"e.entity_type = $1", "e.entity_type = $1"}, repo.where)
	require.Zero(t, repo.counted)
	require.Equal(t, 1, repo.keysSeen)

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Entities")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"id", "entityType", "path", "version", "createdAt", "updatedAt", "name", "owner", "rating"}, rows[0])
	require.Equal(t, entities[0].ID.String(), rows[1][0])
	require.Equal(t, "2024-01-02T03:04:05Z", rows[1][4])
	require.Equal(t, "pump", rows[1][6])
	require.Equal(t, "4.5", rows[1][8])
	require.Equal(t, "valve", rows[2][6])
	require.Equal(t, "map[name:ops]", rows[2][7])
}

func TestExportPagesWithoutCounting(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	items := make([]domain.Entity, 1200)
	for i := range items {
		items[i] = domain.Entity{ID: uuid.New(), EntityType: "asset", Path: "site", Version: 1,
			CreatedAt: created, UpdatedAt: created, Properties: map[string]any{"n": i}}
	}
	repo := &fakeRepository{items: items}

	var buf bytes.Buffer
	rows, err := newService(repo).Export(context.Background(), search.Request{}, &buf)
	require.NoError(t, err)
	require.Equal(t, 1200, rows)
	require.Zero(t, repo.counted)
	require.Equal(t, []domain.Page{{Limit: 500}, {Limit: 500, Offset: 500}, {Limit: 500, Offset: 1000}}, repo.pages)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	sheetRows, err := f.GetRows("Entities")
	require.NoError(t, err)
	require.Len(t, sheetRows, 1201)
	require.Equal(t, "1199", sheetRows[1200][6])
}

func TestHandlerExportFailureBeforeFirstByte(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{keysErr: errors.New("connection reset")}
	handler := search.NewHTTPHandler(newService(repo), logger.NewTestLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities/export", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestServiceCapsMaxLimit(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	svc := search.NewService(repo, search.Options{DefaultLimit: 20, MaxLimit: 5000})

	req, err := svc.ParseRequest(url.Values{"limit": {"3000"}})
	require.NoError(t, err)
	require.Equal(t, domain.MaxPageLimit, req.Page.Limit)

	result, err := svc.Search(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.MaxPageLimit, result.Limit)
	require.Equal(t, []domain.Page{{Limit: domain.MaxPageLimit}}, repo.pages)
}

func TestHandlerCreateBatch(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	handler := search.NewHTTPHandler(newService(repo), logger.NewTestLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/entities/batch", strings.NewReader(
		`[{"entityType":"asset","path":"site"},{"entityType":"asset","path":"site.a","properties":{"name":"pump"}}]`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, repo.batches, 1)
	require.Len(t, repo.batches[0], 2)
	require.Equal(t, "pump", repo.batches[0][1].Properties["name"])

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "site.a", body[1]["path"])
	require.Equal(t, "asset", body[1]["entityType"])

	for _, payload := range []string{`[]`, `[{"entityType":"asset","path":"ok"},{"path":"x"}]`, `{`} {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/entities/batch", strings.NewReader(payload)))
		require.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
	require.Len(t, repo.batches, 1)
}

func TestFindByPaths(t *testing.T) {
	t.Parallel()

	older := sampleEntities()[0]
	newer := older
	newer.ID = uuid.New()
	repo := &fakeRepository{items: []domain.Entity{older, newer, sampleEntities()[1]}}

	found, err := newService(repo).FindByPaths(context.Background(), []string{"site.a", "site.b", "site.z"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, older.ID, found["site.a"].ID)
	require.Equal(t, []string{"e.path = ANY($1)"}, repo.where)
	require.Equal(t, [][]any{{[]string{"site.a", "site.b", "site.z"}}}, repo.args)
	require.Equal(t, [][]domain.EntitySort{{{Field: "createdAt", Direction: domain.SortDirectionAsc}}}, repo.sorts)

	found, err = newService(repo).FindByPaths(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, found)
}
