package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

type fakeIndex struct {
	mu      sync.Mutex
	healthy bool
	search  func(q Query) ([]Result, int, error)
	crags   []CragRecord
	routes  []RouteRecord
	deleted []string
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(_ context.Context, q Query) ([]Result, int, error) {
	return f.search(q)
}

func (f *fakeIndex) IndexCrags(crags []CragRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crags = append(f.crags, crags...)
	return nil
}

func (f *fakeIndex) IndexRoutes(routes []RouteRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, routes...)
	return nil
}

func (f *fakeIndex) DeleteCrag(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIndex) DeleteRoute(id string) error { return f.DeleteCrag(id) }

type fakeLoader struct {
	crags  []CragRecord
	routes []RouteRecord
	err    error
}

func (f fakeLoader) LoadAllRecords(context.Context) ([]CragRecord, []RouteRecord, error) {
	return f.crags, f.routes, f.err
}

func quietLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestSearchUsesIndexWhenHealthy(t *testing.T) {
	index := &fakeIndex{healthy: true, search: func(q Query) ([]Result, int, error) {
		return []Result{{Type: ResultCrag, ID: "c1", Title: "Osp"}}, 1, nil
	}}
	svc := NewService(index, nil, nil, quietLog())

	resp := svc.Search(context.Background(), Query{Text: "osp"})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "c1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchFallsBackToPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	index := &fakeIndex{healthy: true, search: func(Query) ([]Result, int, error) {
		return nil, 0, errors.New("timeout")
	}}
	fts := NewPgFTS(db)
	svc := NewService(index, fts, fts, quietLog())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM")).
		WithArgs("ikarus").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT type, id, title, slug, crag_slug, snippet")).
		WithArgs("ikarus").
		WillReturnRows(sqlmock.NewRows([]string{"type", "id", "title", "slug", "crag_slug", "snippet"}).
			AddRow("route", "r1", "Ikarus", "ikarus", "osp", "<mark>Ikarus</mark>"))

	resp := svc.Search(context.Background(), Query{Text: "ikarus"})
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	got := resp.Results[0]
	if got.Type != ResultRoute || got.CragSlug != "osp" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchReturnsEmptyOnFallbackError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery("SELECT count").WillReturnError(errors.New("db down"))

	fts := NewPgFTS(db)
	resp := NewService(nil, fts, fts, quietLog()).Search(context.Background(), Query{Text: "osp"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
}

func TestPgFTSIgnoresBlankQuery(t *testing.T) {
	results, total, err := NewPgFTS(nil).Search(context.Background(), Query{Text: "   "})
	if err != nil || total != 0 || results != nil {
		t.Fatalf("expected nothing, got %v %d %v", results, total, err)
	}
}

func TestIndexWritesRunInBackground(t *testing.T) {
	index := &fakeIndex{healthy: true}
	svc := NewService(index, nil, nil, quietLog())

	svc.IndexCrag(CragRecord{ID: "c1", Name: "Osp"})
	svc.IndexRoute(RouteRecord{ID: "r1", Name: "Ikarus"})
	svc.RemoveCrag("c2")
	svc.Wait()

	if len(index.crags) != 1 || len(index.routes) != 1 || len(index.deleted) != 1 {
		t.Fatalf("unexpected writes: %+v", index)
	}
}

func TestIndexWritesSkippedWhenUnhealthy(t *testing.T) {
	index := &fakeIndex{healthy: false}
	svc := NewService(index, nil, nil, quietLog())

	svc.IndexCrag(CragRecord{ID: "c1"})
	svc.Wait()

	if len(index.crags) != 0 {
		t.Fatalf("expected no writes, got %+v", index.crags)
	}
}

func TestReindexAll(t *testing.T) {
	index := &fakeIndex{healthy: true}
	loader := fakeLoader{
		crags:  []CragRecord{{ID: "c1"}, {ID: "c2"}},
		routes: []RouteRecord{{ID: "r1"}},
	}
	n, err := NewService(index, nil, loader, quietLog()).ReindexAll(context.Background())
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if n != 3 || len(index.crags) != 2 || len(index.routes) != 1 {
		t.Fatalf("unexpected reindex result %d: %+v", n, index)
	}

	if _, err := NewService(nil, nil, loader, quietLog()).ReindexAll(context.Background()); err == nil {
		t.Fatal("expected reindex without index to fail")
	}
}

func TestHitToResult(t *testing.T) {
	hit := meili.Hit{
		"id":         json.RawMessage(`"r1"`),
		"name":       json.RawMessage(`"Ikarus"`),
		"slug":       json.RawMessage(`"ikarus"`),
		"cragSlug":   json.RawMessage(`"osp"`),
		"_formatted": json.RawMessage(`{"name":"<mark>Ika</mark>rus","length":30}`),
	}
	got := hitToResult(hit, ResultRoute)
	want := Result{Type: ResultRoute, ID: "r1", Title: "Ikarus", Slug: "ikarus", CragSlug: "osp", Snippet: "<mark>Ika</mark>rus"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if indexToResultType(idxCrags) != ResultCrag || indexToResultType("other") != "" {
		t.Fatal("unexpected index mapping")
	}
}
