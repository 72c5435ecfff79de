package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Index is a search backend that also accepts writes. *Meili implements it.
type Index interface {
	Searcher
	IndexCrags(crags []CragRecord) error
	IndexRoutes(routes []RouteRecord) error
	DeleteCrag(id string) error
	DeleteRoute(id string) error
}

// Loader reads every searchable record from the database.
type Loader interface {
	LoadAllRecords(ctx context.Context) ([]CragRecord, []RouteRecord, error)
}

// Service is the facade that tries the index first and falls back to
// PostgreSQL full-text search.
type Service struct {
	primary  Index
	fallback Searcher
	loader   Loader
	log      *logrus.Entry
	pending  sync.WaitGroup
}

// NewService creates a search service. primary may be nil when Meilisearch
// is not configured.
func NewService(primary Index, fallback Searcher, loader Loader, log *logrus.Entry) *Service {
	return &Service{primary: primary, fallback: fallback, loader: loader, log: log.WithField("component", "search")}
}

// Search tries the index if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.usable() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.WithError(err).Warn("meilisearch error, falling back to pgfts")
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.WithError(err).Error("pgfts search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) usable() bool {
	return s.primary != nil && s.primary.Healthy()
}

// async runs write in the background when the index is usable.
func (s *Service) async(what, id string, write func() error) {
	if !s.usable() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := write(); err != nil {
			s.log.WithError(err).WithField("id", id).Warn(what + " failed")
		}
	}()
}

func (s *Service) IndexCrag(c CragRecord) {
	s.async("index crag", c.ID, func() error { return s.primary.IndexCrags([]CragRecord{c}) })
}

func (s *Service) IndexRoute(r RouteRecord) {
	s.async("index route", r.ID, func() error { return s.primary.IndexRoutes([]RouteRecord{r}) })
}

func (s *Service) RemoveCrag(id string) {
	s.async("delete crag", id, func() error { return s.primary.DeleteCrag(id) })
}

func (s *Service) RemoveRoute(id string) {
	s.async("delete route", id, func() error { return s.primary.DeleteRoute(id) })
}

// Wait blocks until background index writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ReindexAll loads every published crag and route and pushes them to the
// index. It returns the number of records sent.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if !s.usable() {
		return 0, errUnhealthy
	}
	if s.loader == nil {
		return 0, fmt.Errorf("reindex: no record loader")
	}
	crags, routes, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex load: %w", err)
	}
	if err := s.primary.IndexCrags(crags); err != nil {
		return 0, fmt.Errorf("reindex crags: %w", err)
	}
	if err := s.primary.IndexRoutes(routes); err != nil {
		return len(crags), fmt.Errorf("reindex routes: %w", err)
	}
	s.log.WithFields(logrus.Fields{"crags": len(crags), "routes": len(routes)}).Info("search index rebuilt")
	return len(crags) + len(routes), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
