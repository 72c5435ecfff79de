package app

import (
	"context"
	"fmt"

	"cragdb/api/internal/position"
	"cragdb/api/internal/publish"
	"cragdb/api/internal/query"
	"cragdb/api/internal/rbac"
	"cragdb/api/internal/search"
	"cragdb/api/internal/slug"
	"cragdb/api/internal/store"
	"cragdb/api/internal/util"
)

type PitchInput struct {
	Number     int      `json:"number" validate:"required,min=1"`
	Difficulty *float64 `json:"difficulty" validate:"omitempty,min=0"`
	Height     *int     `json:"height" validate:"omitempty,min=1"`
}

type CreateRouteInput struct {
	SectorID       string       `json:"sectorId" validate:"required"`
	RouteTypeID    string       `json:"routeTypeId" validate:"required,oneof=sport boulder multipitch alpine"`
	Name           string       `json:"name" validate:"required,max=200"`
	Difficulty     *float64     `json:"difficulty" validate:"omitempty,min=0"`
	BaseDifficulty *float64     `json:"baseDifficulty" validate:"omitempty,min=0"`
	Length         *int         `json:"length" validate:"omitempty,min=1"`
	Author         string       `json:"author" validate:"max=200"`
	IsProject      bool         `json:"isProject"`
	Position       *int         `json:"position" validate:"omitempty,min=1"`
	PublishStatus  string       `json:"publishStatus" validate:"omitempty,oneof=archived draft proposal published"`
	Pitches        []PitchInput `json:"pitches" validate:"dive"`
}

type UpdateRouteInput struct {
	RouteTypeID   *string  `json:"routeTypeId" validate:"omitempty,oneof=sport boulder multipitch alpine"`
	Name          *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Difficulty    *float64 `json:"difficulty" validate:"omitempty,min=0"`
	Length        *int     `json:"length" validate:"omitempty,min=1"`
	Author        *string  `json:"author" validate:"omitempty,max=200"`
	IsProject     *bool    `json:"isProject"`
	Position      *int     `json:"position" validate:"omitempty,min=1"`
	PublishStatus *string  `json:"publishStatus" validate:"omitempty,oneof=archived draft proposal published"`
}

// RouteDetails is a route with its pitches, votes and log counts.
type RouteDetails struct {
	store.Route
	Pitches         []store.Pitch          `json:"pitches"`
	DifficultyVotes []store.DifficultyVote `json:"difficultyVotes"`
	Stats           store.RouteStats       `json:"stats"`
}

func (s *Service) routeSlugs(tx Repository, cragID, excludeID string) slug.Generator {
	return slug.Generator{Exists: func(ctx context.Context, candidate string) (bool, error) {
		return tx.RouteSlugExists(ctx, cragID, candidate, excludeID)
	}}
}

func (s *Service) placeRoute(ctx context.Context, tx Repository, route store.Route) error {
	moved, err := position.NewSequencer(routePositions{tx: tx}).Place(ctx, route.SectorID, route.ID, route.Position)
	if err != nil {
		return err
	}
	s.countShifts(ctx, "route", moved)
	return nil
}

func (s *Service) CreateRoute(ctx context.Context, session Session, input CreateRouteInput) (route store.Route, err error) {
	defer func() { s.observe(ctx, "route", "create", err) }()

	if err := s.require(session, rbac.ActionContribute); err != nil {
		return store.Route{}, err
	}
	input.Name = *trimmed(&input.Name)
	if err := s.check(input); err != nil {
		return store.Route{}, err
	}
	status, err := statusFor(session, input.PublishStatus, publish.Draft)
	if err != nil {
		return store.Route{}, err
	}
	sector, err := s.store.GetSector(ctx, input.SectorID)
	if err != nil {
		return store.Route{}, missing(err, "sector")
	}
	if !canEdit(session, sector.UserID) && sector.Status != publish.Published {
		return store.Route{}, forbidden("Not allowed to add routes to this sector")
	}

	route = store.Route{
		ID:          util.NewID(),
		CragID:      sector.CragID,
		SectorID:    sector.ID,
		RouteTypeID: input.RouteTypeID,
		Name:        input.Name,
		Difficulty:  input.Difficulty,
		Length:      input.Length,
		Author:      input.Author,
		IsProject:   input.IsProject,
		Status:      status,
		UserID:      session.owner(),
	}
	if route.Slug, err = s.routeSlugs(s.store, route.CragID, "").Generate(ctx, route.Name); err != nil {
		return store.Route{}, err
	}

	err = s.store.InTx(ctx, func(tx Repository) error {
		if input.Position == nil {
			next, err := tx.NextRoutePosition(ctx, sector.ID)
			if err != nil {
				return err
			}
			route.Position = next
		} else {
			route.Position = *input.Position
		}
		if err := tx.InsertRoute(ctx, route); err != nil {
			return err
		}
		if err := s.placeRoute(ctx, tx, route); err != nil {
			return err
		}
		for _, p := range input.Pitches {
			pitch := store.Pitch{ID: util.NewID(), RouteID: route.ID, Number: p.Number, Difficulty: p.Difficulty, Height: p.Height}
			if err := tx.InsertPitch(ctx, pitch); err != nil {
				return err
			}
		}
		if input.BaseDifficulty != nil && !route.IsProject {
			vote := store.DifficultyVote{ID: util.NewID(), RouteID: route.ID, Difficulty: *input.BaseDifficulty, IsBase: true}
			if err := tx.InsertDifficultyVote(ctx, vote); err != nil {
				return err
			}
		}
		return refreshFlag(ctx, tx, route.UserID)
	})
	if err != nil {
		return store.Route{}, err
	}
	s.reindexRoute(ctx, route)
	return route, nil
}

func (s *Service) UpdateRoute(ctx context.Context, session Session, id string, input UpdateRouteInput) (route store.Route, err error) {
	defer func() { s.observe(ctx, "route", "update", err) }()

	if err := s.require(session, rbac.ActionContribute); err != nil {
		return store.Route{}, err
	}
	input.Name = trimmed(input.Name)
	if err := s.check(input); err != nil {
		return store.Route{}, err
	}
	route, err = s.store.GetRoute(ctx, id)
	if err != nil {
		return store.Route{}, missing(err, "route")
	}
	if !canEdit(session, route.UserID) {
		return store.Route{}, forbidden("Not allowed to edit this route")
	}

	if input.PublishStatus != nil {
		if route.Status, err = statusFor(session, *input.PublishStatus, route.Status); err != nil {
			return store.Route{}, err
		}
	}
	if input.RouteTypeID != nil {
		route.RouteTypeID = *input.RouteTypeID
	}
	if input.Difficulty != nil {
		route.Difficulty = input.Difficulty
	}
	if input.Length != nil {
		route.Length = input.Length
	}
	if input.Author != nil {
		route.Author = *input.Author
	}
	if input.IsProject != nil {
		route.IsProject = *input.IsProject
	}
	if input.Position != nil {
		route.Position = *input.Position
	}
	if input.Name != nil && *input.Name != route.Name {
		route.Name = *input.Name
		if route.Slug, err = s.routeSlugs(s.store, route.CragID, route.ID).Generate(ctx, route.Name); err != nil {
			return store.Route{}, err
		}
	}

	err = s.store.InTx(ctx, func(tx Repository) error {
		if err := tx.UpdateRoute(ctx, route); err != nil {
			return err
		}
		if input.Position != nil {
			if err := s.placeRoute(ctx, tx, route); err != nil {
				return err
			}
		}
		return refreshFlag(ctx, tx, route.UserID)
	})
	if err != nil {
		return store.Route{}, err
	}
	s.reindexRoute(ctx, route)
	return route, nil
}

func (s *Service) DeleteRoute(ctx context.Context, session Session, id string) (err error) {
	defer func() { s.observe(ctx, "route", "delete", err) }()

	if err := s.require(session, rbac.ActionContribute); err != nil {
		return err
	}
	route, err := s.store.GetRoute(ctx, id)
	if err != nil {
		return missing(err, "route")
	}
	if !canEdit(session, route.UserID) {
		return forbidden("Not allowed to delete this route")
	}
	err = s.store.InTx(ctx, func(tx Repository) error {
		if err := tx.DeleteRoute(ctx, route.ID); err != nil {
			return err
		}
		return refreshFlag(ctx, tx, route.UserID)
	})
	if err != nil {
		return err
	}
	s.search.RemoveRoute(route.ID)
	return nil
}

func (s *Service) reindexRoute(ctx context.Context, route store.Route) {
	crag, err := s.store.GetCrag(ctx, route.CragID)
	if err != nil {
		s.log.WithError(err).WithField("route", route.ID).Warn("skip route indexing")
		return
	}
	s.indexRoute(route, crag)
}

func (s *Service) reindexCragRoutes(ctx context.Context, crag store.Crag) {
	routes, err := s.store.CragRoutes(ctx, crag.ID)
	if err != nil {
		s.log.WithError(err).WithField("crag", crag.ID).Warn("skip route indexing")
		return
	}
	for _, route := range routes {
		s.indexRoute(route, crag)
	}
}

func (s *Service) reindexSectorRoutes(ctx context.Context, sector store.Sector) {
	log := s.log.WithField("sector", sector.ID)
	crag, err := s.store.GetCrag(ctx, sector.CragID)
	if err != nil {
		log.WithError(err).Warn("skip route indexing")
		return
	}
	routes, err := s.store.SectorRoutes(ctx, sector.ID)
	if err != nil {
		log.WithError(err).Warn("skip route indexing")
		return
	}
	for _, route := range routes {
		s.indexRoute(route, crag)
	}
}

// indexRoute pushes a route to search when both it and its crag are public.
func (s *Service) indexRoute(route store.Route, crag store.Crag) {
	if route.Status != publish.Published || crag.Status != publish.Published || crag.IsHidden {
		s.search.RemoveRoute(route.ID)
		return
	}
	s.search.IndexRoute(search.RouteRecord{
		ID:        route.ID,
		Name:      route.Name,
		Slug:      route.Slug,
		CragID:    crag.ID,
		CragName:  crag.Name,
		CragSlug:  crag.Slug,
		CountryID: crag.CountryID,
	})
}

func (s *Service) FindRoutes(ctx context.Context, session Session, f query.RouteFilter) ([]store.Route, error) {
	routes, err := s.store.FindRoutes(ctx, f, session.viewer())
	if err != nil {
		return nil, fmt.Errorf("find routes: %w", err)
	}
	return routes, nil
}

// RouteBySlugs returns the route with its details when both the route and
// its crag are visible to the caller.
func (s *Service) RouteBySlugs(ctx context.Context, session Session, cragSlug, routeSlug string) (RouteDetails, error) {
	route, err := s.store.RouteBySlugs(ctx, cragSlug, routeSlug, session.viewer())
	if err != nil {
		return RouteDetails{}, missing(err, "route")
	}
	return s.routeDetails(ctx, route)
}

func (s *Service) routeDetails(ctx context.Context, route store.Route) (RouteDetails, error) {
	pitches, err := s.store.Pitches(ctx, route.ID)
	if err != nil {
		return RouteDetails{}, err
	}
	votes, err := s.store.DifficultyVotes(ctx, route.ID)
	if err != nil {
		return RouteDetails{}, err
	}
	stats, err := s.store.RouteStats(ctx, []string{route.ID})
	if err != nil {
		return RouteDetails{}, err
	}
	details := RouteDetails{Route: route, Pitches: pitches, DifficultyVotes: votes, Stats: stats[route.ID]}
	details.Stats.RouteID = route.ID
	return details, nil
}

func (s *Service) RouteStats(ctx context.Context, routeIDs []string) (map[string]store.RouteStats, error) {
	return s.store.RouteStats(ctx, routeIDs)
}
