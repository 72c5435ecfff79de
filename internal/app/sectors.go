package app

import (
	"context"
	"fmt"

	"cragdb/api/internal/position"
	"cragdb/api/internal/publish"
	"cragdb/api/internal/query"
	"cragdb/api/internal/rbac"
	"cragdb/api/internal/slug"
	"cragdb/api/internal/store"
	"cragdb/api/internal/util"
)

type CreateSectorInput struct {
	CragID        string `json:"cragId" validate:"required"`
	Name          string `json:"name" validate:"required,max=200"`
	Label         string `json:"label" validate:"max=20"`
	Position      *int   `json:"position" validate:"omitempty,min=1"`
	PublishStatus string `json:"publishStatus" validate:"omitempty,oneof=archived draft proposal published"`
}

type UpdateSectorInput struct {
	Name                 *string `json:"name" validate:"omitempty,min=1,max=200"`
	Label                *string `json:"label" validate:"omitempty,max=20"`
	Position             *int    `json:"position" validate:"omitempty,min=1"`
	PublishStatus        *string `json:"publishStatus" validate:"omitempty,oneof=archived draft proposal published"`
	CascadePublishStatus bool    `json:"cascadePublishStatus"`
}

// placeSector makes room for a sector at its position among the crag's
// sectors.
func (s *Service) placeSector(ctx context.Context, tx Repository, sector store.Sector) error {
	moved, err := position.NewSequencer(sectorPositions{tx: tx}).Place(ctx, sector.CragID, sector.ID, sector.Position)
	if err != nil {
		return err
	}
	s.countShifts(ctx, "sector", moved)
	return nil
}

func (s *Service) CreateSector(ctx context.Context, session Session, input CreateSectorInput) (sector store.Sector, err error) {
	defer func() { s.observe(ctx, "sector", "create", err) }()

	if err := s.require(session, rbac.ActionContribute); err != nil {
		return store.Sector{}, err
	}
	input.Name = *trimmed(&input.Name)
	if err := s.check(input); err != nil {
		return store.Sector{}, err
	}
	status, err := statusFor(session, input.PublishStatus, publish.Draft)
	if err != nil {
		return store.Sector{}, err
	}
	crag, err := s.store.GetCrag(ctx, input.CragID)
	if err != nil {
		return store.Sector{}, missing(err, "crag")
	}
	if !canEdit(session, crag.UserID) && crag.Status != publish.Published {
		return store.Sector{}, forbidden("Not allowed to add sectors to this crag")
	}

	sector = store.Sector{
		ID:     util.NewID(),
		CragID: crag.ID,
		Name:   input.Name,
		Label:  input.Label,
		Status: status,
		UserID: session.owner(),
	}
	err = s.store.InTx(ctx, func(tx Repository) error {
		if input.Position == nil {
			next, err := tx.NextSectorPosition(ctx, crag.ID)
			if err != nil {
				return err
			}
			sector.Position = next
		} else {
			sector.Position = *input.Position
		}
		if err := tx.InsertSector(ctx, sector); err != nil {
			return err
		}
		if err := s.placeSector(ctx, tx, sector); err != nil {
			return err
		}
		return refreshFlag(ctx, tx, sector.UserID)
	})
	if err != nil {
		return store.Sector{}, err
	}
	return sector, nil
}

func (s *Service) UpdateSector(ctx context.Context, session Session, id string, input UpdateSectorInput) (sector store.Sector, err error) {
	defer func() { s.observe(ctx, "sector", "update", err) }()

	if err := s.require(session, rbac.ActionContribute); err != nil {
		return store.Sector{}, err
	}
	input.Name = trimmed(input.Name)
	if err := s.check(input); err != nil {
		return store.Sector{}, err
	}
	sector, err = s.store.GetSector(ctx, id)
	if err != nil {
		return store.Sector{}, missing(err, "sector")
	}
	if !canEdit(session, sector.UserID) {
		return store.Sector{}, forbidden("Not allowed to edit this sector")
	}
	previous := sector.Status

	if input.PublishStatus != nil {
		if sector.Status, err = statusFor(session, *input.PublishStatus, sector.Status); err != nil {
			return store.Sector{}, err
		}
	}
	if input.Name != nil {
		sector.Name = *input.Name
	}
	if input.Label != nil {
		sector.Label = *input.Label
	}
	if input.Position != nil {
		sector.Position = *input.Position
	}

	var cascaded publish.Result
	err = s.store.InTx(ctx, func(tx Repository) error {
		if err := tx.UpdateSector(ctx, sector); err != nil {
			return err
		}
		if input.Position != nil {
			if err := s.placeSector(ctx, tx, sector); err != nil {
				return err
			}
		}
		if input.CascadePublishStatus && previous != sector.Status {
			node := publish.Node{ID: sector.ID, UserID: sector.UserID, Status: sector.Status}
			var err error
			if cascaded, err = publish.CascadeFromSector(ctx, tx, node, previous); err != nil {
				return err
			}
		}
		return refreshFlag(ctx, tx, sector.UserID)
	})
	if err != nil {
		return store.Sector{}, err
	}
	s.countCascade(ctx, cascaded.Sectors, cascaded.Routes)
	if cascaded.Routes > 0 {
		s.reindexSectorRoutes(ctx, sector)
	}
	return sector, nil
}

func (s *Service) DeleteSector(ctx context.Context, session Session, id string) (err error) {
	defer func() { s.observe(ctx, "sector", "delete", err) }()

	if err := s.require(session, rbac.ActionContribute); err != nil {
		return err
	}
	sector, err := s.store.GetSector(ctx, id)
	if err != nil {
		return missing(err, "sector")
	}
	if !canEdit(session, sector.UserID) {
		return forbidden("Not allowed to delete this sector")
	}
	var routes []store.Route
	err = s.store.InTx(ctx, func(tx Repository) error {
		var err error
		if routes, err = tx.SectorRoutes(ctx, sector.ID); err != nil {
			return err
		}
		if err := tx.DeleteSector(ctx, sector.ID); err != nil {
			return err
		}
		return refreshFlag(ctx, tx, sector.UserID)
	})
	if err != nil {
		return err
	}
	for _, route := range routes {
		s.search.RemoveRoute(route.ID)
	}
	return nil
}

func (s *Service) FindSectors(ctx context.Context, session Session, f query.SectorFilter) ([]store.Sector, error) {
	sectors, err := s.store.FindSectors(ctx, f, session.viewer())
	if err != nil {
		return nil, fmt.Errorf("find sectors: %w", err)
	}
	return sectors, nil
}

func (s *Service) SectorBouldersOnly(ctx context.Context, session Session, sectorID string) (bool, error) {
	sectors, err := s.FindSectors(ctx, session, query.SectorFilter{ID: &sectorID})
	if err != nil {
		return false, err
	}
	if len(sectors) == 0 {
		return false, notFound("sector")
	}
	return s.store.SectorBouldersOnly(ctx, sectorID)
}

// MoveSectorToCrag moves a sector with its routes to another crag. Route
// slugs that clash in the target crag get a fresh suffix, and ascent logs of
// the moved routes follow them into activities on the target crag.
func (s *Service) MoveSectorToCrag(ctx context.Context, session Session, sectorID, cragID string) (sector store.Sector, err error) {
	defer func() { s.observe(ctx, "sector", "move", err) }()

	if err := s.require(session, rbac.ActionPublish); err != nil {
		return store.Sector{}, err
	}
	sector, err = s.store.GetSector(ctx, sectorID)
	if err != nil {
		return store.Sector{}, missing(err, "sector")
	}
	target, err := s.store.GetCrag(ctx, cragID)
	if err != nil {
		return store.Sector{}, missing(err, "crag")
	}
	if sector.CragID == target.ID {
		return sector, nil
	}

	var movedRoutes []store.Route
	err = s.store.InTx(ctx, func(tx Repository) error {
		next, err := tx.NextSectorPosition(ctx, target.ID)
		if err != nil {
			return err
		}
		sector.CragID = target.ID
		sector.Position = next
		if err := tx.UpdateSector(ctx, sector); err != nil {
			return err
		}

		if movedRoutes, err = s.renameClashingRoutes(ctx, tx, sector.ID, target.ID); err != nil {
			return err
		}
		if err := tx.MoveSectorRoutes(ctx, sector.ID, target.ID); err != nil {
			return err
		}
		return s.moveAscents(ctx, tx, sector.ID, target.ID)
	})
	if err != nil {
		return store.Sector{}, err
	}
	for _, route := range movedRoutes {
		route.CragID = target.ID
		s.indexRoute(route, target)
	}
	return sector, nil
}

// renameClashingRoutes gives every route of the sector a slug that is free
// in the target crag. Slugs must be fixed before the routes change crag
// because slugs are unique per crag.
func (s *Service) renameClashingRoutes(ctx context.Context, tx Repository, sectorID, cragID string) ([]store.Route, error) {
	routes, err := tx.SectorRoutes(ctx, sectorID)
	if err != nil {
		return nil, err
	}
	claimed := make(map[string]string, len(routes))
	for _, route := range routes {
		claimed[route.Slug] = route.ID
	}
	for i, route := range routes {
		taken, err := tx.RouteSlugExists(ctx, cragID, route.Slug, "")
		if err != nil {
			return nil, err
		}
		if !taken {
			continue
		}
		delete(claimed, route.Slug)
		gen := slug.Generator{Exists: func(ctx context.Context, candidate string) (bool, error) {
			if _, ok := claimed[candidate]; ok {
				return true, nil
			}
			return tx.RouteSlugExists(ctx, cragID, candidate, "")
		}}
		fresh, err := gen.Generate(ctx, route.Name)
		if err != nil {
			return nil, err
		}
		if err := tx.SetRouteSlug(ctx, route.ID, fresh); err != nil {
			return nil, err
		}
		claimed[fresh] = route.ID
		routes[i].Slug = fresh
	}
	return routes, nil
}

// moveAscents re-homes the ascent logs of a moved sector. Each activity that
// logged a route of the sector gets a twin on the target crag, the sector's
// ascents move to it, and the old activity is dropped once empty.
func (s *Service) moveAscents(ctx context.Context, tx Repository, sectorID, cragID string) error {
	ascents, err := tx.SectorAscents(ctx, sectorID)
	if err != nil {
		return err
	}
	twins := map[string]string{}
	for _, ascent := range ascents {
		if ascent.ActivityID == nil {
			continue
		}
		oldID := *ascent.ActivityID
		newID, ok := twins[oldID]
		if !ok {
			old, err := tx.GetActivity(ctx, oldID)
			if err != nil {
				return err
			}
			twin := old
			twin.ID = util.NewID()
			twin.CragID = &cragID
			if err := tx.InsertActivity(ctx, twin); err != nil {
				return err
			}
			newID = twin.ID
			twins[oldID] = newID
		}
		if err := tx.SetAscentActivity(ctx, ascent.ID, newID); err != nil {
			return err
		}
	}
	for oldID := range twins {
		left, err := tx.CountActivityAscents(ctx, oldID)
		if err != nil {
			return err
		}
		if left == 0 {
			if err := tx.DeleteActivity(ctx, oldID); err != nil {
				return err
			}
		}
	}
	return nil
}
