package app

import (
	"context"
	"fmt"
	"time"

	"cragdb/api/internal/publish"
	"cragdb/api/internal/query"
	"cragdb/api/internal/rbac"
	"cragdb/api/internal/search"
	"cragdb/api/internal/slug"
	"cragdb/api/internal/store"
	"cragdb/api/internal/util"
)

type CreateCragInput struct {
	Name          string   `json:"name" validate:"required,max=200"`
	Type          string   `json:"type" validate:"omitempty,oneof=sport boulder alpine"`
	Lat           *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon           *float64 `json:"lon" validate:"omitempty,longitude"`
	CountryID     string   `json:"countryId" validate:"required"`
	AreaID        *string  `json:"areaId"`
	PeakID        *string  `json:"peakId"`
	IsHidden      bool     `json:"isHidden"`
	PublishStatus string   `json:"publishStatus" validate:"omitempty,oneof=archived draft proposal published"`
}

// UpdateCragInput carries optional fields; nil leaves the field unchanged.
type UpdateCragInput struct {
	Name                 *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Type                 *string  `json:"type" validate:"omitempty,oneof=sport boulder alpine"`
	Lat                  *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon                  *float64 `json:"lon" validate:"omitempty,longitude"`
	CountryID            *string  `json:"countryId"`
	AreaID               *string  `json:"areaId"`
	PeakID               *string  `json:"peakId"`
	IsHidden             *bool    `json:"isHidden"`
	PublishStatus        *string  `json:"publishStatus" validate:"omitempty,oneof=archived draft proposal published"`
	CascadePublishStatus bool     `json:"cascadePublishStatus"`
}

// statusFor parses the requested status and checks that session may set it.
// Anything beyond a proposal needs publish rights.
func statusFor(session Session, requested string, fallback publish.Status) (publish.Status, error) {
	if requested == "" {
		return fallback, nil
	}
	status, err := publish.Parse(requested)
	if err != nil {
		return "", invalid(err.Error(), nil)
	}
	if (status == publish.Published || status == publish.Archived) && !session.can(rbac.ActionPublish) {
		return "", forbidden("Only editors may set status " + string(status))
	}
	return status, nil
}

// canEdit reports whether session may change an entity owned by owner.
func canEdit(session Session, owner *string) bool {
	return session.can(rbac.ActionPublish) || ownsOrAdmin(session, owner)
}

func (s *Service) cragSlugs(tx Repository, excludeID string) slug.Generator {
	return slug.Generator{Exists: func(ctx context.Context, candidate string) (bool, error) {
		return tx.CragSlugExists(ctx, candidate, excludeID)
	}}
}

func (s *Service) CreateCrag(ctx context.Context, session Session, input CreateCragInput) (crag store.Crag, err error) {
	defer func() { s.observe(ctx, "crag", "create", err) }()

	if err := s.require(session, rbac.ActionContribute); err != nil {
		return store.Crag{}, err
	}
	input.Name = *trimmed(&input.Name)
	if err := s.check(input); err != nil {
		return store.Crag{}, err
	}
	status, err := statusFor(session, input.PublishStatus, publish.Draft)
	if err != nil {
		return store.Crag{}, err
	}
	if _, err := s.store.GetCountry(ctx, input.CountryID); err != nil {
		return store.Crag{}, missing(err, "country")
	}

	crag = store.Crag{
		ID:        util.NewID(),
		Name:      input.Name,
		Type:      input.Type,
		Lat:       input.Lat,
		Lon:       input.Lon,
		CountryID: input.CountryID,
		AreaID:    input.AreaID,
		PeakID:    input.PeakID,
		IsHidden:  input.IsHidden,
		Status:    status,
		UserID:    session.owner(),
	}
	if crag.Type == "" {
		crag.Type = "sport"
	}
	crag.Slug, err = s.cragSlugs(s.store, "").Generate(ctx, crag.Name)
	if err != nil {
		return store.Crag{}, err
	}

	err = s.store.InTx(ctx, func(tx Repository) error {
		if err := tx.InsertCrag(ctx, crag); err != nil {
			return err
		}
		return refreshFlag(ctx, tx, crag.UserID)
	})
	if err != nil {
		return store.Crag{}, err
	}
	s.indexCrag(crag)
	return crag, nil
}

func (s *Service) UpdateCrag(ctx context.Context, session Session, id string, input UpdateCragInput) (crag store.Crag, err error) {
	defer func() { s.observe(ctx, "crag", "update", err) }()

	if err := s.require(session, rbac.ActionContribute); err != nil {
		return store.Crag{}, err
	}
	input.Name = trimmed(input.Name)
	if err := s.check(input); err != nil {
		return store.Crag{}, err
	}
	crag, err = s.store.GetCrag(ctx, id)
	if err != nil {
		return store.Crag{}, missing(err, "crag")
	}
	if !canEdit(session, crag.UserID) {
		return store.Crag{}, forbidden("Not allowed to edit this crag")
	}
	before := crag

	if input.PublishStatus != nil {
		if crag.Status, err = statusFor(session, *input.PublishStatus, crag.Status); err != nil {
			return store.Crag{}, err
		}
	}
	if input.Type != nil {
		crag.Type = *input.Type
	}
	if input.Lat != nil {
		crag.Lat = input.Lat
	}
	if input.Lon != nil {
		crag.Lon = input.Lon
	}
	if input.CountryID != nil && *input.CountryID != crag.CountryID {
		if _, err := s.store.GetCountry(ctx, *input.CountryID); err != nil {
			return store.Crag{}, missing(err, "country")
		}
		crag.CountryID = *input.CountryID
	}
	if input.AreaID != nil {
		crag.AreaID = input.AreaID
	}
	if input.PeakID != nil {
		crag.PeakID = input.PeakID
	}
	if input.IsHidden != nil {
		crag.IsHidden = *input.IsHidden
	}
	if input.Name != nil {
		crag.Name = *input.Name
		if crag.Slug, err = s.cragSlugs(s.store, crag.ID).Generate(ctx, crag.Name); err != nil {
			return store.Crag{}, err
		}
	}

	var cascaded publish.Result
	err = s.store.InTx(ctx, func(tx Repository) error {
		if err := tx.UpdateCrag(ctx, crag); err != nil {
			return err
		}
		if input.CascadePublishStatus && before.Status != crag.Status {
			node := publish.Node{ID: crag.ID, UserID: crag.UserID, Status: crag.Status}
			var err error
			if cascaded, err = publish.CascadeFromCrag(ctx, tx, node, before.Status); err != nil {
				return err
			}
		}
		return refreshFlag(ctx, tx, crag.UserID)
	})
	if err != nil {
		return store.Crag{}, err
	}
	s.countCascade(ctx, cascaded.Sectors, cascaded.Routes)
	s.indexCrag(crag)
	// route entries carry the crag's name and depend on its visibility
	if cascaded.Routes > 0 || before.Status != crag.Status || before.IsHidden != crag.IsHidden ||
		before.Name != crag.Name || before.Slug != crag.Slug || before.CountryID != crag.CountryID {
		s.reindexCragRoutes(ctx, crag)
	}
	return crag, nil
}

func (s *Service) DeleteCrag(ctx context.Context, session Session, id string) (err error) {
	defer func() { s.observe(ctx, "crag", "delete", err) }()

	if err := s.require(session, rbac.ActionContribute); err != nil {
		return err
	}
	crag, err := s.store.GetCrag(ctx, id)
	if err != nil {
		return missing(err, "crag")
	}
	if !canEdit(session, crag.UserID) {
		return forbidden("Not allowed to delete this crag")
	}
	var routes []store.Route
	err = s.store.InTx(ctx, func(tx Repository) error {
		var err error
		if routes, err = tx.CragRoutes(ctx, crag.ID); err != nil {
			return err
		}
		if err := tx.DeleteCrag(ctx, crag.ID); err != nil {
			return err
		}
		return refreshFlag(ctx, tx, crag.UserID)
	})
	if err != nil {
		return err
	}
	s.search.RemoveCrag(crag.ID)
	for _, route := range routes {
		s.search.RemoveRoute(route.ID)
	}
	return nil
}

// indexCrag pushes a crag to search when it is public and drops it otherwise.
func (s *Service) indexCrag(c store.Crag) {
	if c.Status != publish.Published || c.IsHidden {
		s.search.RemoveCrag(c.ID)
		return
	}
	s.search.IndexCrag(search.CragRecord{ID: c.ID, Name: c.Name, Slug: c.Slug, Type: c.Type, CountryID: c.CountryID})
}

func (s *Service) FindCrags(ctx context.Context, session Session, f query.CragFilter) ([]store.Crag, error) {
	crags, err := s.store.FindCrags(ctx, f, session.viewer())
	if err != nil {
		return nil, fmt.Errorf("find crags: %w", err)
	}
	return crags, nil
}

func (s *Service) findOneCrag(ctx context.Context, session Session, f query.CragFilter) (store.Crag, error) {
	crags, err := s.FindCrags(ctx, session, f)
	if err != nil {
		return store.Crag{}, err
	}
	if len(crags) == 0 {
		return store.Crag{}, notFound("crag")
	}
	return crags[0], nil
}

func (s *Service) CragByID(ctx context.Context, session Session, id string) (store.Crag, error) {
	return s.findOneCrag(ctx, session, query.CragFilter{ID: &id})
}

func (s *Service) CragBySlug(ctx context.Context, session Session, slug string) (store.Crag, error) {
	return s.findOneCrag(ctx, session, query.CragFilter{Slug: &slug})
}

func (s *Service) CountCragRoutes(ctx context.Context, session Session, cragID string) (int, error) {
	return s.store.CountRoutes(ctx, cragID, session.viewer())
}

// PopularCrags ranks crags by visits. Only editors may include hidden crags.
func (s *Service) PopularCrags(ctx context.Context, session Session, since *time.Time, top int, includeHidden bool) ([]store.PopularCrag, error) {
	if includeHidden && !session.can(rbac.ActionPublish) {
		includeHidden = false
	}
	return s.store.PopularCrags(ctx, since, top, includeHidden)
}

func (s *Service) ActivityByMonth(ctx context.Context, session Session, cragID string) ([]int, error) {
	if _, err := s.CragByID(ctx, session, cragID); err != nil {
		return nil, err
	}
	return s.store.ActivityByMonth(ctx, cragID)
}
