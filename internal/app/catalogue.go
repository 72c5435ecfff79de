package app

import (
	"context"
	"errors"
	"strings"

	"cragdb/api/internal/query"
	"cragdb/api/internal/rbac"
	"cragdb/api/internal/slug"
	"cragdb/api/internal/store"
	"cragdb/api/internal/util"
)

type CountryInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Code string `json:"code" validate:"required,len=2,alpha"`
}

func (s *Service) FindCountries(ctx context.Context, f query.CountryFilter) ([]store.Country, error) {
	if _, err := query.Countries(f); err != nil {
		return nil, invalid(err.Error(), nil)
	}
	return s.store.FindCountries(ctx, f)
}

func (s *Service) CountryBySlug(ctx context.Context, slug string) (store.Country, error) {
	country, err := s.store.GetCountryBySlug(ctx, slug)
	return country, missing(err, "country")
}

func (s *Service) CountryByID(ctx context.Context, id string) (store.Country, error) {
	country, err := s.store.GetCountry(ctx, id)
	return country, missing(err, "country")
}

func (s *Service) countrySlugs(excludeID string) slug.Generator {
	return slug.Generator{Exists: func(ctx context.Context, candidate string) (bool, error) {
		existing, err := s.store.GetCountryBySlug(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return existing.ID != excludeID, nil
	}}
}

func (s *Service) CreateCountry(ctx context.Context, session Session, input CountryInput) (country store.Country, err error) {
	defer func() { s.observe(ctx, "country", "create", err) }()

	if err := s.require(session, rbac.ActionAdmin); err != nil {
		return store.Country{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return store.Country{}, err
	}
	country = store.Country{ID: util.NewID(), Name: input.Name, Code: strings.ToUpper(input.Code)}
	if country.Slug, err = s.countrySlugs("").Generate(ctx, country.Name); err != nil {
		return store.Country{}, err
	}
	if err := s.store.InsertCountry(ctx, country); err != nil {
		return store.Country{}, err
	}
	return country, nil
}

func (s *Service) UpdateCountry(ctx context.Context, session Session, id string, input CountryInput) (country store.Country, err error) {
	defer func() { s.observe(ctx, "country", "update", err) }()

	if err := s.require(session, rbac.ActionAdmin); err != nil {
		return store.Country{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return store.Country{}, err
	}
	country, err = s.store.GetCountry(ctx, id)
	if err != nil {
		return store.Country{}, missing(err, "country")
	}
	country.Name = input.Name
	country.Code = strings.ToUpper(input.Code)
	if country.Slug, err = s.countrySlugs(country.ID).Generate(ctx, country.Name); err != nil {
		return store.Country{}, err
	}
	if err := s.store.UpdateCountry(ctx, country); err != nil {
		return store.Country{}, missing(err, "country")
	}
	return country, nil
}

func (s *Service) DeleteCountry(ctx context.Context, session Session, id string) (err error) {
	defer func() { s.observe(ctx, "country", "delete", err) }()

	if err := s.require(session, rbac.ActionAdmin); err != nil {
		return err
	}
	return missing(s.store.DeleteCountry(ctx, id), "country")
}

// PeakDetails is a peak with the number of its crags the caller can see.
type PeakDetails struct {
	store.Peak
	NrCrags int `json:"nrCrags"`
}

func (s *Service) PeakBySlug(ctx context.Context, session Session, slug string) (PeakDetails, error) {
	peak, err := s.store.GetPeakBySlug(ctx, slug)
	if err != nil {
		return PeakDetails{}, missing(err, "peak")
	}
	count, err := s.store.CountPeakCrags(ctx, peak.ID, session.viewer())
	if err != nil {
		return PeakDetails{}, err
	}
	return PeakDetails{Peak: peak, NrCrags: count}, nil
}

func (s *Service) PeakCrags(ctx context.Context, session Session, peakID string) ([]store.Crag, error) {
	return s.FindCrags(ctx, session, query.CragFilter{PeakID: &peakID})
}

func (s *Service) IceFalls(ctx context.Context, countryID string, areaSlug *string) ([]store.IceFall, error) {
	if _, err := s.CountryByID(ctx, countryID); err != nil {
		return nil, err
	}
	return s.store.IceFalls(ctx, countryID, areaSlug)
}

func (s *Service) CountIceFalls(ctx context.Context, countryID string) (int, error) {
	return s.store.CountIceFalls(ctx, countryID)
}

// Me returns the caller's user record.
func (s *Service) Me(ctx context.Context, session Session) (store.User, error) {
	if session.Anonymous() {
		return store.User{}, errUnauthorized
	}
	user, err := s.store.GetUser(ctx, session.UserID)
	return user, missing(err, "user")
}
