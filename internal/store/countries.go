package store

import (
	"context"

	"cragdb/api/internal/query"
)

func (r *Repo) FindCountries(ctx context.Context, f query.CountryFilter) ([]Country, error) {
	q, err := query.Countries(f)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, wrap(err, "find countries")
	}
	defer rows.Close()

	countries := make([]Country, 0)
	for rows.Next() {
		var c Country
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.Slug, &c.NrCrags); err != nil {
			return nil, wrap(err, "scan country")
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "iterate countries")
	}
	if f.OrderBy == nil {
		query.SortByName(countries, func(c Country) string { return c.Name }, r.locale)
	}
	return countries, nil
}

func (r *Repo) getCountry(ctx context.Context, column, value string) (Country, error) {
	var c Country
	err := r.q.QueryRowContext(ctx, `
		SELECT co.id, co.name, co.code, co.slug,
			(SELECT COUNT(*) FROM crag c WHERE c.country_id = co.id AND c.publish_status = 'published')
		FROM country co WHERE co.`+column+` = $1
	`, value).Scan(&c.ID, &c.Name, &c.Code, &c.Slug, &c.NrCrags)
	if err != nil {
		return Country{}, wrap(err, "get country "+value)
	}
	return c, nil
}

func (r *Repo) GetCountry(ctx context.Context, id string) (Country, error) {
	return r.getCountry(ctx, "id", id)
}

func (r *Repo) GetCountryBySlug(ctx context.Context, slug string) (Country, error) {
	return r.getCountry(ctx, "slug", slug)
}

func (r *Repo) InsertCountry(ctx context.Context, c Country) error {
	if _, err := r.q.ExecContext(ctx, `INSERT INTO country (id, name, code, slug) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Code, c.Slug); err != nil {
		return wrap(err, "insert country")
	}
	r.wrote(ctx, "country")
	return nil
}

func (r *Repo) UpdateCountry(ctx context.Context, c Country) error {
	result, err := r.q.ExecContext(ctx, `UPDATE country SET name = $2, code = $3, slug = $4 WHERE id = $1`,
		c.ID, c.Name, c.Code, c.Slug)
	if err != nil {
		return wrap(err, "update country")
	}
	if err := expectOne(result, "update country "+c.ID); err != nil {
		return err
	}
	r.wrote(ctx, "country")
	return nil
}

func (r *Repo) DeleteCountry(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM country WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete country")
	}
	if err := expectOne(result, "delete country "+id); err != nil {
		return err
	}
	r.wrote(ctx, "country", "area", "peak", "ice_fall")
	return nil
}

func (r *Repo) GetPeakBySlug(ctx context.Context, slug string) (Peak, error) {
	var p Peak
	err := r.q.QueryRowContext(ctx, `SELECT id, name, slug, height, country_id, area_id FROM peak WHERE slug = $1`, slug).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Height, &p.CountryID, &p.AreaID)
	if err != nil {
		return Peak{}, wrap(err, "get peak "+slug)
	}
	return p, nil
}

// CountPeakCrags counts the crags under a peak that viewer may see.
func (r *Repo) CountPeakCrags(ctx context.Context, peakID string, viewer query.Viewer) (int, error) {
	b := query.Select("COUNT(*)").From("crag", "c")
	query.Apply(b, "c", query.ByPeak(peakID), query.Visible{Viewer: viewer})
	if viewer.Anonymous() {
		query.Apply(b, "c", query.NotHidden{})
	}
	q := b.Build()

	var count int
	if err := r.q.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&count); err != nil {
		return 0, wrap(err, "count peak crags")
	}
	return count, nil
}

// IceFalls lists the ice falls of a country, optionally within one area.
func (r *Repo) IceFalls(ctx context.Context, countryID string, areaSlug *string) ([]IceFall, error) {
	b := query.Select("i.id", "i.name", "i.slug", "i.country_id", "i.area_id").From("ice_fall", "i")
	query.Apply(b, "i", query.ByCountry(countryID))
	if areaSlug != nil {
		query.Apply(b, "i", query.ByAreaSlug(*areaSlug))
	}
	q := b.Build()

	rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, wrap(err, "ice falls")
	}
	defer rows.Close()

	falls := make([]IceFall, 0)
	for rows.Next() {
		var f IceFall
		if err := rows.Scan(&f.ID, &f.Name, &f.Slug, &f.CountryID, &f.AreaID); err != nil {
			return nil, wrap(err, "scan ice fall")
		}
		falls = append(falls, f)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "iterate ice falls")
	}
	query.SortByName(falls, func(f IceFall) string { return f.Name }, r.locale)
	return falls, nil
}

func (r *Repo) CountIceFalls(ctx context.Context, countryID string) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM ice_fall WHERE country_id = $1`, countryID).Scan(&count); err != nil {
		return 0, wrap(err, "count ice falls")
	}
	return count, nil
}

func (r *Repo) GetIceFall(ctx context.Context, id string) (IceFall, error) {
	var f IceFall
	err := r.q.QueryRowContext(ctx, `SELECT id, name, slug, country_id, area_id FROM ice_fall WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.Slug, &f.CountryID, &f.AreaID)
	if err != nil {
		return IceFall{}, wrap(err, "get ice fall "+id)
	}
	return f, nil
}
