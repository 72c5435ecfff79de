package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cragdb/api/internal/query"
)

type rowScanner interface {
	Scan(dest ...any) error
}

var cragColumns = strings.Join(query.Columns("c", query.CragFields), ", ")

// in query.CragFields order
func cragDest(c *Crag) []any {
	return []any{&c.ID, &c.Name, &c.Slug, &c.Type, &c.Lat, &c.Lon, &c.CountryID, &c.AreaID, &c.PeakID,
		&c.IsHidden, &c.Status, &c.UserID, &c.CreatedAt, &c.UpdatedAt}
}

// FindCrags returns the crags matching f that viewer may see, each with the
// number of its routes visible to viewer, ordered by name.
func (r *Repo) FindCrags(ctx context.Context, f query.CragFilter, viewer query.Viewer) ([]Crag, error) {
	q := query.Crags(f, viewer)
	var crags []Crag
	err := r.cached(ctx, q, &crags, func() error {
		rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return wrap(err, "find crags")
		}
		defer rows.Close()

		crags = make([]Crag, 0)
		for rows.Next() {
			var c Crag
			var routeCount int
			if err := rows.Scan(append(cragDest(&c), &routeCount)...); err != nil {
				return wrap(err, "scan crag")
			}
			c.RouteCount = &routeCount
			crags = append(crags, c)
		}
		if err := rows.Err(); err != nil {
			return wrap(err, "iterate crags")
		}
		query.SortByName(crags, func(c Crag) string { return c.Name }, r.locale)
		return nil
	})
	return crags, err
}

// GetCrag loads a crag regardless of visibility.
func (r *Repo) GetCrag(ctx context.Context, id string) (Crag, error) {
	var c Crag
	err := r.q.QueryRowContext(ctx, `SELECT `+cragColumns+` FROM crag c WHERE c.id = $1`, id).Scan(cragDest(&c)...)
	if err != nil {
		return Crag{}, wrap(err, "get crag "+id)
	}
	return c, nil
}

func (r *Repo) CragSlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM crag WHERE slug = $1 AND id <> $2)`, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, wrap(err, "probe crag slug")
	}
	return exists, nil
}

func (r *Repo) InsertCrag(ctx context.Context, c Crag) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO crag (id, name, slug, type, lat, lon, country_id, area_id, peak_id, is_hidden, publish_status, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, c.Name, c.Slug, c.Type, c.Lat, c.Lon, c.CountryID, c.AreaID, c.PeakID, c.IsHidden, string(c.Status), c.UserID)
	if err != nil {
		return wrap(err, "insert crag")
	}
	r.wrote(ctx, "crag")
	return nil
}

func (r *Repo) UpdateCrag(ctx context.Context, c Crag) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE crag
		SET name = $2, slug = $3, type = $4, lat = $5, lon = $6, country_id = $7, area_id = $8, peak_id = $9,
			is_hidden = $10, publish_status = $11, updated_at = NOW()
		WHERE id = $1
	`, c.ID, c.Name, c.Slug, c.Type, c.Lat, c.Lon, c.CountryID, c.AreaID, c.PeakID, c.IsHidden, string(c.Status))
	if err != nil {
		return wrap(err, "update crag")
	}
	if err := expectOne(result, "update crag "+c.ID); err != nil {
		return err
	}
	r.wrote(ctx, "crag")
	return nil
}

// DeleteCrag removes the crag with its sectors, routes and everything hanging
// off them.
func (r *Repo) DeleteCrag(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM crag WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete crag")
	}
	if err := expectOne(result, "delete crag "+id); err != nil {
		return err
	}
	r.wrote(ctx, "crag", "sector", "route", "activity", "activity_route", "difficulty_vote", "comment")
	return nil
}

// CountRoutes counts the routes of a crag visible to viewer.
func (r *Repo) CountRoutes(ctx context.Context, cragID string, viewer query.Viewer) (int, error) {
	q := query.RouteCount(cragID, viewer)
	var count int
	err := r.cached(ctx, q, &count, func() error {
		if err := r.q.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&count); err != nil {
			return wrap(err, "count routes")
		}
		return nil
	})
	return count, err
}

func (r *Repo) PopularCrags(ctx context.Context, since *time.Time, top int, includeHidden bool) ([]PopularCrag, error) {
	q := query.PopularCrags(since, top, includeHidden)
	var popular []PopularCrag
	err := r.cached(ctx, q, &popular, func() error {
		rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return wrap(err, "popular crags")
		}
		defer rows.Close()

		popular = make([]PopularCrag, 0)
		for rows.Next() {
			var p PopularCrag
			if err := rows.Scan(append(cragDest(&p.Crag), &p.NrVisits)...); err != nil {
				return wrap(err, "scan popular crag")
			}
			popular = append(popular, p)
		}
		return wrap(rows.Err(), "iterate popular crags")
	})
	return popular, err
}

// ActivityByMonth returns twelve counts of logged ascents on the crag's
// routes, January first. Months without ascents are zero.
func (r *Repo) ActivityByMonth(ctx context.Context, cragID string) ([]int, error) {
	q := query.ActivityByMonth(cragID)
	var buckets []int
	err := r.cached(ctx, q, &buckets, func() error {
		rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return wrap(err, "activity by month")
		}
		defer rows.Close()

		buckets = make([]int, 12)
		for rows.Next() {
			var month, visits int
			if err := rows.Scan(&month, &visits); err != nil {
				return wrap(err, "scan month")
			}
			if month < 0 || month > 11 {
				return fmt.Errorf("activity by month: month %d out of range", month)
			}
			buckets[month] = visits
		}
		return wrap(rows.Err(), "iterate months")
	})
	return buckets, err
}
