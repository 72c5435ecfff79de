package store

import (
	"context"
	"strings"

	"cragdb/api/internal/position"
	"cragdb/api/internal/publish"
	"cragdb/api/internal/query"
)

var routeColumns = strings.Join(query.Columns("r", query.RouteFields), ", ")

func routeDest(rt *Route) []any {
	return []any{&rt.ID, &rt.CragID, &rt.SectorID, &rt.RouteTypeID, &rt.Name, &rt.Slug, &rt.Difficulty, &rt.Length,
		&rt.Author, &rt.IsProject, &rt.Position, &rt.Status, &rt.UserID, &rt.CreatedAt, &rt.UpdatedAt}
}

func (r *Repo) scanRoutes(ctx context.Context, q query.Query, what string) ([]Route, error) {
	rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, wrap(err, what)
	}
	defer rows.Close()

	routes := make([]Route, 0)
	for rows.Next() {
		var rt Route
		if err := rows.Scan(routeDest(&rt)...); err != nil {
			return nil, wrap(err, "scan route")
		}
		routes = append(routes, rt)
	}
	return routes, wrap(rows.Err(), what)
}

func (r *Repo) FindRoutes(ctx context.Context, f query.RouteFilter, viewer query.Viewer) ([]Route, error) {
	return r.scanRoutes(ctx, query.Routes(f, viewer), "find routes")
}

// RouteBySlugs finds a visible route by crag slug and route slug.
func (r *Repo) RouteBySlugs(ctx context.Context, cragSlug, routeSlug string, viewer query.Viewer) (Route, error) {
	q := query.RouteBySlugs(cragSlug, routeSlug, viewer)
	var rt Route
	if err := r.q.QueryRowContext(ctx, q.SQL, q.Args...).Scan(routeDest(&rt)...); err != nil {
		return Route{}, wrap(err, "route "+cragSlug+"/"+routeSlug)
	}
	return rt, nil
}

func (r *Repo) GetRoute(ctx context.Context, id string) (Route, error) {
	var rt Route
	err := r.q.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM route r WHERE r.id = $1`, id).Scan(routeDest(&rt)...)
	if err != nil {
		return Route{}, wrap(err, "get route "+id)
	}
	return rt, nil
}

// SectorRoutes lists every route of a sector regardless of visibility.
func (r *Repo) SectorRoutes(ctx context.Context, sectorID string) ([]Route, error) {
	q := query.Query{SQL: `SELECT ` + routeColumns + ` FROM route r WHERE r.sector_id = $1 ORDER BY r.position, r.id`, Args: []any{sectorID}}
	return r.scanRoutes(ctx, q, "sector routes")
}

// CragRoutes lists every route of a crag regardless of visibility.
func (r *Repo) CragRoutes(ctx context.Context, cragID string) ([]Route, error) {
	q := query.Query{SQL: `SELECT ` + routeColumns + ` FROM route r WHERE r.crag_id = $1 ORDER BY r.sector_id, r.position, r.id`, Args: []any{cragID}}
	return r.scanRoutes(ctx, q, "crag routes")
}

func (r *Repo) RouteSlugExists(ctx context.Context, cragID, slug, excludeID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM route WHERE crag_id = $1 AND slug = $2 AND id <> $3)`, cragID, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, wrap(err, "probe route slug")
	}
	return exists, nil
}

func (r *Repo) InsertRoute(ctx context.Context, rt Route) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO route (id, crag_id, sector_id, route_type_id, name, slug, difficulty, length, author, is_project,
			position, publish_status, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, rt.ID, rt.CragID, rt.SectorID, rt.RouteTypeID, rt.Name, rt.Slug, rt.Difficulty, rt.Length, rt.Author, rt.IsProject,
		rt.Position, string(rt.Status), rt.UserID)
	if err != nil {
		return wrap(err, "insert route")
	}
	r.wrote(ctx, "route")
	return nil
}

func (r *Repo) UpdateRoute(ctx context.Context, rt Route) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE route
		SET sector_id = $2, crag_id = $3, route_type_id = $4, name = $5, slug = $6, difficulty = $7, length = $8,
			author = $9, is_project = $10, position = $11, publish_status = $12, updated_at = NOW()
		WHERE id = $1
	`, rt.ID, rt.SectorID, rt.CragID, rt.RouteTypeID, rt.Name, rt.Slug, rt.Difficulty, rt.Length,
		rt.Author, rt.IsProject, rt.Position, string(rt.Status))
	if err != nil {
		return wrap(err, "update route")
	}
	if err := expectOne(result, "update route "+rt.ID); err != nil {
		return err
	}
	r.wrote(ctx, "route")
	return nil
}

func (r *Repo) SetRouteSlug(ctx context.Context, id, slug string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE route SET slug = $2, updated_at = NOW() WHERE id = $1`, id, slug)
	if err != nil {
		return wrap(err, "set route slug")
	}
	if err := expectOne(result, "set route slug "+id); err != nil {
		return err
	}
	r.wrote(ctx, "route")
	return nil
}

func (r *Repo) DeleteRoute(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM route WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete route")
	}
	if err := expectOne(result, "delete route "+id); err != nil {
		return err
	}
	r.wrote(ctx, "route", "pitch", "activity_route", "difficulty_vote", "star_rating_vote", "comment")
	return nil
}

func (r *Repo) FollowingRoutes(ctx context.Context, sectorID string, from int, excludeID string) ([]position.Sibling, error) {
	return r.following(ctx, `
		SELECT id, position FROM route
		WHERE sector_id = $1 AND position >= $2 AND id <> $3
		ORDER BY position, id
	`, "following routes", sectorID, from, excludeID)
}

func (r *Repo) SetRoutePosition(ctx context.Context, id string, pos int) error {
	result, err := r.q.ExecContext(ctx, `UPDATE route SET position = $2 WHERE id = $1`, id, pos)
	if err != nil {
		return wrap(err, "set route position")
	}
	if err := expectOne(result, "set route position "+id); err != nil {
		return err
	}
	r.wrote(ctx, "route")
	return nil
}

func (r *Repo) NextRoutePosition(ctx context.Context, sectorID string) (int, error) {
	var next int
	err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM route WHERE sector_id = $1`, sectorID).Scan(&next)
	if err != nil {
		return 0, wrap(err, "next route position")
	}
	return next, nil
}

func (r *Repo) RoutesWithStatus(ctx context.Context, sectorID string, status publish.Status, userID *string) ([]string, error) {
	return r.ids(ctx, `
		SELECT id FROM route
		WHERE sector_id = $1 AND publish_status = $2 AND user_id IS NOT DISTINCT FROM $3
		ORDER BY position, id
	`, "routes with status", sectorID, string(status), userID)
}

func (r *Repo) SetRouteStatus(ctx context.Context, id string, status publish.Status) error {
	result, err := r.q.ExecContext(ctx, `UPDATE route SET publish_status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return wrap(err, "set route status")
	}
	if err := expectOne(result, "set route status "+id); err != nil {
		return err
	}
	r.wrote(ctx, "route")
	return nil
}

// RouteStats returns tick, try and climber counts keyed by route id.
func (r *Repo) RouteStats(ctx context.Context, routeIDs []string) (map[string]RouteStats, error) {
	stats := make(map[string]RouteStats, len(routeIDs))
	if len(routeIDs) == 0 {
		return stats, nil
	}
	q := query.RouteStats(routeIDs)
	rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, wrap(err, "route stats")
	}
	defer rows.Close()

	for rows.Next() {
		var s RouteStats
		if err := rows.Scan(&s.RouteID, &s.NrTicks, &s.NrTries, &s.NrClimbers); err != nil {
			return nil, wrap(err, "scan route stats")
		}
		stats[s.RouteID] = s
	}
	return stats, wrap(rows.Err(), "iterate route stats")
}

func (r *Repo) Pitches(ctx context.Context, routeID string) ([]Pitch, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, route_id, number, difficulty, height FROM pitch WHERE route_id = $1 ORDER BY number
	`, routeID)
	if err != nil {
		return nil, wrap(err, "pitches")
	}
	defer rows.Close()

	pitches := make([]Pitch, 0)
	for rows.Next() {
		var p Pitch
		if err := rows.Scan(&p.ID, &p.RouteID, &p.Number, &p.Difficulty, &p.Height); err != nil {
			return nil, wrap(err, "scan pitch")
		}
		pitches = append(pitches, p)
	}
	return pitches, wrap(rows.Err(), "iterate pitches")
}

func (r *Repo) InsertPitch(ctx context.Context, p Pitch) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO pitch (id, route_id, number, difficulty, height) VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.RouteID, p.Number, p.Difficulty, p.Height)
	if err != nil {
		return wrap(err, "insert pitch")
	}
	r.wrote(ctx, "pitch")
	return nil
}
