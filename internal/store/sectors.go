package store

import (
	"context"
	"strings"

	"cragdb/api/internal/position"
	"cragdb/api/internal/publish"
	"cragdb/api/internal/query"
)

var sectorColumns = strings.Join(query.Columns("s", query.SectorFields), ", ")

func sectorDest(s *Sector) []any {
	return []any{&s.ID, &s.CragID, &s.Name, &s.Label, &s.Position, &s.Status, &s.UserID, &s.CreatedAt, &s.UpdatedAt}
}

func (r *Repo) FindSectors(ctx context.Context, f query.SectorFilter, viewer query.Viewer) ([]Sector, error) {
	q := query.Sectors(f, viewer)
	rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, wrap(err, "find sectors")
	}
	defer rows.Close()

	sectors := make([]Sector, 0)
	for rows.Next() {
		var s Sector
		if err := rows.Scan(sectorDest(&s)...); err != nil {
			return nil, wrap(err, "scan sector")
		}
		sectors = append(sectors, s)
	}
	return sectors, wrap(rows.Err(), "iterate sectors")
}

func (r *Repo) GetSector(ctx context.Context, id string) (Sector, error) {
	var s Sector
	err := r.q.QueryRowContext(ctx, `SELECT `+sectorColumns+` FROM sector s WHERE s.id = $1`, id).Scan(sectorDest(&s)...)
	if err != nil {
		return Sector{}, wrap(err, "get sector "+id)
	}
	return s, nil
}

func (r *Repo) InsertSector(ctx context.Context, s Sector) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sector (id, crag_id, name, label, position, publish_status, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.CragID, s.Name, s.Label, s.Position, string(s.Status), s.UserID)
	if err != nil {
		return wrap(err, "insert sector")
	}
	r.wrote(ctx, "sector")
	return nil
}

func (r *Repo) UpdateSector(ctx context.Context, s Sector) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE sector
		SET crag_id = $2, name = $3, label = $4, position = $5, publish_status = $6, updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.CragID, s.Name, s.Label, s.Position, string(s.Status))
	if err != nil {
		return wrap(err, "update sector")
	}
	if err := expectOne(result, "update sector "+s.ID); err != nil {
		return err
	}
	r.wrote(ctx, "sector")
	return nil
}

func (r *Repo) DeleteSector(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM sector WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete sector")
	}
	if err := expectOne(result, "delete sector "+id); err != nil {
		return err
	}
	r.wrote(ctx, "sector", "route", "activity_route", "difficulty_vote", "comment")
	return nil
}

// FollowingSectors lists the sectors of a crag at or after from, except
// excludeID, in position order.
func (r *Repo) FollowingSectors(ctx context.Context, cragID string, from int, excludeID string) ([]position.Sibling, error) {
	return r.following(ctx, `
		SELECT id, position FROM sector
		WHERE crag_id = $1 AND position >= $2 AND id <> $3
		ORDER BY position, id
	`, "following sectors", cragID, from, excludeID)
}

func (r *Repo) SetSectorPosition(ctx context.Context, id string, pos int) error {
	result, err := r.q.ExecContext(ctx, `UPDATE sector SET position = $2 WHERE id = $1`, id, pos)
	if err != nil {
		return wrap(err, "set sector position")
	}
	if err := expectOne(result, "set sector position "+id); err != nil {
		return err
	}
	r.wrote(ctx, "sector")
	return nil
}

// NextSectorPosition is one past the highest sector position of the crag.
func (r *Repo) NextSectorPosition(ctx context.Context, cragID string) (int, error) {
	var next int
	err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM sector WHERE crag_id = $1`, cragID).Scan(&next)
	if err != nil {
		return 0, wrap(err, "next sector position")
	}
	return next, nil
}

func (r *Repo) SectorsWithStatus(ctx context.Context, cragID string, status publish.Status, userID *string) ([]string, error) {
	return r.ids(ctx, `
		SELECT id FROM sector
		WHERE crag_id = $1 AND publish_status = $2 AND user_id IS NOT DISTINCT FROM $3
		ORDER BY position, id
	`, "sectors with status", cragID, string(status), userID)
}

func (r *Repo) SetSectorStatus(ctx context.Context, id string, status publish.Status) error {
	result, err := r.q.ExecContext(ctx, `UPDATE sector SET publish_status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return wrap(err, "set sector status")
	}
	if err := expectOne(result, "set sector status "+id); err != nil {
		return err
	}
	r.wrote(ctx, "sector")
	return nil
}

// SectorBouldersOnly reports whether the sector has no route other than a
// boulder problem. An empty sector counts as boulders only.
func (r *Repo) SectorBouldersOnly(ctx context.Context, sectorID string) (bool, error) {
	var bouldersOnly bool
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) = 0
		FROM route WHERE sector_id = $1 AND route_type_id <> 'boulder'
	`, sectorID).Scan(&bouldersOnly)
	if err != nil {
		return false, wrap(err, "sector boulders only")
	}
	return bouldersOnly, nil
}

// MoveSectorRoutes points the routes of a sector at cragID.
func (r *Repo) MoveSectorRoutes(ctx context.Context, sectorID, cragID string) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE route SET crag_id = $2, updated_at = NOW() WHERE sector_id = $1`, sectorID, cragID); err != nil {
		return wrap(err, "move sector routes")
	}
	r.wrote(ctx, "route")
	return nil
}

func (r *Repo) following(ctx context.Context, sql, what string, args ...any) ([]position.Sibling, error) {
	rows, err := r.q.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, wrap(err, what)
	}
	defer rows.Close()

	var siblings []position.Sibling
	for rows.Next() {
		var s position.Sibling
		if err := rows.Scan(&s.ID, &s.Position); err != nil {
			return nil, wrap(err, what)
		}
		siblings = append(siblings, s)
	}
	return siblings, wrap(rows.Err(), what)
}

func (r *Repo) ids(ctx context.Context, sql, what string, args ...any) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, wrap(err, what)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap(err, what)
		}
		ids = append(ids, id)
	}
	return ids, wrap(rows.Err(), what)
}
