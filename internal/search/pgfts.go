package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher with PostgreSQL full-text search over names. It
// only ever returns published crags and routes of visible crags.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

const tsQuery = "plainto_tsquery('simple', $1)"

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(q.Offset, 0)

	args := []any{q.Text}
	var countryFilter string
	if q.FilterCountryID != "" {
		args = append(args, q.FilterCountryID)
		countryFilter = " AND c.country_id = $2"
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultCrag {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'crag'::text AS type, c.id, c.name AS title, c.slug, ''::text AS crag_slug,
				ts_headline('simple', c.name, %[1]s, 'StartSel=<mark>,StopSel=</mark>') AS snippet,
				ts_rank(to_tsvector('simple', c.name), %[1]s) AS rank
			FROM crag c
			WHERE to_tsvector('simple', c.name) @@ %[1]s
				AND c.publish_status = 'published' AND c.is_hidden = false%[2]s`, tsQuery, countryFilter))
	}
	if q.FilterType == "" || q.FilterType == ResultRoute {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'route'::text AS type, r.id, r.name AS title, r.slug, c.slug AS crag_slug,
				ts_headline('simple', r.name, %[1]s, 'StartSel=<mark>,StopSel=</mark>') AS snippet,
				ts_rank(to_tsvector('simple', r.name), %[1]s) AS rank
			FROM route r
			JOIN crag c ON c.id = r.crag_id
			WHERE to_tsvector('simple', r.name) @@ %[1]s
				AND r.publish_status = 'published' AND c.publish_status = 'published' AND c.is_hidden = false%[2]s`, tsQuery, countryFilter))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, slug, crag_slug, snippet
		FROM (%s) sub
		ORDER BY rank DESC, title
		LIMIT %d OFFSET %d`, union, limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Slug, &r.CragSlug, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every published crag and route for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CragRecord, []RouteRecord, error) {
	cragRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, slug, type, country_id
		FROM crag
		WHERE publish_status = 'published' AND is_hidden = false
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load crags: %w", err)
	}
	defer cragRows.Close()

	crags := make([]CragRecord, 0)
	for cragRows.Next() {
		var c CragRecord
		if err := cragRows.Scan(&c.ID, &c.Name, &c.Slug, &c.Type, &c.CountryID); err != nil {
			return nil, nil, fmt.Errorf("scan crag: %w", err)
		}
		crags = append(crags, c)
	}
	if err := cragRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate crags: %w", err)
	}

	routeRows, err := p.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.slug, c.id, c.name, c.slug, c.country_id
		FROM route r
		JOIN crag c ON c.id = r.crag_id
		WHERE r.publish_status = 'published' AND c.publish_status = 'published' AND c.is_hidden = false
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load routes: %w", err)
	}
	defer routeRows.Close()

	routes := make([]RouteRecord, 0)
	for routeRows.Next() {
		var r RouteRecord
		if err := routeRows.Scan(&r.ID, &r.Name, &r.Slug, &r.CragID, &r.CragName, &r.CragSlug, &r.CountryID); err != nil {
			return nil, nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, r)
	}
	if err := routeRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate routes: %w", err)
	}

	return crags, routes, nil
}
