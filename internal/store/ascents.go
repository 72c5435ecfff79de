package store

import (
	"context"
)

func (r *Repo) InsertDifficultyVote(ctx context.Context, v DifficultyVote) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO difficulty_vote (id, route_id, user_id, difficulty, is_base) VALUES ($1, $2, $3, $4, $5)
	`, v.ID, v.RouteID, v.UserID, v.Difficulty, v.IsBase)
	if err != nil {
		return wrap(err, "insert difficulty vote")
	}
	r.wrote(ctx, "difficulty_vote")
	return nil
}

// UpsertDifficultyVote sets the user's difficulty vote on a route.
func (r *Repo) UpsertDifficultyVote(ctx context.Context, v DifficultyVote) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO difficulty_vote (id, route_id, user_id, difficulty, is_base) VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (route_id, user_id) WHERE user_id IS NOT NULL
		DO UPDATE SET difficulty = EXCLUDED.difficulty, created_at = NOW()
	`, v.ID, v.RouteID, v.UserID, v.Difficulty)
	if err != nil {
		return wrap(err, "upsert difficulty vote")
	}
	r.wrote(ctx, "difficulty_vote")
	return nil
}

func (r *Repo) DifficultyVotes(ctx context.Context, routeID string) ([]DifficultyVote, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, route_id, user_id, difficulty, is_base, created_at
		FROM difficulty_vote WHERE route_id = $1 ORDER BY is_base DESC, created_at
	`, routeID)
	if err != nil {
		return nil, wrap(err, "difficulty votes")
	}
	defer rows.Close()

	votes := make([]DifficultyVote, 0)
	for rows.Next() {
		var v DifficultyVote
		if err := rows.Scan(&v.ID, &v.RouteID, &v.UserID, &v.Difficulty, &v.IsBase, &v.CreatedAt); err != nil {
			return nil, wrap(err, "scan difficulty vote")
		}
		votes = append(votes, v)
	}
	return votes, wrap(rows.Err(), "iterate difficulty votes")
}

func (r *Repo) UpsertStarRatingVote(ctx context.Context, v StarRatingVote) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO star_rating_vote (id, route_id, user_id, stars) VALUES ($1, $2, $3, $4)
		ON CONFLICT (route_id, user_id) DO UPDATE SET stars = EXCLUDED.stars, created_at = NOW()
	`, v.ID, v.RouteID, v.UserID, v.Stars)
	if err != nil {
		return wrap(err, "upsert star rating vote")
	}
	r.wrote(ctx, "star_rating_vote")
	return nil
}

func (r *Repo) InsertActivity(ctx context.Context, a Activity) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO activity (id, crag_id, user_id, type, name, date) VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.CragID, a.UserID, a.Type, a.Name, a.Date)
	if err != nil {
		return wrap(err, "insert activity")
	}
	r.wrote(ctx, "activity")
	return nil
}

func (r *Repo) GetActivity(ctx context.Context, id string) (Activity, error) {
	var a Activity
	err := r.q.QueryRowContext(ctx, `SELECT id, crag_id, user_id, type, name, date FROM activity WHERE id = $1`, id).
		Scan(&a.ID, &a.CragID, &a.UserID, &a.Type, &a.Name, &a.Date)
	if err != nil {
		return Activity{}, wrap(err, "get activity "+id)
	}
	return a, nil
}

func (r *Repo) DeleteActivity(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM activity WHERE id = $1`, id); err != nil {
		return wrap(err, "delete activity")
	}
	r.wrote(ctx, "activity", "activity_route", "difficulty_vote")
	return nil
}

func (r *Repo) CountActivityAscents(ctx context.Context, activityID string) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_route WHERE activity_id = $1`, activityID).Scan(&count); err != nil {
		return 0, wrap(err, "count activity ascents")
	}
	return count, nil
}

const ascentColumns = `ar.id, ar.activity_id, ar.route_id, ar.user_id, ar.ascent_type, ar.publish, ar.date, ar.notes`

func ascentDest(a *Ascent) []any {
	return []any{&a.ID, &a.ActivityID, &a.RouteID, &a.UserID, &a.AscentType, &a.Publish, &a.Date, &a.Notes}
}

func (r *Repo) InsertAscent(ctx context.Context, a Ascent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO activity_route (id, activity_id, route_id, user_id, ascent_type, publish, date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.ActivityID, a.RouteID, a.UserID, a.AscentType, a.Publish, a.Date, a.Notes)
	if err != nil {
		return wrap(err, "insert ascent")
	}
	r.wrote(ctx, "activity_route")
	return nil
}

func (r *Repo) GetAscent(ctx context.Context, id string) (Ascent, error) {
	var a Ascent
	err := r.q.QueryRowContext(ctx, `SELECT `+ascentColumns+` FROM activity_route ar WHERE ar.id = $1`, id).Scan(ascentDest(&a)...)
	if err != nil {
		return Ascent{}, wrap(err, "get ascent "+id)
	}
	return a, nil
}

// DeleteAscent removes one ascent log row. The database drops the user's
// difficulty vote when no tick of the route remains.
func (r *Repo) DeleteAscent(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM activity_route WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete ascent")
	}
	if err := expectOne(result, "delete ascent "+id); err != nil {
		return err
	}
	r.wrote(ctx, "activity_route", "difficulty_vote")
	return nil
}

// SectorAscents lists the ascent log rows of every route in a sector.
func (r *Repo) SectorAscents(ctx context.Context, sectorID string) ([]Ascent, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+ascentColumns+`
		FROM activity_route ar
		JOIN route r ON r.id = ar.route_id
		WHERE r.sector_id = $1
		ORDER BY ar.activity_id, ar.id
	`, sectorID)
	if err != nil {
		return nil, wrap(err, "sector ascents")
	}
	defer rows.Close()

	var ascents []Ascent
	for rows.Next() {
		var a Ascent
		if err := rows.Scan(ascentDest(&a)...); err != nil {
			return nil, wrap(err, "scan ascent")
		}
		ascents = append(ascents, a)
	}
	return ascents, wrap(rows.Err(), "iterate sector ascents")
}

func (r *Repo) SetAscentActivity(ctx context.Context, ascentID, activityID string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE activity_route SET activity_id = $2 WHERE id = $1`, ascentID, activityID)
	if err != nil {
		return wrap(err, "set ascent activity")
	}
	if err := expectOne(result, "set ascent activity "+ascentID); err != nil {
		return err
	}
	r.wrote(ctx, "activity_route")
	return nil
}
