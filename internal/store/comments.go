package store

import (
	"context"
	"time"

	"cragdb/api/internal/query"
)

// CommentFilter narrows FindComments. Nil fields are ignored.
type CommentFilter struct {
	RouteID   *string
	RouteIDs  []string
	CragID    *string
	IceFallID *string
	Type      *string
}

const commentColumns = `cm.id, cm.user_id, cm.crag_id, cm.route_id, cm.ice_fall_id, cm.type, cm.content, cm.exposed_until, cm.created_at, cm.updated_at`

func commentDest(c *Comment) []any {
	return []any{&c.ID, &c.UserID, &c.CragID, &c.RouteID, &c.IceFallID, &c.Type, &c.Content, &c.ExposedUntil, &c.CreatedAt, &c.UpdatedAt}
}

func (r *Repo) scanComments(ctx context.Context, q query.Query) ([]Comment, error) {
	rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, wrap(err, "find comments")
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(commentDest(&c)...); err != nil {
			return nil, wrap(err, "scan comment")
		}
		comments = append(comments, c)
	}
	return comments, wrap(rows.Err(), "iterate comments")
}

// FindComments lists matching comments, newest first.
func (r *Repo) FindComments(ctx context.Context, f CommentFilter) ([]Comment, error) {
	b := query.Select(commentColumns).From("comment", "cm")
	if f.RouteID != nil {
		b.Where("cm.route_id = ?", *f.RouteID)
	}
	if f.RouteIDs != nil {
		b.Where("cm.route_id IN ("+query.Placeholders(len(f.RouteIDs))+")", query.Values(f.RouteIDs)...)
	}
	if f.CragID != nil {
		b.Where("cm.crag_id = ?", *f.CragID)
	}
	if f.IceFallID != nil {
		b.Where("cm.ice_fall_id = ?", *f.IceFallID)
	}
	if f.Type != nil {
		b.Where("cm.type = ?", *f.Type)
	}
	return r.scanComments(ctx, b.OrderBy("cm.created_at DESC").Build())
}

// ExposedWarnings lists warnings whose exposure lasts at least until now.
func (r *Repo) ExposedWarnings(ctx context.Context, now time.Time) ([]Comment, error) {
	q := query.Select(commentColumns).
		From("comment", "cm").
		Where("cm.type = 'warning'").
		Where("cm.exposed_until >= ?", now.Truncate(24*time.Hour)).
		OrderBy("cm.created_at DESC").
		Build()
	return r.scanComments(ctx, q)
}

func (r *Repo) GetComment(ctx context.Context, id string) (Comment, error) {
	var c Comment
	err := r.q.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comment cm WHERE cm.id = $1`, id).Scan(commentDest(&c)...)
	if err != nil {
		return Comment{}, wrap(err, "get comment "+id)
	}
	return c, nil
}

func (r *Repo) InsertComment(ctx context.Context, c Comment) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO comment (id, user_id, crag_id, route_id, ice_fall_id, type, content, exposed_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.UserID, c.CragID, c.RouteID, c.IceFallID, c.Type, c.Content, c.ExposedUntil)
	if err != nil {
		return wrap(err, "insert comment")
	}
	r.wrote(ctx, "comment")
	return nil
}

func (r *Repo) UpdateComment(ctx context.Context, c Comment) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE comment SET type = $2, content = $3, exposed_until = $4, updated_at = NOW() WHERE id = $1
	`, c.ID, c.Type, c.Content, c.ExposedUntil)
	if err != nil {
		return wrap(err, "update comment")
	}
	if err := expectOne(result, "update comment "+c.ID); err != nil {
		return err
	}
	r.wrote(ctx, "comment")
	return nil
}

func (r *Repo) DeleteComment(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM comment WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete comment")
	}
	if err := expectOne(result, "delete comment "+id); err != nil {
		return err
	}
	r.wrote(ctx, "comment")
	return nil
}
