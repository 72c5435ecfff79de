package store

import (
	"context"
)

func (r *Repo) InsertClub(ctx context.Context, c Club) error {
	if _, err := r.q.ExecContext(ctx, `INSERT INTO club (id, name, slug) VALUES ($1, $2, $3)`, c.ID, c.Name, c.Slug); err != nil {
		return wrap(err, "insert club")
	}
	r.wrote(ctx, "club")
	return nil
}

func (r *Repo) GetClub(ctx context.Context, id string) (Club, error) {
	var c Club
	if err := r.q.QueryRowContext(ctx, `SELECT id, name, slug FROM club WHERE id = $1`, id).Scan(&c.ID, &c.Name, &c.Slug); err != nil {
		return Club{}, wrap(err, "get club "+id)
	}
	return c, nil
}

func (r *Repo) ClubSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM club WHERE slug = $1)`, slug).Scan(&exists); err != nil {
		return false, wrap(err, "probe club slug")
	}
	return exists, nil
}

func (r *Repo) GetClubMember(ctx context.Context, id string) (ClubMember, error) {
	var m ClubMember
	err := r.q.QueryRowContext(ctx, `SELECT id, club_id, user_id, admin FROM club_member WHERE id = $1`, id).
		Scan(&m.ID, &m.ClubID, &m.UserID, &m.Admin)
	if err != nil {
		return ClubMember{}, wrap(err, "get club member "+id)
	}
	return m, nil
}

// ClubMembership returns the membership of userID in clubID.
func (r *Repo) ClubMembership(ctx context.Context, clubID, userID string) (ClubMember, error) {
	var m ClubMember
	err := r.q.QueryRowContext(ctx, `
		SELECT id, club_id, user_id, admin FROM club_member WHERE club_id = $1 AND user_id = $2
	`, clubID, userID).Scan(&m.ID, &m.ClubID, &m.UserID, &m.Admin)
	if err != nil {
		return ClubMember{}, wrap(err, "club membership")
	}
	return m, nil
}

func (r *Repo) InsertClubMember(ctx context.Context, m ClubMember) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO club_member (id, club_id, user_id, admin) VALUES ($1, $2, $3, $4)
	`, m.ID, m.ClubID, m.UserID, m.Admin)
	if err != nil {
		return wrap(err, "insert club member")
	}
	r.wrote(ctx, "club_member")
	return nil
}

func (r *Repo) DeleteClubMember(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM club_member WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete club member")
	}
	if err := expectOne(result, "delete club member "+id); err != nil {
		return err
	}
	r.wrote(ctx, "club_member")
	return nil
}
