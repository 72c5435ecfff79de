package store

import (
	"context"
)

func (r *Repo) GetUser(ctx context.Context, id string) (User, error) {
	return r.getUser(ctx, `id = $1`, id)
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return r.getUser(ctx, `LOWER(email) = LOWER($1)`, email)
}

func (r *Repo) getUser(ctx context.Context, where, value string) (User, error) {
	var u User
	err := r.q.QueryRowContext(ctx, `
		SELECT id, full_name, email, role, has_unpublished_contributions, created_at
		FROM users WHERE `+where+`
	`, value).Scan(&u.ID, &u.FullName, &u.Email, &u.Role, &u.HasUnpublishedContributions, &u.CreatedAt)
	if err != nil {
		return User{}, wrap(err, "get user "+value)
	}
	return u, nil
}

// UpsertUser creates the user or refreshes name, email and role of an
// existing one.
func (r *Repo) UpsertUser(ctx context.Context, u User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, email = EXCLUDED.email, role = EXCLUDED.role
	`, u.ID, u.FullName, u.Email, u.Role)
	if err != nil {
		return wrap(err, "upsert user")
	}
	r.wrote(ctx, "users")
	return nil
}

// RefreshContributionFlag recomputes whether the user owns any crag, sector
// or route that is still a draft or a proposal.
func (r *Repo) RefreshContributionFlag(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users SET has_unpublished_contributions = (
			EXISTS (SELECT 1 FROM crag WHERE user_id = $1 AND publish_status IN ('draft', 'proposal'))
			OR EXISTS (SELECT 1 FROM sector WHERE user_id = $1 AND publish_status IN ('draft', 'proposal'))
			OR EXISTS (SELECT 1 FROM route WHERE user_id = $1 AND publish_status IN ('draft', 'proposal'))
		)
		WHERE id = $1
	`, userID)
	if err != nil {
		return wrap(err, "refresh contribution flag")
	}
	r.wrote(ctx, "users")
	return nil
}
