package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cragdb/api/internal/auth"
	"cragdb/api/internal/rbac"
	"cragdb/api/internal/store"
	"cragdb/api/internal/util"
)

// newTokenCmd registers a user and prints a bearer token for it. Accounts
// live with the identity provider; this exists for operators and local
// development.
func newTokenCmd() *cobra.Command {
	var (
		userID string
		name   string
		email  string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Upsert a user and issue a bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("token: --email is required")
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if userID == "" {
				userID = util.NewID()
			}
			if ttl <= 0 {
				ttl = e.cfg.TokenTTL
			}
			user := store.User{
				ID:       userID,
				FullName: strings.TrimSpace(name),
				Email:    strings.TrimSpace(email),
				Role:     string(rbac.Normalize(role)),
			}
			pg := store.NewPostgresStore(e.db, nil, e.cfg.CollationLocale)
			if err := pg.InTx(cmd.Context(), func(r *store.Repo) error {
				return r.UpsertUser(cmd.Context(), user)
			}); err != nil {
				return err
			}

			token, err := auth.IssueToken([]byte(e.cfg.JWTSecret), user.ID, user.FullName, user.Role, util.NewID(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "id", "", "user id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", string(rbac.RoleUser), "user, editor or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	return cmd
}
