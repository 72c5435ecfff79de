package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"cragdb/api/internal/rbac"
	"cragdb/api/internal/slug"
	"cragdb/api/internal/store"
	"cragdb/api/internal/util"
)

type CreateClubInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

// AddClubMemberInput names the new member by id or by email.
type AddClubMemberInput struct {
	UserID *string `json:"userId" validate:"required_without=Email"`
	Email  *string `json:"email" validate:"required_without=UserID,omitempty,email"`
	Admin  bool    `json:"admin"`
}

// CreateClub creates a club with the caller as its first admin member.
func (s *Service) CreateClub(ctx context.Context, session Session, input CreateClubInput) (club store.Club, err error) {
	defer func() { s.observe(ctx, "club", "create", err) }()

	if err := s.require(session, rbac.ActionComment); err != nil {
		return store.Club{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return store.Club{}, err
	}
	club = store.Club{ID: util.NewID(), Name: input.Name}
	gen := slug.Generator{Exists: s.store.ClubSlugExists}
	if club.Slug, err = gen.Generate(ctx, club.Name); err != nil {
		return store.Club{}, err
	}
	err = s.store.InTx(ctx, func(tx Repository) error {
		if err := tx.InsertClub(ctx, club); err != nil {
			return err
		}
		return tx.InsertClubMember(ctx, store.ClubMember{ID: util.NewID(), ClubID: club.ID, UserID: session.UserID, Admin: true})
	})
	if err != nil {
		return store.Club{}, err
	}
	return club, nil
}

// requireClubAdmin fails unless the caller administers the club. Site admins
// always pass.
func (s *Service) requireClubAdmin(ctx context.Context, session Session, clubID string) error {
	if err := s.require(session, rbac.ActionComment); err != nil {
		return err
	}
	if _, err := s.store.GetClub(ctx, clubID); err != nil {
		return missing(err, "club")
	}
	if session.can(rbac.ActionAdmin) {
		return nil
	}
	membership, err := s.store.ClubMembership(ctx, clubID, session.UserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !membership.Admin) {
		return forbidden("Only club admins may manage members")
	}
	return err
}

func (s *Service) AddClubMember(ctx context.Context, session Session, clubID string, input AddClubMemberInput) (member store.ClubMember, err error) {
	defer func() { s.observe(ctx, "club_member", "create", err) }()

	if err := s.requireClubAdmin(ctx, session, clubID); err != nil {
		return store.ClubMember{}, err
	}
	if err := s.check(input); err != nil {
		return store.ClubMember{}, err
	}
	var user store.User
	if input.UserID != nil {
		user, err = s.store.GetUser(ctx, *input.UserID)
	} else {
		user, err = s.store.GetUserByEmail(ctx, strings.TrimSpace(*input.Email))
	}
	if err != nil {
		return store.ClubMember{}, missing(err, "user")
	}

	if _, err := s.store.ClubMembership(ctx, clubID, user.ID); err == nil {
		return store.ClubMember{}, domainError(http.StatusConflict, "CONFLICT", "User is already a member of this club", nil)
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.ClubMember{}, err
	}

	member = store.ClubMember{ID: util.NewID(), ClubID: clubID, UserID: user.ID, Admin: input.Admin}
	if err := s.store.InsertClubMember(ctx, member); err != nil {
		return store.ClubMember{}, err
	}
	return member, nil
}

func (s *Service) RemoveClubMember(ctx context.Context, session Session, memberID string) (err error) {
	defer func() { s.observe(ctx, "club_member", "delete", err) }()

	if err := s.require(session, rbac.ActionComment); err != nil {
		return err
	}
	member, err := s.store.GetClubMember(ctx, memberID)
	if err != nil {
		return missing(err, "club member")
	}
	if err := s.requireClubAdmin(ctx, session, member.ClubID); err != nil {
		return err
	}
	return missing(s.store.DeleteClubMember(ctx, member.ID), "club member")
}
