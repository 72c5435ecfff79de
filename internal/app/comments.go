package app

import (
	"context"
	"time"

	"cragdb/api/internal/rbac"
	"cragdb/api/internal/store"
	"cragdb/api/internal/util"
)

type CreateCommentInput struct {
	CragID       *string    `json:"cragId"`
	RouteID      *string    `json:"routeId"`
	IceFallID    *string    `json:"iceFallId"`
	Type         string     `json:"type" validate:"required,oneof=comment condition warning description"`
	Content      string     `json:"content" validate:"required,max=10000"`
	ExposedUntil *time.Time `json:"exposedUntil"`
}

type UpdateCommentInput struct {
	Type         *string    `json:"type" validate:"omitempty,oneof=comment condition warning description"`
	Content      *string    `json:"content" validate:"omitempty,min=1,max=10000"`
	ExposedUntil *time.Time `json:"exposedUntil"`
}

func (s *Service) CreateComment(ctx context.Context, session Session, input CreateCommentInput) (comment store.Comment, err error) {
	defer func() { s.observe(ctx, "comment", "create", err) }()

	if err := s.require(session, rbac.ActionComment); err != nil {
		return store.Comment{}, err
	}
	input.Content = *trimmed(&input.Content)
	if err := s.check(input); err != nil {
		return store.Comment{}, err
	}
	targets := 0
	for _, target := range []*string{input.CragID, input.RouteID, input.IceFallID} {
		if target != nil {
			targets++
		}
	}
	if targets != 1 {
		return store.Comment{}, invalid("A comment needs exactly one of cragId, routeId, iceFallId", nil)
	}
	switch {
	case input.CragID != nil:
		if _, err := s.CragByID(ctx, session, *input.CragID); err != nil {
			return store.Comment{}, err
		}
	case input.RouteID != nil:
		if _, err := s.store.GetRoute(ctx, *input.RouteID); err != nil {
			return store.Comment{}, missing(err, "route")
		}
	case input.IceFallID != nil:
		if _, err := s.store.GetIceFall(ctx, *input.IceFallID); err != nil {
			return store.Comment{}, missing(err, "ice fall")
		}
	}

	comment = store.Comment{
		ID:           util.NewID(),
		UserID:       session.owner(),
		CragID:       input.CragID,
		RouteID:      input.RouteID,
		IceFallID:    input.IceFallID,
		Type:         input.Type,
		Content:      input.Content,
		ExposedUntil: input.ExposedUntil,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return store.Comment{}, err
	}
	return comment, nil
}

func (s *Service) UpdateComment(ctx context.Context, session Session, id string, input UpdateCommentInput) (comment store.Comment, err error) {
	defer func() { s.observe(ctx, "comment", "update", err) }()

	if err := s.require(session, rbac.ActionComment); err != nil {
		return store.Comment{}, err
	}
	input.Content = trimmed(input.Content)
	if err := s.check(input); err != nil {
		return store.Comment{}, err
	}
	comment, err = s.store.GetComment(ctx, id)
	if err != nil {
		return store.Comment{}, missing(err, "comment")
	}
	if !ownsOrAdmin(session, comment.UserID) {
		return store.Comment{}, forbidden("Not allowed to edit this comment")
	}
	if input.Type != nil {
		comment.Type = *input.Type
	}
	if input.Content != nil {
		comment.Content = *input.Content
	}
	if input.ExposedUntil != nil {
		comment.ExposedUntil = input.ExposedUntil
	}
	if err := s.store.UpdateComment(ctx, comment); err != nil {
		return store.Comment{}, missing(err, "comment")
	}
	return comment, nil
}

func (s *Service) DeleteComment(ctx context.Context, session Session, id string) (err error) {
	defer func() { s.observe(ctx, "comment", "delete", err) }()

	if err := s.require(session, rbac.ActionComment); err != nil {
		return err
	}
	comment, err := s.store.GetComment(ctx, id)
	if err != nil {
		return missing(err, "comment")
	}
	if !ownsOrAdmin(session, comment.UserID) {
		return forbidden("Not allowed to delete this comment")
	}
	return missing(s.store.DeleteComment(ctx, comment.ID), "comment")
}

func (s *Service) FindComments(ctx context.Context, f store.CommentFilter) ([]store.Comment, error) {
	return s.store.FindComments(ctx, f)
}

func (s *Service) ExposedWarnings(ctx context.Context) ([]store.Comment, error) {
	return s.store.ExposedWarnings(ctx, s.now())
}
