package app

import (
	"context"
	"slices"
	"time"

	"cragdb/api/internal/query"
	"cragdb/api/internal/rbac"
	"cragdb/api/internal/store"
	"cragdb/api/internal/util"
)

type LogAscentInput struct {
	RouteID    string    `json:"routeId" validate:"required"`
	AscentType string    `json:"ascentType" validate:"required,oneof=onsight flash redpoint repeat allfree aid attempt t_onsight t_flash t_redpoint t_repeat t_allfree t_aid t_attempt"`
	Publish    string    `json:"publish" validate:"omitempty,oneof=public club log private"`
	Date       time.Time `json:"date" validate:"required"`
	Notes      string    `json:"notes" validate:"max=5000"`
	Difficulty *float64  `json:"difficulty" validate:"omitempty,min=0"`
	Stars      *int      `json:"stars" validate:"omitempty,min=0,max=2"`
}

// AscentLog is what LogAscent wrote.
type AscentLog struct {
	Activity store.Activity `json:"activity"`
	Ascent   store.Ascent   `json:"ascent"`
}

func isTick(ascentType string) bool {
	return slices.Contains(query.TickTypes, ascentType)
}

// LogAscent records an ascent in a new activity on the route's crag. Votes
// may only ride along a tick.
func (s *Service) LogAscent(ctx context.Context, session Session, input LogAscentInput) (log AscentLog, err error) {
	defer func() { s.observe(ctx, "ascent", "create", err) }()

	if err := s.require(session, rbac.ActionComment); err != nil {
		return AscentLog{}, err
	}
	if err := s.check(input); err != nil {
		return AscentLog{}, err
	}
	if (input.Difficulty != nil || input.Stars != nil) && !isTick(input.AscentType) {
		return AscentLog{}, invalid("Votes need a tick", map[string]string{"ascentType": "tick"})
	}
	routes, err := s.FindRoutes(ctx, session, query.RouteFilter{ID: &input.RouteID})
	if err != nil {
		return AscentLog{}, err
	}
	if len(routes) == 0 {
		return AscentLog{}, notFound("route")
	}
	route := routes[0]
	if input.Difficulty != nil && route.IsProject {
		return AscentLog{}, invalid("Projects take no difficulty votes", nil)
	}
	if input.Publish == "" {
		input.Publish = "public"
	}

	date := input.Date.UTC().Truncate(24 * time.Hour)
	cragID := route.CragID
	log.Activity = store.Activity{ID: util.NewID(), CragID: &cragID, UserID: session.UserID, Type: "crag", Date: date}
	log.Ascent = store.Ascent{
		ID:         util.NewID(),
		ActivityID: &log.Activity.ID,
		RouteID:    route.ID,
		UserID:     session.UserID,
		AscentType: input.AscentType,
		Publish:    input.Publish,
		Date:       date,
		Notes:      input.Notes,
	}

	err = s.store.InTx(ctx, func(tx Repository) error {
		if err := tx.InsertActivity(ctx, log.Activity); err != nil {
			return err
		}
		if err := tx.InsertAscent(ctx, log.Ascent); err != nil {
			return err
		}
		if input.Difficulty != nil {
			vote := store.DifficultyVote{ID: util.NewID(), RouteID: route.ID, UserID: session.owner(), Difficulty: *input.Difficulty}
			if err := tx.UpsertDifficultyVote(ctx, vote); err != nil {
				return err
			}
		}
		if input.Stars != nil {
			vote := store.StarRatingVote{ID: util.NewID(), RouteID: route.ID, UserID: session.UserID, Stars: *input.Stars}
			if err := tx.UpsertStarRatingVote(ctx, vote); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return AscentLog{}, err
	}
	return log, nil
}

// DeleteAscent removes an ascent log row and its activity once empty. The
// difficulty vote cleanup is left to the database.
func (s *Service) DeleteAscent(ctx context.Context, session Session, id string) (err error) {
	defer func() { s.observe(ctx, "ascent", "delete", err) }()

	if err := s.require(session, rbac.ActionComment); err != nil {
		return err
	}
	ascent, err := s.store.GetAscent(ctx, id)
	if err != nil {
		return missing(err, "ascent")
	}
	if !ownsOrAdmin(session, &ascent.UserID) {
		return forbidden("Not allowed to delete this ascent")
	}
	return s.store.InTx(ctx, func(tx Repository) error {
		if err := tx.DeleteAscent(ctx, ascent.ID); err != nil {
			return err
		}
		if ascent.ActivityID == nil {
			return nil
		}
		left, err := tx.CountActivityAscents(ctx, *ascent.ActivityID)
		if err != nil {
			return err
		}
		if left > 0 {
			return nil
		}
		return tx.DeleteActivity(ctx, *ascent.ActivityID)
	})
}

func (s *Service) DifficultyVotes(ctx context.Context, routeID string) ([]store.DifficultyVote, error) {
	return s.store.DifficultyVotes(ctx, routeID)
}
