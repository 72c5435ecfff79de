// Package position keeps sibling entities (sectors in a crag, routes in a
// sector) on distinct positions.
package position

import (
	"context"
	"fmt"
)

type Sibling struct {
	ID       string
	Position int
}

// Store reads and writes positions of one kind of sibling. Implementations
// are bound to the caller's transaction.
type Store interface {
	// Following returns siblings under parentID with position >= from,
	// excluding excludeID, in ascending position order.
	Following(ctx context.Context, parentID string, from int, excludeID string) ([]Sibling, error)
	SetPosition(ctx context.Context, id string, position int) error
}

// Plan returns the moves needed so that nothing in following shares target
// or each other. Nothing moves unless some sibling sits exactly on target.
// Each moved sibling takes max(old+1, previous+1), which is a uniform +1
// shift on consistent data and also separates siblings that already
// collided.
func Plan(target int, following []Sibling) []Sibling {
	if len(following) == 0 || following[0].Position != target {
		return nil
	}
	moves := make([]Sibling, 0, len(following))
	last := target
	for _, sibling := range following {
		next := sibling.Position + 1
		if next <= last {
			next = last + 1
		}
		moves = append(moves, Sibling{ID: sibling.ID, Position: next})
		last = next
	}
	return moves
}

type Sequencer struct {
	store Store
}

func NewSequencer(store Store) *Sequencer {
	return &Sequencer{store: store}
}

// Place makes room for id at target under parentID and returns how many
// siblings were moved. Writes happen one by one in ascending order; the first
// failure is returned and the caller's transaction is expected to roll back.
func (s *Sequencer) Place(ctx context.Context, parentID, id string, target int) (int, error) {
	following, err := s.store.Following(ctx, parentID, target, id)
	if err != nil {
		return 0, fmt.Errorf("load following siblings: %w", err)
	}
	moves := Plan(target, following)
	for _, move := range moves {
		if err := s.store.SetPosition(ctx, move.ID, move.Position); err != nil {
			return 0, fmt.Errorf("shift sibling %s to %d: %w", move.ID, move.Position, err)
		}
	}
	return len(moves), nil
}
