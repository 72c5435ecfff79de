package publish

import (
	"context"
	"fmt"
)

// Node is the parent whose status just changed. Status is the new value.
type Node struct {
	ID     string
	UserID *string
	Status Status
}

// Store selects and rewrites children inside the caller's transaction. The
// select methods must match owner with IS NOT DISTINCT FROM semantics so that
// ownerless parents only reach ownerless children.
type Store interface {
	SectorsWithStatus(ctx context.Context, cragID string, status Status, userID *string) ([]string, error)
	RoutesWithStatus(ctx context.Context, sectorID string, status Status, userID *string) ([]string, error)
	SetSectorStatus(ctx context.Context, id string, status Status) error
	SetRouteStatus(ctx context.Context, id string, status Status) error
}

type Result struct {
	Sectors int
	Routes  int
}

// CascadeFromCrag moves sectors that still carry the crag's previous status
// and the crag's owner to the crag's new status, then does the same for the
// routes of each of those sectors.
func CascadeFromCrag(ctx context.Context, store Store, crag Node, previous Status) (Result, error) {
	var result Result
	if previous == crag.Status {
		return result, nil
	}
	sectorIDs, err := store.SectorsWithStatus(ctx, crag.ID, previous, crag.UserID)
	if err != nil {
		return result, fmt.Errorf("select sectors of crag %s: %w", crag.ID, err)
	}
	for _, sectorID := range sectorIDs {
		if err := store.SetSectorStatus(ctx, sectorID, crag.Status); err != nil {
			return result, fmt.Errorf("set sector %s status: %w", sectorID, err)
		}
		result.Sectors++

		routes, err := cascadeRoutes(ctx, store, sectorID, crag.UserID, previous, crag.Status)
		result.Routes += routes
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// CascadeFromSector applies the route step of CascadeFromCrag to one sector.
func CascadeFromSector(ctx context.Context, store Store, sector Node, previous Status) (Result, error) {
	var result Result
	if previous == sector.Status {
		return result, nil
	}
	routes, err := cascadeRoutes(ctx, store, sector.ID, sector.UserID, previous, sector.Status)
	result.Routes = routes
	return result, err
}

func cascadeRoutes(ctx context.Context, store Store, sectorID string, userID *string, previous, next Status) (int, error) {
	routeIDs, err := store.RoutesWithStatus(ctx, sectorID, previous, userID)
	if err != nil {
		return 0, fmt.Errorf("select routes of sector %s: %w", sectorID, err)
	}
	updated := 0
	for _, routeID := range routeIDs {
		if err := store.SetRouteStatus(ctx, routeID, next); err != nil {
			return updated, fmt.Errorf("set route %s status: %w", routeID, err)
		}
		updated++
	}
	return updated, nil
}
