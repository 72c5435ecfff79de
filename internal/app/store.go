package app

import (
	"context"
	"time"

	"cragdb/api/internal/position"
	"cragdb/api/internal/publish"
	"cragdb/api/internal/query"
	"cragdb/api/internal/store"
)

// Repository is every statement the service runs, either on the pool or
// inside a transaction.
type Repository interface {
	publish.Store

	GetUser(ctx context.Context, id string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	RefreshContributionFlag(ctx context.Context, userID string) error

	FindCrags(ctx context.Context, f query.CragFilter, viewer query.Viewer) ([]store.Crag, error)
	GetCrag(ctx context.Context, id string) (store.Crag, error)
	CragSlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	InsertCrag(ctx context.Context, c store.Crag) error
	UpdateCrag(ctx context.Context, c store.Crag) error
	DeleteCrag(ctx context.Context, id string) error
	CountRoutes(ctx context.Context, cragID string, viewer query.Viewer) (int, error)
	PopularCrags(ctx context.Context, since *time.Time, top int, includeHidden bool) ([]store.PopularCrag, error)
	ActivityByMonth(ctx context.Context, cragID string) ([]int, error)

	FindSectors(ctx context.Context, f query.SectorFilter, viewer query.Viewer) ([]store.Sector, error)
	GetSector(ctx context.Context, id string) (store.Sector, error)
	InsertSector(ctx context.Context, s store.Sector) error
	UpdateSector(ctx context.Context, s store.Sector) error
	DeleteSector(ctx context.Context, id string) error
	FollowingSectors(ctx context.Context, cragID string, from int, excludeID string) ([]position.Sibling, error)
	SetSectorPosition(ctx context.Context, id string, pos int) error
	NextSectorPosition(ctx context.Context, cragID string) (int, error)
	SectorBouldersOnly(ctx context.Context, sectorID string) (bool, error)
	MoveSectorRoutes(ctx context.Context, sectorID, cragID string) error

	FindRoutes(ctx context.Context, f query.RouteFilter, viewer query.Viewer) ([]store.Route, error)
	RouteBySlugs(ctx context.Context, cragSlug, routeSlug string, viewer query.Viewer) (store.Route, error)
	GetRoute(ctx context.Context, id string) (store.Route, error)
	SectorRoutes(ctx context.Context, sectorID string) ([]store.Route, error)
	CragRoutes(ctx context.Context, cragID string) ([]store.Route, error)
	RouteSlugExists(ctx context.Context, cragID, slug, excludeID string) (bool, error)
	InsertRoute(ctx context.Context, rt store.Route) error
	UpdateRoute(ctx context.Context, rt store.Route) error
	SetRouteSlug(ctx context.Context, id, slug string) error
	DeleteRoute(ctx context.Context, id string) error
	FollowingRoutes(ctx context.Context, sectorID string, from int, excludeID string) ([]position.Sibling, error)
	SetRoutePosition(ctx context.Context, id string, pos int) error
	NextRoutePosition(ctx context.Context, sectorID string) (int, error)
	RouteStats(ctx context.Context, routeIDs []string) (map[string]store.RouteStats, error)
	Pitches(ctx context.Context, routeID string) ([]store.Pitch, error)
	InsertPitch(ctx context.Context, p store.Pitch) error

	InsertDifficultyVote(ctx context.Context, v store.DifficultyVote) error
	UpsertDifficultyVote(ctx context.Context, v store.DifficultyVote) error
	DifficultyVotes(ctx context.Context, routeID string) ([]store.DifficultyVote, error)
	UpsertStarRatingVote(ctx context.Context, v store.StarRatingVote) error
	InsertActivity(ctx context.Context, a store.Activity) error
	GetActivity(ctx context.Context, id string) (store.Activity, error)
	DeleteActivity(ctx context.Context, id string) error
	CountActivityAscents(ctx context.Context, activityID string) (int, error)
	InsertAscent(ctx context.Context, a store.Ascent) error
	GetAscent(ctx context.Context, id string) (store.Ascent, error)
	DeleteAscent(ctx context.Context, id string) error
	SectorAscents(ctx context.Context, sectorID string) ([]store.Ascent, error)
	SetAscentActivity(ctx context.Context, ascentID, activityID string) error

	FindComments(ctx context.Context, f store.CommentFilter) ([]store.Comment, error)
	ExposedWarnings(ctx context.Context, now time.Time) ([]store.Comment, error)
	GetComment(ctx context.Context, id string) (store.Comment, error)
	InsertComment(ctx context.Context, c store.Comment) error
	UpdateComment(ctx context.Context, c store.Comment) error
	DeleteComment(ctx context.Context, id string) error

	FindCountries(ctx context.Context, f query.CountryFilter) ([]store.Country, error)
	GetCountry(ctx context.Context, id string) (store.Country, error)
	GetCountryBySlug(ctx context.Context, slug string) (store.Country, error)
	InsertCountry(ctx context.Context, c store.Country) error
	UpdateCountry(ctx context.Context, c store.Country) error
	DeleteCountry(ctx context.Context, id string) error
	GetPeakBySlug(ctx context.Context, slug string) (store.Peak, error)
	CountPeakCrags(ctx context.Context, peakID string, viewer query.Viewer) (int, error)
	IceFalls(ctx context.Context, countryID string, areaSlug *string) ([]store.IceFall, error)
	CountIceFalls(ctx context.Context, countryID string) (int, error)
	GetIceFall(ctx context.Context, id string) (store.IceFall, error)

	InsertClub(ctx context.Context, c store.Club) error
	GetClub(ctx context.Context, id string) (store.Club, error)
	ClubSlugExists(ctx context.Context, slug string) (bool, error)
	GetClubMember(ctx context.Context, id string) (store.ClubMember, error)
	ClubMembership(ctx context.Context, clubID, userID string) (store.ClubMember, error)
	InsertClubMember(ctx context.Context, m store.ClubMember) error
	DeleteClubMember(ctx context.Context, id string) error
}

// Store is a Repository that can also run a function inside one
// transaction. Any error returned by fn rolls the transaction back.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(tx Repository) error) error
	Ping(ctx context.Context) error
}

type postgresStore struct {
	*store.PostgresStore
}

// NewPostgresStore adapts the Postgres store to Store.
func NewPostgresStore(pg *store.PostgresStore) Store {
	return postgresStore{PostgresStore: pg}
}

func (p postgresStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	return p.PostgresStore.InTx(ctx, func(r *store.Repo) error { return fn(r) })
}

type sectorPositions struct{ tx Repository }

func (s sectorPositions) Following(ctx context.Context, cragID string, from int, excludeID string) ([]position.Sibling, error) {
	return s.tx.FollowingSectors(ctx, cragID, from, excludeID)
}

func (s sectorPositions) SetPosition(ctx context.Context, id string, pos int) error {
	return s.tx.SetSectorPosition(ctx, id, pos)
}

type routePositions struct{ tx Repository }

func (r routePositions) Following(ctx context.Context, sectorID string, from int, excludeID string) ([]position.Sibling, error) {
	return r.tx.FollowingRoutes(ctx, sectorID, from, excludeID)
}

func (r routePositions) SetPosition(ctx context.Context, id string, pos int) error {
	return r.tx.SetRoutePosition(ctx, id, pos)
}
