package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"cragdb/api/internal/cache"
	"cragdb/api/internal/publish"
	"cragdb/api/internal/query"
)

func newMockStore(t *testing.T, c cache.Cache) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, c, "sl"), mock
}

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisCacheWithClient(client, time.Minute), mr
}

func cragRow(id, name string, status publish.Status, routeCount int) []driver.Value {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []driver.Value{id, name, id, "sport", nil, nil, "si", nil, nil, false, string(status), nil, now, now, routeCount}
}

func TestInTxRollsBackAfterShift(t *testing.T) {
	s, mock := newMockStore(t, nil)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sector SET position = $2 WHERE id = $1`)).
		WithArgs("s1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(r *Repo) error {
		if err := r.SetSectorPosition(context.Background(), "s1", 2); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxJoinsRollbackFailure(t *testing.T) {
	s, mock := newMockStore(t, nil)
	boom := errors.New("boom")
	lost := errors.New("connection lost")

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(lost)

	err := s.InTx(context.Background(), func(*Repo) error { return boom })
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, lost)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxInvalidatesCacheAfterCommit(t *testing.T) {
	c, _ := newTestCache(t)
	s, mock := newMockStore(t, c)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "sectors-of-c1", []string{"sector"}, []string{"s1"}))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sector SET publish_status = $2`)).
		WithArgs("s1", "published").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InTx(ctx, func(r *Repo) error {
		if err := r.SetSectorStatus(ctx, "s1", publish.Published); err != nil {
			return err
		}
		var ids []string
		found, err := c.Get(ctx, "sectors-of-c1", &ids)
		require.NoError(t, err)
		require.True(t, found, "entry must survive until commit")
		return nil
	})
	require.NoError(t, err)

	var ids []string
	found, err := c.Get(ctx, "sectors-of-c1", &ids)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxKeepsCacheOnRollback(t *testing.T) {
	c, _ := newTestCache(t)
	s, mock := newMockStore(t, c)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "routes", []string{"route"}, 3))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM route WHERE id = $1`)).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.InTx(ctx, func(r *Repo) error {
		if err := r.DeleteRoute(ctx, "r1"); err != nil {
			return err
		}
		return errors.New("later step failed")
	})
	require.Error(t, err)

	var n int
	found, err := c.Get(ctx, "routes", &n)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 3, n)
}

func TestGetCragNotFound(t *testing.T) {
	s, mock := newMockStore(t, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM crag c WHERE c.id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(query.CragFields))

	_, err := s.GetCrag(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdateSectorWithoutRowIsNotFound(t *testing.T) {
	s, mock := newMockStore(t, nil)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sector`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateSector(context.Background(), Sector{ID: "s9", CragID: "c1", Name: "Gone", Status: publish.Draft})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInsertCragSlugConflict(t *testing.T) {
	s, mock := newMockStore(t, nil)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO crag`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "crag_slug_key"})

	err := s.InsertCrag(context.Background(), Crag{ID: "c1", Name: "Osp", Slug: "osp", Type: "sport", CountryID: "si", Status: publish.Draft})
	require.ErrorIs(t, err, ErrConflict)
	require.Contains(t, err.Error(), "crag_slug_key")
}

func TestFindCragsReadsThroughCache(t *testing.T) {
	c, mr := newTestCache(t)
	s, mock := newMockStore(t, c)
	ctx := context.Background()
	viewer := query.Viewer{}

	columns := append(append([]string{}, query.CragFields...), "route_count")
	mock.ExpectQuery(`SELECT c\.id, c\.name`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(cragRow("c2", "Črni Kal", publish.Published, 4)...).
			AddRow(cragRow("c1", "Bohinj", publish.Published, 0)...))

	first, err := s.FindCrags(ctx, query.CragFilter{}, viewer)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "Bohinj", first[0].Name)
	require.Equal(t, 4, *first[1].RouteCount)
	require.Equal(t, publish.Published, first[1].Status)

	// served from redis, no second query expected
	second, err := s.FindCrags(ctx, query.CragFilter{}, viewer)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.NoError(t, mock.ExpectationsWereMet())

	require.True(t, mr.Exists("t:crag"))
	require.True(t, mr.Exists("t:route"))
}

func TestActivityByMonthFillsBuckets(t *testing.T) {
	s, mock := newMockStore(t, nil)

	mock.ExpectQuery(`FROM activity_route`).
		WillReturnRows(sqlmock.NewRows([]string{"month", "visits"}).AddRow(0, 3).AddRow(6, 11))

	buckets, err := s.ActivityByMonth(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, []int{3, 0, 0, 0, 0, 0, 11, 0, 0, 0, 0, 0}, buckets)
}

func TestFollowingSectors(t *testing.T) {
	s, mock := newMockStore(t, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE crag_id = $1 AND position >= $2 AND id <> $3`)).
		WithArgs("c1", 2, "new").
		WillReturnRows(sqlmock.NewRows([]string{"id", "position"}).AddRow("s1", 2).AddRow("s2", 3))

	siblings, err := s.FollowingSectors(context.Background(), "c1", 2, "new")
	require.NoError(t, err)
	require.Len(t, siblings, 2)
	require.Equal(t, "s2", siblings[1].ID)
	require.Equal(t, 3, siblings[1].Position)
}

func TestRouteStatsSkipsQueryForNoRoutes(t *testing.T) {
	s, mock := newMockStore(t, nil)

	stats, err := s.RouteStats(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshContributionFlag(t *testing.T) {
	s, mock := newMockStore(t, nil)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET has_unpublished_contributions`)).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.RefreshContributionFlag(context.Background(), "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectorBouldersOnlyCountsOtherRoutes(t *testing.T) {
	s, mock := newMockStore(t, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) = 0`)).
		WithArgs("empty").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE sector_id = $1 AND route_type_id <> 'boulder'`)).
		WithArgs("mixed").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(false))

	empty, err := s.SectorBouldersOnly(context.Background(), "empty")
	require.NoError(t, err)
	require.True(t, empty)

	mixed, err := s.SectorBouldersOnly(context.Background(), "mixed")
	require.NoError(t, err)
	require.False(t, mixed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCragRoutesIgnoresVisibility(t *testing.T) {
	s, mock := newMockStore(t, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM route r WHERE r.crag_id = $1 ORDER BY`)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(query.RouteFields))

	routes, err := s.CragRoutes(context.Background(), "c1")
	require.NoError(t, err)
	require.Empty(t, routes)
	require.NoError(t, mock.ExpectationsWereMet())
}
