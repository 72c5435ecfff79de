package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestRebindSkipsQuotedLiterals(t *testing.T) {
	got := Rebind("a = ? AND b = '?' AND c IN (?, ?)")
	require.Equal(t, "a = $1 AND b = '?' AND c IN ($2, $3)", got)
}

func TestSectorsQuery(t *testing.T) {
	q := Sectors(SectorFilter{CragID: ptr("c1")}, Viewer{})

	require.Equal(t,
		"SELECT s.id, s.crag_id, s.name, s.label, s.position, s.publish_status, s.user_id, s.created_at, s.updated_at "+
			"FROM sector s JOIN crag c ON c.id = s.crag_id "+
			"WHERE s.crag_id = $1 AND s.publish_status IN ($2) AND c.is_hidden = false ORDER BY s.position, s.name",
		q.SQL)
	require.Equal(t, []any{"c1", "published"}, q.Args)
	require.Equal(t, []string{"crag", "sector"}, q.Tables)

	signedIn := Sectors(SectorFilter{CragID: ptr("c1")}, Viewer{UserID: "u1", Role: "user"})
	require.NotContains(t, signedIn.SQL, "JOIN crag")
	require.Equal(t, []string{"sector"}, signedIn.Tables)
}

func TestRoutesSkipHiddenCragsForAnonymousViewer(t *testing.T) {
	q := Routes(RouteFilter{SectorID: ptr("s1")}, Viewer{})
	require.Contains(t, q.SQL, "JOIN sector s ON s.id = r.sector_id JOIN crag c ON c.id = r.crag_id")
	require.Contains(t, q.SQL, "r.sector_id = $1 AND r.publish_status IN ($2) AND c.is_hidden = false ORDER BY")
	require.Equal(t, []string{"crag", "route", "sector"}, q.Tables)
}

func TestVisibleConditionIncludesOwnEntities(t *testing.T) {
	condition, args := VisibleCondition("r", Viewer{UserID: "u1", Role: "editor"})
	require.Equal(t, "(r.publish_status IN (?, ?) OR r.user_id = ?)", condition)
	require.Equal(t, []any{"proposal", "published", "u1"}, args)
}

func TestAbsentFiltersAddNoPredicate(t *testing.T) {
	require.Empty(t, CragFilter{}.Predicates())
	require.Empty(t, RouteFilter{}.Predicates())

	q := Crags(CragFilter{}, Viewer{UserID: "u1", Role: "admin"})
	require.Contains(t, q.SQL, "WHERE (c.publish_status IN ($6, $7, $8, $9) OR c.user_id = $10) GROUP BY c.id")
	require.NotContains(t, q.SQL, "is_hidden = false")
	require.Len(t, q.Args, 10)
}

func TestCragsQueryForAnonymousViewer(t *testing.T) {
	q := Crags(CragFilter{CountryID: ptr("si"), AreaSlug: ptr("julijske-alpe")}, Viewer{})

	require.Contains(t, q.SQL, "COUNT(r.id) AS route_count")
	require.Contains(t, q.SQL, "LEFT JOIN route r ON r.crag_id = c.id AND r.publish_status IN ($1)")
	require.Contains(t, q.SQL, "c.country_id = $2 AND c.area_id IN (SELECT id FROM area WHERE slug = $3)")
	require.Contains(t, q.SQL, "c.publish_status IN ($4) AND c.is_hidden = false GROUP BY c.id")
	require.Equal(t, []any{"published", "si", "julijske-alpe", "published"}, q.Args)
	require.Equal(t, []string{"area", "crag", "route"}, q.Tables)
}

func TestCragsByRouteTypeFiltersJoinedRoutes(t *testing.T) {
	q := Crags(CragFilter{CountryID: ptr("si"), RouteTypeID: ptr("boulder")}, Viewer{})

	require.Contains(t, q.SQL, "WHERE c.country_id = $2 AND r.route_type_id = $3 AND c.publish_status IN ($4)")
	require.Equal(t, []any{"published", "si", "boulder", "published"}, q.Args)
	require.Empty(t, CragFilter{RouteTypeID: ptr("boulder")}.Predicates())
}

func TestRouteBySlugsChecksVisibility(t *testing.T) {
	q := RouteBySlugs("osp", "mala-ribica", Viewer{})
	require.Contains(t, q.SQL, "r.slug = $1 AND r.publish_status IN ($2) AND c.slug = $3 AND c.publish_status IN ($4) AND c.is_hidden = false")
	require.Equal(t, []any{"mala-ribica", "published", "osp", "published"}, q.Args)
}

func TestPopularCrags(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := PopularCrags(&since, 5, false)

	require.Contains(t, q.SQL, "LEFT JOIN activity a ON a.crag_id = c.id AND a.date >= $1")
	require.Contains(t, q.SQL, "ORDER BY visits DESC, c.name LIMIT $3")
	require.Contains(t, q.SQL, "c.is_hidden = false")
	require.Equal(t, []any{since, "published", 5}, q.Args)

	all := PopularCrags(nil, 0, true)
	require.NotContains(t, all.SQL, "LIMIT")
	require.NotContains(t, all.SQL, "c.is_hidden = false")
}

func TestRouteStatsCountsOnlyTicks(t *testing.T) {
	q := RouteStats([]string{"r1", "r2"})
	require.Contains(t, q.SQL, "FILTER (WHERE ar.ascent_type IN ('redpoint', 'flash', 'onsight', 'repeat'))")
	require.Contains(t, q.SQL, "r.id IN ($1, $2)")
	require.Equal(t, []string{"activity_route", "route"}, q.Tables)
}

func TestCountriesQuery(t *testing.T) {
	yes, no := true, false
	q, err := Countries(CountryFilter{HasCrags: &yes, HasPeaks: &no, OrderBy: &CountryOrder{Field: "nrCrags", Direction: "desc"}})
	require.NoError(t, err)
	require.Contains(t, q.SQL, "> 0 AND NOT EXISTS (SELECT 1 FROM peak p WHERE p.country_id = co.id)")
	require.Contains(t, q.SQL, "ORDER BY nr_crags DESC")
	require.Equal(t, []string{"country", "crag", "peak"}, q.Tables)

	_, err = Countries(CountryFilter{OrderBy: &CountryOrder{Field: "id; DROP TABLE crag"}})
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := Query{SQL: "SELECT 1\n  FROM crag c WHERE c.id = $1", Args: []any{"x"}}
	b := Query{SQL: "SELECT 1 FROM crag c   WHERE c.id = $1", Args: []any{"x"}}
	c := Query{SQL: "SELECT 1 FROM crag c WHERE c.id = $1", Args: []any{"y"}}

	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	require.Equal(t, Crags(CragFilter{}, Viewer{}).Fingerprint(), Crags(CragFilter{}, Viewer{}).Fingerprint())
}

func TestSortByName(t *testing.T) {
	names := []string{"Zagorje", "Čadež", "Cvetje", "apnenec", "Bohinj"}

	sl := append([]string(nil), names...)
	SortByName(sl, func(s string) string { return s }, "sl")
	require.Equal(t, []string{"apnenec", "Bohinj", "Cvetje", "Čadež", "Zagorje"}, sl)

	en := append([]string(nil), names...)
	SortByName(en, func(s string) string { return s }, "en")
	require.Equal(t, []string{"apnenec", "Bohinj", "Čadež", "Cvetje", "Zagorje"}, en)
}
