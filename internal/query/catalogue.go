package query

import (
	"fmt"
	"strings"
	"time"

	"cragdb/api/internal/publish"
)

var (
	CragFields    = []string{"id", "name", "slug", "type", "lat", "lon", "country_id", "area_id", "peak_id", "is_hidden", "publish_status", "user_id", "created_at", "updated_at"}
	SectorFields  = []string{"id", "crag_id", "name", "label", "position", "publish_status", "user_id", "created_at", "updated_at"}
	RouteFields   = []string{"id", "crag_id", "sector_id", "route_type_id", "name", "slug", "difficulty", "length", "author", "is_project", "position", "publish_status", "user_id", "created_at", "updated_at"}
	CountryFields = []string{"id", "name", "code", "slug"}
)

// Columns qualifies fields with alias.
func Columns(alias string, fields []string) []string {
	out := make([]string, len(fields))
	for i, field := range fields {
		out[i] = alias + "." + field
	}
	return out
}

// TickTypes are the ascent types that count as a completed ascent.
var TickTypes = []string{"redpoint", "flash", "onsight", "repeat"}

type CragFilter struct {
	ID        *string
	Slug      *string
	CountryID *string
	AreaID    *string
	AreaSlug  *string
	PeakID    *string
	Type      *string
	// RouteTypeID keeps crags with a visible route of that type. It filters
	// the joined routes, so it is not among Predicates.
	RouteTypeID *string
}

func (f CragFilter) Predicates() []Predicate {
	var out []Predicate
	if f.ID != nil {
		out = append(out, ByID(*f.ID))
	}
	if f.Slug != nil {
		out = append(out, BySlug(*f.Slug))
	}
	if f.CountryID != nil {
		out = append(out, ByCountry(*f.CountryID))
	}
	if f.AreaID != nil {
		out = append(out, ByArea(*f.AreaID))
	}
	if f.AreaSlug != nil {
		out = append(out, ByAreaSlug(*f.AreaSlug))
	}
	if f.PeakID != nil {
		out = append(out, ByPeak(*f.PeakID))
	}
	if f.Type != nil {
		out = append(out, ByCragType(*f.Type))
	}
	return out
}

type SectorFilter struct {
	ID     *string
	CragID *string
}

func (f SectorFilter) Predicates() []Predicate {
	var out []Predicate
	if f.ID != nil {
		out = append(out, ByID(*f.ID))
	}
	if f.CragID != nil {
		out = append(out, ByCrag(*f.CragID))
	}
	return out
}

type RouteFilter struct {
	ID          *string
	Slug        *string
	CragID      *string
	SectorID    *string
	RouteTypeID *string
}

func (f RouteFilter) Predicates() []Predicate {
	var out []Predicate
	if f.ID != nil {
		out = append(out, ByID(*f.ID))
	}
	if f.Slug != nil {
		out = append(out, BySlug(*f.Slug))
	}
	if f.CragID != nil {
		out = append(out, ByCrag(*f.CragID))
	}
	if f.SectorID != nil {
		out = append(out, BySector(*f.SectorID))
	}
	if f.RouteTypeID != nil {
		out = append(out, ByRouteType(*f.RouteTypeID))
	}
	return out
}

// Crags selects crags with a route_count column holding the number of their
// routes visible to viewer. Rows are unordered; callers sort by name.
func Crags(f CragFilter, viewer Viewer) Query {
	b := Select(Columns("c", CragFields)...).
		Columns("COUNT(r.id) AS route_count").
		From("crag", "c")
	routeVisible, args := VisibleCondition("r", viewer)
	b.LeftJoin("route", "r", "r.crag_id = c.id AND "+routeVisible, args...)
	Apply(b, "c", f.Predicates()...)
	if f.RouteTypeID != nil {
		Apply(b, "r", ByRouteType(*f.RouteTypeID))
	}
	Apply(b, "c", Visible{Viewer: viewer})
	if viewer.Anonymous() {
		Apply(b, "c", NotHidden{})
	}
	return b.GroupBy("c.id").Build()
}

// Sectors and Routes leave out the content of hidden crags for anonymous
// viewers.
func Sectors(f SectorFilter, viewer Viewer) Query {
	b := Select(Columns("s", SectorFields)...).From("sector", "s")
	if viewer.Anonymous() {
		b.Join("crag", "c", "c.id = s.crag_id")
	}
	Apply(b, "s", f.Predicates()...)
	Apply(b, "s", Visible{Viewer: viewer})
	if viewer.Anonymous() {
		Apply(b, "c", NotHidden{})
	}
	return b.OrderBy("s.position", "s.name").Build()
}

func Routes(f RouteFilter, viewer Viewer) Query {
	b := Select(Columns("r", RouteFields)...).
		From("route", "r").
		Join("sector", "s", "s.id = r.sector_id")
	if viewer.Anonymous() {
		b.Join("crag", "c", "c.id = r.crag_id")
	}
	Apply(b, "r", f.Predicates()...)
	Apply(b, "r", Visible{Viewer: viewer})
	if viewer.Anonymous() {
		Apply(b, "c", NotHidden{})
	}
	return b.OrderBy("s.position", "r.position").Build()
}

// RouteBySlugs finds a route by its crag's slug and its own slug. Both the
// route and the crag must be visible to viewer.
func RouteBySlugs(cragSlug, routeSlug string, viewer Viewer) Query {
	b := Select(Columns("r", RouteFields)...).
		From("route", "r").
		Join("crag", "c", "c.id = r.crag_id")
	Apply(b, "r", BySlug(routeSlug), Visible{Viewer: viewer})
	Apply(b, "c", BySlug(cragSlug), Visible{Viewer: viewer})
	if viewer.Anonymous() {
		Apply(b, "c", NotHidden{})
	}
	return b.Build()
}

// RouteCount counts the routes of a crag visible to viewer.
func RouteCount(cragID string, viewer Viewer) Query {
	b := Select("COUNT(DISTINCT r.id)").From("route", "r")
	Apply(b, "r", ByCrag(cragID), Visible{Viewer: viewer})
	return b.Build()
}

// PopularCrags ranks published crags by logged visits, optionally only those
// since a date. top <= 0 means no limit.
func PopularCrags(since *time.Time, top int, includeHidden bool) Query {
	on := "a.crag_id = c.id"
	var args []any
	if since != nil {
		on += " AND a.date >= ?"
		args = append(args, *since)
	}
	b := Select(Columns("c", CragFields)...).
		Columns("COUNT(a.id) AS visits").
		From("crag", "c").
		LeftJoin("activity", "a", on, args...).
		Where("c.publish_status = ?", string(publish.Published))
	if !includeHidden {
		Apply(b, "c", NotHidden{})
	}
	b.GroupBy("c.id").OrderBy("visits DESC", "c.name")
	if top > 0 {
		b.Limit(top)
	}
	return b.Build()
}

// ActivityByMonth counts logged ascents on a crag's routes per calendar
// month. month is zero based.
func ActivityByMonth(cragID string) Query {
	return Select("CAST(EXTRACT(MONTH FROM ar.date) AS int) - 1 AS month", "COUNT(ar.id) AS visits").
		From("activity_route", "ar").
		Join("route", "r", "r.id = ar.route_id").
		Where("r.crag_id = ?", cragID).
		GroupBy("month").
		OrderBy("month").
		Build()
}

// RouteStats returns id, ticks, tries and distinct climbers for each route.
func RouteStats(routeIDs []string) Query {
	tick := "ar.ascent_type IN (" + quoteAll(TickTypes) + ")"
	return Select(
		"r.id",
		"COUNT(ar.id) FILTER (WHERE "+tick+") AS nr_ticks",
		"COUNT(ar.id) AS nr_tries",
		"COUNT(DISTINCT ar.user_id) AS nr_climbers",
	).
		From("route", "r").
		LeftJoin("activity_route", "ar", "ar.route_id = r.id").
		Where("r.id IN ("+Placeholders(len(routeIDs))+")", Values(routeIDs)...).
		GroupBy("r.id").
		Build()
}

type CountryFilter struct {
	OrderBy  *CountryOrder
	HasCrags *bool
	HasPeaks *bool
}

type CountryOrder struct {
	Field     string
	Direction string
}

var countryOrderFields = map[string]string{
	"name":    "co.name",
	"code":    "co.code",
	"nrCrags": "nr_crags",
	"slug":    "co.slug",
}

const countryCragCount = "(SELECT COUNT(*) FROM crag c WHERE c.country_id = co.id AND c.publish_status = 'published')"

// Countries selects countries with nr_crags, the number of published crags.
// Without an explicit order, rows are unordered and callers sort by name.
func Countries(f CountryFilter) (Query, error) {
	b := Select(Columns("co", CountryFields)...).
		Columns(countryCragCount+" AS nr_crags").
		From("country", "co").
		Touch("crag")
	if f.HasCrags != nil && *f.HasCrags {
		b.Where(countryCragCount + " > 0")
	}
	if f.HasPeaks != nil {
		exists := "EXISTS (SELECT 1 FROM peak p WHERE p.country_id = co.id)"
		if !*f.HasPeaks {
			exists = "NOT " + exists
		}
		b.Where(exists).Touch("peak")
	}
	if f.OrderBy != nil {
		field := f.OrderBy.Field
		if field == "" {
			field = "name"
		}
		column, ok := countryOrderFields[field]
		if !ok {
			return Query{}, fmt.Errorf("unsupported country order field %q", field)
		}
		direction := strings.ToUpper(f.OrderBy.Direction)
		switch direction {
		case "":
			direction = "ASC"
		case "ASC", "DESC":
		default:
			return Query{}, fmt.Errorf("unsupported order direction %q", f.OrderBy.Direction)
		}
		b.OrderBy(column + " " + direction)
	}
	return b.Build(), nil
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, value := range values {
		quoted[i] = "'" + strings.ReplaceAll(value, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}
