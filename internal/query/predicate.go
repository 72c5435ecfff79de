package query

import (
	"cragdb/api/internal/publish"
)

// Viewer is the caller a read is evaluated for. The zero value is anonymous.
type Viewer struct {
	UserID string
	Role   string
}

func (v Viewer) Anonymous() bool {
	return v.UserID == ""
}

func (v Viewer) MinStatus() publish.Status {
	if v.Anonymous() {
		return publish.MinimumFor("")
	}
	return publish.MinimumFor(v.Role)
}

// VisibleCondition is the baseline visibility rule on alias: status at or
// above the viewer's minimum, or owned by the viewer.
func VisibleCondition(alias string, viewer Viewer) (string, []any) {
	statuses := publish.AtLeast(viewer.MinStatus())
	condition := alias + ".publish_status IN (" + Placeholders(len(statuses)) + ")"
	args := Values(publish.Strings(statuses))
	if viewer.Anonymous() {
		return condition, args
	}
	return "(" + condition + " OR " + alias + ".user_id = ?)", append(args, viewer.UserID)
}

// Predicate is one supported filter, applied to the entity under alias.
type Predicate interface {
	apply(b *Builder, alias string)
}

type (
	ByID        string
	BySlug      string
	ByCountry   string
	ByArea      string
	ByAreaSlug  string
	ByPeak      string
	ByCragType  string
	ByCrag      string
	BySector    string
	ByRouteType string
	NotHidden   struct{}
	Visible     struct{ Viewer Viewer }
)

func (p ByID) apply(b *Builder, alias string)        { b.Where(alias+".id = ?", string(p)) }
func (p BySlug) apply(b *Builder, alias string)      { b.Where(alias+".slug = ?", string(p)) }
func (p ByCountry) apply(b *Builder, alias string)   { b.Where(alias+".country_id = ?", string(p)) }
func (p ByArea) apply(b *Builder, alias string)      { b.Where(alias+".area_id = ?", string(p)) }
func (p ByPeak) apply(b *Builder, alias string)      { b.Where(alias+".peak_id = ?", string(p)) }
func (p ByCragType) apply(b *Builder, alias string)  { b.Where(alias+".type = ?", string(p)) }
func (p ByCrag) apply(b *Builder, alias string)      { b.Where(alias+".crag_id = ?", string(p)) }
func (p BySector) apply(b *Builder, alias string)    { b.Where(alias+".sector_id = ?", string(p)) }
func (p ByRouteType) apply(b *Builder, alias string) { b.Where(alias+".route_type_id = ?", string(p)) }
func (NotHidden) apply(b *Builder, alias string)     { b.Where(alias + ".is_hidden = false") }

func (p ByAreaSlug) apply(b *Builder, alias string) {
	b.Where(alias+".area_id IN (SELECT id FROM area WHERE slug = ?)", string(p))
	b.Touch("area")
}

func (p Visible) apply(b *Builder, alias string) {
	condition, args := VisibleCondition(alias, p.Viewer)
	b.Where(condition, args...)
}

// Apply adds each predicate to b against alias.
func Apply(b *Builder, alias string, predicates ...Predicate) *Builder {
	for _, predicate := range predicates {
		predicate.apply(b, alias)
	}
	return b
}
