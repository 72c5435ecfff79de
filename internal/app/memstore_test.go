package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"

	"cragdb/api/internal/position"
	"cragdb/api/internal/publish"
	"cragdb/api/internal/query"
	"cragdb/api/internal/store"
)

type memState struct {
	users      map[string]store.User
	countries  map[string]store.Country
	crags      map[string]store.Crag
	sectors    map[string]store.Sector
	routes     map[string]store.Route
	pitches    map[string]store.Pitch
	votes      map[string]store.DifficultyVote
	stars      map[string]store.StarRatingVote
	activities map[string]store.Activity
	ascents    map[string]store.Ascent
	comments   map[string]store.Comment
	clubs      map[string]store.Club
	members    map[string]store.ClubMember
}

func (s memState) clone() memState {
	return memState{
		users:      maps.Clone(s.users),
		countries:  maps.Clone(s.countries),
		crags:      maps.Clone(s.crags),
		sectors:    maps.Clone(s.sectors),
		routes:     maps.Clone(s.routes),
		pitches:    maps.Clone(s.pitches),
		votes:      maps.Clone(s.votes),
		stars:      maps.Clone(s.stars),
		activities: maps.Clone(s.activities),
		ascents:    maps.Clone(s.ascents),
		comments:   maps.Clone(s.comments),
		clubs:      maps.Clone(s.clubs),
		members:    maps.Clone(s.members),
	}
}

// memStore keeps the catalogue in maps. InTx restores a snapshot when fn
// fails. Methods the tests never reach fall through to the nil Repository
// and panic.
type memStore struct {
	Repository
	memState
	failOn  map[string]string
	commits int
}

func newMemStore() *memStore {
	return &memStore{
		memState: memState{
			users:      map[string]store.User{},
			countries:  map[string]store.Country{},
			crags:      map[string]store.Crag{},
			sectors:    map[string]store.Sector{},
			routes:     map[string]store.Route{},
			pitches:    map[string]store.Pitch{},
			votes:      map[string]store.DifficultyVote{},
			stars:      map[string]store.StarRatingVote{},
			activities: map[string]store.Activity{},
			ascents:    map[string]store.Ascent{},
			comments:   map[string]store.Comment{},
			clubs:      map[string]store.Club{},
			members:    map[string]store.ClubMember{},
		},
		failOn: map[string]string{},
	}
}

var errInjected = errors.New("injected failure")

// fail returns errInjected when op was set to fail for id ("" matches all).
func (m *memStore) fail(op, id string) error {
	target, ok := m.failOn[op]
	if ok && (target == "" || target == id) {
		return fmt.Errorf("%s %s: %w", op, id, errInjected)
	}
	return nil
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	snapshot := m.memState.clone()
	if err := fn(m); err != nil {
		m.memState = snapshot
		return err
	}
	m.commits++
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func get[T any](items map[string]T, id, what string) (T, error) {
	item, ok := items[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("get %s %s: %w", what, id, store.ErrNotFound)
	}
	return item, nil
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func visible(status publish.Status, owner *string, viewer query.Viewer) bool {
	if status.Rank() >= viewer.MinStatus().Rank() {
		return true
	}
	return !viewer.Anonymous() && owner != nil && *owner == viewer.UserID
}

func (m *memStore) GetUser(_ context.Context, id string) (store.User, error) {
	return get(m.users, id, "user")
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memStore) RefreshContributionFlag(_ context.Context, userID string) error {
	user, ok := m.users[userID]
	if !ok {
		return nil
	}
	owns := func(status publish.Status, owner *string) bool {
		return status.Unpublished() && owner != nil && *owner == userID
	}
	user.HasUnpublishedContributions = false
	for _, c := range m.crags {
		user.HasUnpublishedContributions = user.HasUnpublishedContributions || owns(c.Status, c.UserID)
	}
	for _, s := range m.sectors {
		user.HasUnpublishedContributions = user.HasUnpublishedContributions || owns(s.Status, s.UserID)
	}
	for _, r := range m.routes {
		user.HasUnpublishedContributions = user.HasUnpublishedContributions || owns(r.Status, r.UserID)
	}
	m.users[userID] = user
	return nil
}

func (m *memStore) GetCountry(_ context.Context, id string) (store.Country, error) {
	return get(m.countries, id, "country")
}

func (m *memStore) FindCrags(_ context.Context, f query.CragFilter, viewer query.Viewer) ([]store.Crag, error) {
	var out []store.Crag
	for _, c := range m.crags {
		switch {
		case f.ID != nil && c.ID != *f.ID,
			f.Slug != nil && c.Slug != *f.Slug,
			f.CountryID != nil && c.CountryID != *f.CountryID,
			f.RouteTypeID != nil && !m.hasVisibleRouteOfType(c.ID, *f.RouteTypeID, viewer),
			!visible(c.Status, c.UserID, viewer),
			viewer.Anonymous() && c.IsHidden:
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) hasVisibleRouteOfType(cragID, routeTypeID string, viewer query.Viewer) bool {
	for _, r := range m.routes {
		if r.CragID == cragID && r.RouteTypeID == routeTypeID && visible(r.Status, r.UserID, viewer) {
			return true
		}
	}
	return false
}

func (m *memStore) GetCrag(_ context.Context, id string) (store.Crag, error) {
	return get(m.crags, id, "crag")
}

func (m *memStore) CragSlugExists(_ context.Context, slug, excludeID string) (bool, error) {
	for _, c := range m.crags {
		if c.Slug == slug && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertCrag(_ context.Context, c store.Crag) error {
	if err := m.fail("InsertCrag", c.ID); err != nil {
		return err
	}
	m.crags[c.ID] = c
	return nil
}

func (m *memStore) UpdateCrag(_ context.Context, c store.Crag) error {
	if _, ok := m.crags[c.ID]; !ok {
		return store.ErrNotFound
	}
	m.crags[c.ID] = c
	return nil
}

func (m *memStore) DeleteCrag(_ context.Context, id string) error {
	if _, ok := m.crags[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.crags, id)
	for sid, s := range m.sectors {
		if s.CragID == id {
			delete(m.sectors, sid)
		}
	}
	for rid, r := range m.routes {
		if r.CragID == id {
			delete(m.routes, rid)
		}
	}
	return nil
}

func (m *memStore) GetSector(_ context.Context, id string) (store.Sector, error) {
	return get(m.sectors, id, "sector")
}

func (m *memStore) FindSectors(_ context.Context, f query.SectorFilter, viewer query.Viewer) ([]store.Sector, error) {
	var out []store.Sector
	for _, s := range m.sectors {
		if f.ID != nil && s.ID != *f.ID || f.CragID != nil && s.CragID != *f.CragID || !visible(s.Status, s.UserID, viewer) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) InsertSector(_ context.Context, s store.Sector) error {
	m.sectors[s.ID] = s
	return nil
}

func (m *memStore) UpdateSector(_ context.Context, s store.Sector) error {
	if _, ok := m.sectors[s.ID]; !ok {
		return store.ErrNotFound
	}
	m.sectors[s.ID] = s
	return nil
}

func (m *memStore) DeleteSector(_ context.Context, id string) error {
	if _, ok := m.sectors[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.sectors, id)
	for rid, r := range m.routes {
		if r.SectorID == id {
			delete(m.routes, rid)
		}
	}
	return nil
}

func following(positions map[string]int, from int, excludeID string) []position.Sibling {
	var out []position.Sibling
	for id, pos := range positions {
		if pos >= from && id != excludeID {
			out = append(out, position.Sibling{ID: id, Position: pos})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position == out[j].Position {
			return out[i].ID < out[j].ID
		}
		return out[i].Position < out[j].Position
	})
	return out
}

func (m *memStore) FollowingSectors(_ context.Context, cragID string, from int, excludeID string) ([]position.Sibling, error) {
	positions := map[string]int{}
	for _, s := range m.sectors {
		if s.CragID == cragID {
			positions[s.ID] = s.Position
		}
	}
	return following(positions, from, excludeID), nil
}

func (m *memStore) SetSectorPosition(_ context.Context, id string, pos int) error {
	if err := m.fail("SetSectorPosition", id); err != nil {
		return err
	}
	s := m.sectors[id]
	s.Position = pos
	m.sectors[id] = s
	return nil
}

func (m *memStore) NextSectorPosition(_ context.Context, cragID string) (int, error) {
	next := 1
	for _, s := range m.sectors {
		if s.CragID == cragID && s.Position >= next {
			next = s.Position + 1
		}
	}
	return next, nil
}

func (m *memStore) SectorsWithStatus(_ context.Context, cragID string, status publish.Status, userID *string) ([]string, error) {
	var ids []string
	for _, s := range m.sectors {
		if s.CragID == cragID && s.Status == status && sameOwner(s.UserID, userID) {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) SetSectorStatus(_ context.Context, id string, status publish.Status) error {
	s := m.sectors[id]
	s.Status = status
	m.sectors[id] = s
	return nil
}

func (m *memStore) MoveSectorRoutes(_ context.Context, sectorID, cragID string) error {
	for id, r := range m.routes {
		if r.SectorID == sectorID {
			r.CragID = cragID
			m.routes[id] = r
		}
	}
	return nil
}

func (m *memStore) FindRoutes(_ context.Context, f query.RouteFilter, viewer query.Viewer) ([]store.Route, error) {
	var out []store.Route
	for _, r := range m.routes {
		if f.ID != nil && r.ID != *f.ID || f.CragID != nil && r.CragID != *f.CragID ||
			f.SectorID != nil && r.SectorID != *f.SectorID || !visible(r.Status, r.UserID, viewer) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) GetRoute(_ context.Context, id string) (store.Route, error) {
	return get(m.routes, id, "route")
}

func (m *memStore) SectorRoutes(_ context.Context, sectorID string) ([]store.Route, error) {
	var out []store.Route
	for _, r := range m.routes {
		if r.SectorID == sectorID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) CragRoutes(_ context.Context, cragID string) ([]store.Route, error) {
	var out []store.Route
	for _, r := range m.routes {
		if r.CragID == cragID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteRoute(_ context.Context, id string) error {
	if _, ok := m.routes[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.routes, id)
	return nil
}

func (m *memStore) RouteSlugExists(_ context.Context, cragID, slug, excludeID string) (bool, error) {
	for _, r := range m.routes {
		if r.CragID == cragID && r.Slug == slug && r.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertRoute(_ context.Context, r store.Route) error {
	for _, existing := range m.routes {
		if existing.CragID == r.CragID && existing.Slug == r.Slug {
			return fmt.Errorf("insert route: %w", store.ErrConflict)
		}
	}
	m.routes[r.ID] = r
	return nil
}

func (m *memStore) UpdateRoute(_ context.Context, r store.Route) error {
	if _, ok := m.routes[r.ID]; !ok {
		return store.ErrNotFound
	}
	m.routes[r.ID] = r
	return nil
}

func (m *memStore) SetRouteSlug(_ context.Context, id, slug string) error {
	r := m.routes[id]
	r.Slug = slug
	m.routes[id] = r
	return nil
}

func (m *memStore) FollowingRoutes(_ context.Context, sectorID string, from int, excludeID string) ([]position.Sibling, error) {
	positions := map[string]int{}
	for _, r := range m.routes {
		if r.SectorID == sectorID {
			positions[r.ID] = r.Position
		}
	}
	return following(positions, from, excludeID), nil
}

func (m *memStore) SetRoutePosition(_ context.Context, id string, pos int) error {
	r := m.routes[id]
	r.Position = pos
	m.routes[id] = r
	return nil
}

func (m *memStore) NextRoutePosition(_ context.Context, sectorID string) (int, error) {
	next := 1
	for _, r := range m.routes {
		if r.SectorID == sectorID && r.Position >= next {
			next = r.Position + 1
		}
	}
	return next, nil
}

func (m *memStore) RoutesWithStatus(_ context.Context, sectorID string, status publish.Status, userID *string) ([]string, error) {
	var ids []string
	for _, r := range m.routes {
		if r.SectorID == sectorID && r.Status == status && sameOwner(r.UserID, userID) {
			ids = append(ids, r.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) SetRouteStatus(_ context.Context, id string, status publish.Status) error {
	r := m.routes[id]
	r.Status = status
	m.routes[id] = r
	return nil
}

func (m *memStore) InsertPitch(_ context.Context, p store.Pitch) error {
	m.pitches[p.ID] = p
	return nil
}

func (m *memStore) InsertDifficultyVote(_ context.Context, v store.DifficultyVote) error {
	m.votes[v.ID] = v
	return nil
}

func (m *memStore) UpsertDifficultyVote(_ context.Context, v store.DifficultyVote) error {
	for id, existing := range m.votes {
		if existing.RouteID == v.RouteID && sameOwner(existing.UserID, v.UserID) && !existing.IsBase {
			existing.Difficulty = v.Difficulty
			m.votes[id] = existing
			return nil
		}
	}
	m.votes[v.ID] = v
	return nil
}

func (m *memStore) UpsertStarRatingVote(_ context.Context, v store.StarRatingVote) error {
	m.stars[v.RouteID+"/"+v.UserID] = v
	return nil
}

func (m *memStore) InsertActivity(_ context.Context, a store.Activity) error {
	m.activities[a.ID] = a
	return nil
}

func (m *memStore) GetActivity(_ context.Context, id string) (store.Activity, error) {
	return get(m.activities, id, "activity")
}

func (m *memStore) DeleteActivity(_ context.Context, id string) error {
	delete(m.activities, id)
	for aid, a := range m.ascents {
		if a.ActivityID != nil && *a.ActivityID == id {
			delete(m.ascents, aid)
		}
	}
	return nil
}

func (m *memStore) CountActivityAscents(_ context.Context, activityID string) (int, error) {
	count := 0
	for _, a := range m.ascents {
		if a.ActivityID != nil && *a.ActivityID == activityID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) InsertAscent(_ context.Context, a store.Ascent) error {
	if err := m.fail("InsertAscent", a.ID); err != nil {
		return err
	}
	m.ascents[a.ID] = a
	return nil
}

func (m *memStore) GetAscent(_ context.Context, id string) (store.Ascent, error) {
	return get(m.ascents, id, "ascent")
}

func (m *memStore) DeleteAscent(_ context.Context, id string) error {
	if _, ok := m.ascents[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.ascents, id)
	return nil
}

func (m *memStore) SectorAscents(_ context.Context, sectorID string) ([]store.Ascent, error) {
	var out []store.Ascent
	for _, a := range m.ascents {
		if m.routes[a.RouteID].SectorID == sectorID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SetAscentActivity(_ context.Context, ascentID, activityID string) error {
	a := m.ascents[ascentID]
	a.ActivityID = &activityID
	m.ascents[ascentID] = a
	return nil
}

func (m *memStore) InsertClub(_ context.Context, c store.Club) error {
	m.clubs[c.ID] = c
	return nil
}

func (m *memStore) GetClub(_ context.Context, id string) (store.Club, error) {
	return get(m.clubs, id, "club")
}

func (m *memStore) ClubSlugExists(_ context.Context, slug string) (bool, error) {
	for _, c := range m.clubs {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ClubMembership(_ context.Context, clubID, userID string) (store.ClubMember, error) {
	for _, member := range m.members {
		if member.ClubID == clubID && member.UserID == userID {
			return member, nil
		}
	}
	return store.ClubMember{}, store.ErrNotFound
}

func (m *memStore) InsertClubMember(_ context.Context, member store.ClubMember) error {
	m.members[member.ID] = member
	return nil
}

func (m *memStore) InsertComment(_ context.Context, c store.Comment) error {
	m.comments[c.ID] = c
	return nil
}

func (m *memStore) GetComment(_ context.Context, id string) (store.Comment, error) {
	return get(m.comments, id, "comment")
}

func (m *memStore) UpdateComment(_ context.Context, c store.Comment) error {
	if _, ok := m.comments[c.ID]; !ok {
		return store.ErrNotFound
	}
	m.comments[c.ID] = c
	return nil
}

func (m *memStore) DeleteComment(_ context.Context, id string) error {
	if _, ok := m.comments[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.comments, id)
	return nil
}
