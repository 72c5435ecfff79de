package app

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"cragdb/api/internal/auth"
	"cragdb/api/internal/config"
	"cragdb/api/internal/logging"
	"cragdb/api/internal/metrics"
	"cragdb/api/internal/query"
	"cragdb/api/internal/rbac"
	"cragdb/api/internal/search"
)

// Session is the authenticated caller. The zero value is anonymous.
type Session struct {
	UserID   string
	UserName string
	Role     string
}

func (s Session) Anonymous() bool {
	return s.UserID == ""
}

func (s Session) viewer() query.Viewer {
	if s.Anonymous() {
		return query.Viewer{}
	}
	return query.Viewer{UserID: s.UserID, Role: string(rbac.Normalize(s.Role))}
}

func (s Session) owner() *string {
	if s.Anonymous() {
		return nil
	}
	id := s.UserID
	return &id
}

func (s Session) can(action rbac.Action) bool {
	if s.Anonymous() {
		return rbac.Can("", action)
	}
	return rbac.Can(rbac.Normalize(s.Role), action)
}

// Searcher is the part of the search service the API uses.
// *search.Service implements it.
type Searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexCrag(c search.CragRecord)
	IndexRoute(r search.RouteRecord)
	RemoveCrag(id string)
	RemoveRoute(id string)
}

type nopSearch struct{}

func (nopSearch) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}
func (nopSearch) IndexCrag(search.CragRecord)   {}
func (nopSearch) IndexRoute(search.RouteRecord) {}
func (nopSearch) RemoveCrag(string)             {}
func (nopSearch) RemoveRoute(string)            {}

type Service struct {
	cfg      config.Config
	store    Store
	search   Searcher
	validate *validator.Validate
	log      *logrus.Entry
	now      func() time.Time
}

// New builds the service. searcher may be nil, in which case search returns
// nothing and index writes are dropped.
func New(cfg config.Config, st Store, searcher Searcher, log *logrus.Entry) *Service {
	if searcher == nil {
		searcher = nopSearch{}
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		cfg:      cfg,
		store:    st,
		search:   searcher,
		validate: validate,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SessionFromToken verifies a bearer token and loads its user. The role comes
// from the database so that demotions apply to tokens already issued.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUser(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: user.ID, UserName: user.FullName, Role: user.Role}, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

// require fails with Unauthorized for anonymous callers and Forbidden for
// callers whose role does not allow action.
func (s *Service) require(session Session, action rbac.Action) error {
	if session.can(action) {
		return nil
	}
	if session.Anonymous() {
		return errUnauthorized
	}
	return forbidden("Forbidden")
}

// check validates input against its validate tags.
func (s *Service) check(input any) error {
	return s.validate.Struct(input)
}

// observe counts a mutation and logs failures with the request logger.
func (s *Service) observe(ctx context.Context, entity, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		logging.FromContext(ctx).WithError(err).WithFields(logrus.Fields{"entity": entity, "op": op}).Debug("mutation failed")
	}
	metrics.Get().Mutations.WithLabelValues(entity, op, result).Inc()
}

func (s *Service) countShifts(ctx context.Context, entity string, moved int) {
	if moved == 0 {
		return
	}
	metrics.Get().PositionShifts.WithLabelValues(entity).Add(float64(moved))
	logging.FromContext(ctx).WithFields(logrus.Fields{"entity": entity, "moved": moved}).Debug("siblings shifted")
}

func (s *Service) countCascade(ctx context.Context, sectors, routes int) {
	if sectors > 0 {
		metrics.Get().CascadeUpdates.WithLabelValues("sector").Add(float64(sectors))
	}
	if routes > 0 {
		metrics.Get().CascadeUpdates.WithLabelValues("route").Add(float64(routes))
	}
	if sectors+routes > 0 {
		logging.FromContext(ctx).WithFields(logrus.Fields{"sectors": sectors, "routes": routes}).Debug("publish status cascaded")
	}
}

// refreshFlag recomputes the contribution flag of owner, if any.
func refreshFlag(ctx context.Context, tx Repository, owner *string) error {
	if owner == nil || *owner == "" {
		return nil
	}
	return tx.RefreshContributionFlag(ctx, *owner)
}

// ownsOrAdmin reports whether session may edit something owned by owner.
func ownsOrAdmin(session Session, owner *string) bool {
	if session.can(rbac.ActionAdmin) {
		return true
	}
	return owner != nil && !session.Anonymous() && *owner == session.UserID
}
