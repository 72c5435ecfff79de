package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"cragdb/api/internal/logging"
	"cragdb/api/internal/metrics"
	"cragdb/api/internal/query"
	"cragdb/api/internal/search"
	"cragdb/api/internal/store"
)

type HTTPServer struct {
	service *Service
	log     *logrus.Entry
}

func NewHTTPServer(service *Service, log *logrus.Entry) *HTTPServer {
	return &HTTPServer{service: service, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.routes())
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	if s.service.cfg.MetricsEnabled {
		r.Handle(s.service.cfg.MetricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.observeRoute, s.withSession)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)

	api.HandleFunc("/countries", s.handleFindCountries).Methods(http.MethodGet)
	api.HandleFunc("/countries", s.handleCreateCountry).Methods(http.MethodPost)
	api.HandleFunc("/countries/{slug}", s.handleCountryBySlug).Methods(http.MethodGet)
	api.HandleFunc("/countries/{id}", s.handleUpdateCountry).Methods(http.MethodPut)
	api.HandleFunc("/countries/{id}", s.handleDeleteCountry).Methods(http.MethodDelete)
	api.HandleFunc("/countries/{id}/ice-falls", s.handleIceFalls).Methods(http.MethodGet)
	api.HandleFunc("/countries/{id}/ice-falls/count", s.handleCountIceFalls).Methods(http.MethodGet)

	api.HandleFunc("/peaks/{slug}", s.handlePeakBySlug).Methods(http.MethodGet)
	api.HandleFunc("/peaks/{id}/crags", s.handlePeakCrags).Methods(http.MethodGet)

	api.HandleFunc("/crags", s.handleFindCrags).Methods(http.MethodGet)
	api.HandleFunc("/crags", s.handleCreateCrag).Methods(http.MethodPost)
	api.HandleFunc("/crags/popular", s.handlePopularCrags).Methods(http.MethodGet)
	api.HandleFunc("/crags/{slug}", s.handleCragBySlug).Methods(http.MethodGet)
	api.HandleFunc("/crags/{id}", s.handleUpdateCrag).Methods(http.MethodPut)
	api.HandleFunc("/crags/{id}", s.handleDeleteCrag).Methods(http.MethodDelete)
	api.HandleFunc("/crags/{id}/route-count", s.handleCragRouteCount).Methods(http.MethodGet)
	api.HandleFunc("/crags/{id}/activity-by-month", s.handleActivityByMonth).Methods(http.MethodGet)
	api.HandleFunc("/crags/{id}/sectors", s.handleCragSectors).Methods(http.MethodGet)
	api.HandleFunc("/crags/{id}/comments", s.handleCragComments).Methods(http.MethodGet)
	api.HandleFunc("/crags/{cragSlug}/routes/{routeSlug}", s.handleRouteBySlugs).Methods(http.MethodGet)

	api.HandleFunc("/sectors", s.handleCreateSector).Methods(http.MethodPost)
	api.HandleFunc("/sectors/{id}", s.handleUpdateSector).Methods(http.MethodPut)
	api.HandleFunc("/sectors/{id}", s.handleDeleteSector).Methods(http.MethodDelete)
	api.HandleFunc("/sectors/{id}/move", s.handleMoveSector).Methods(http.MethodPost)
	api.HandleFunc("/sectors/{id}/routes", s.handleSectorRoutes).Methods(http.MethodGet)
	api.HandleFunc("/sectors/{id}/boulders-only", s.handleBouldersOnly).Methods(http.MethodGet)

	api.HandleFunc("/routes", s.handleCreateRoute).Methods(http.MethodPost)
	api.HandleFunc("/routes/stats", s.handleRouteStats).Methods(http.MethodPost)
	api.HandleFunc("/routes/{id}", s.handleUpdateRoute).Methods(http.MethodPut)
	api.HandleFunc("/routes/{id}", s.handleDeleteRoute).Methods(http.MethodDelete)
	api.HandleFunc("/routes/{id}/comments", s.handleRouteComments).Methods(http.MethodGet)
	api.HandleFunc("/routes/{id}/difficulty-votes", s.handleDifficultyVotes).Methods(http.MethodGet)

	api.HandleFunc("/ascents", s.handleLogAscent).Methods(http.MethodPost)
	api.HandleFunc("/ascents/{id}", s.handleDeleteAscent).Methods(http.MethodDelete)

	api.HandleFunc("/comments", s.handleFindComments).Methods(http.MethodGet)
	api.HandleFunc("/comments", s.handleCreateComment).Methods(http.MethodPost)
	api.HandleFunc("/comments/{id}", s.handleUpdateComment).Methods(http.MethodPut)
	api.HandleFunc("/comments/{id}", s.handleDeleteComment).Methods(http.MethodDelete)
	api.HandleFunc("/warnings", s.handleWarnings).Methods(http.MethodGet)

	api.HandleFunc("/clubs", s.handleCreateClub).Methods(http.MethodPost)
	api.HandleFunc("/clubs/{id}/members", s.handleAddClubMember).Methods(http.MethodPost)
	api.HandleFunc("/club-members/{id}", s.handleRemoveClubMember).Methods(http.MethodDelete)

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:            r.URL.Query().Get("q"),
		FilterType:      search.ResultType(r.URL.Query().Get("type")),
		FilterCountryID: r.URL.Query().Get("countryId"),
		Limit:           intQuery(r, "limit", 20),
		Offset:          intQuery(r, "offset", 0),
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.Me(r.Context(), sessionFrom(r))
	s.respond(w, r, http.StatusOK, user, err)
}

func (s *HTTPServer) handleFindCountries(w http.ResponseWriter, r *http.Request) {
	f := query.CountryFilter{HasCrags: boolQuery(r, "hasCrags"), HasPeaks: boolQuery(r, "hasPeaks")}
	if field := optionalQuery(r, "orderBy"); field != nil {
		f.OrderBy = &query.CountryOrder{Field: *field, Direction: r.URL.Query().Get("direction")}
	}
	countries, err := s.service.FindCountries(r.Context(), f)
	s.respond(w, r, http.StatusOK, countries, err)
}

func (s *HTTPServer) handleCreateCountry(w http.ResponseWriter, r *http.Request) {
	var input CountryInput
	if !decodeInto(w, r, &input) {
		return
	}
	country, err := s.service.CreateCountry(r.Context(), sessionFrom(r), input)
	s.respond(w, r, http.StatusCreated, country, err)
}

func (s *HTTPServer) handleCountryBySlug(w http.ResponseWriter, r *http.Request) {
	country, err := s.service.CountryBySlug(r.Context(), mux.Vars(r)["slug"])
	s.respond(w, r, http.StatusOK, country, err)
}

func (s *HTTPServer) handleUpdateCountry(w http.ResponseWriter, r *http.Request) {
	var input CountryInput
	if !decodeInto(w, r, &input) {
		return
	}
	country, err := s.service.UpdateCountry(r.Context(), sessionFrom(r), mux.Vars(r)["id"], input)
	s.respond(w, r, http.StatusOK, country, err)
}

func (s *HTTPServer) handleDeleteCountry(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteCountry(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleIceFalls(w http.ResponseWriter, r *http.Request) {
	iceFalls, err := s.service.IceFalls(r.Context(), mux.Vars(r)["id"], optionalQuery(r, "areaSlug"))
	s.respond(w, r, http.StatusOK, iceFalls, err)
}

func (s *HTTPServer) handleCountIceFalls(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.CountIceFalls(r.Context(), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"count": count}, err)
}

func (s *HTTPServer) handlePeakBySlug(w http.ResponseWriter, r *http.Request) {
	peak, err := s.service.PeakBySlug(r.Context(), sessionFrom(r), mux.Vars(r)["slug"])
	s.respond(w, r, http.StatusOK, peak, err)
}

func (s *HTTPServer) handlePeakCrags(w http.ResponseWriter, r *http.Request) {
	crags, err := s.service.PeakCrags(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, crags, err)
}

func (s *HTTPServer) handleFindCrags(w http.ResponseWriter, r *http.Request) {
	f := query.CragFilter{
		CountryID:   optionalQuery(r, "countryId"),
		AreaID:      optionalQuery(r, "areaId"),
		AreaSlug:    optionalQuery(r, "areaSlug"),
		PeakID:      optionalQuery(r, "peakId"),
		Type:        optionalQuery(r, "type"),
		RouteTypeID: optionalQuery(r, "routeTypeId"),
	}
	crags, err := s.service.FindCrags(r.Context(), sessionFrom(r), f)
	s.respond(w, r, http.StatusOK, crags, err)
}

func (s *HTTPServer) handleCreateCrag(w http.ResponseWriter, r *http.Request) {
	var input CreateCragInput
	if !decodeInto(w, r, &input) {
		return
	}
	crag, err := s.service.CreateCrag(r.Context(), sessionFrom(r), input)
	s.respond(w, r, http.StatusCreated, crag, err)
}

func (s *HTTPServer) handlePopularCrags(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "since must be YYYY-MM-DD", nil)
			return
		}
		since = &parsed
	}
	includeHidden := boolQuery(r, "includeHidden")
	crags, err := s.service.PopularCrags(r.Context(), sessionFrom(r), since, intQuery(r, "top", 0), includeHidden != nil && *includeHidden)
	s.respond(w, r, http.StatusOK, crags, err)
}

func (s *HTTPServer) handleCragBySlug(w http.ResponseWriter, r *http.Request) {
	crag, err := s.service.CragBySlug(r.Context(), sessionFrom(r), mux.Vars(r)["slug"])
	s.respond(w, r, http.StatusOK, crag, err)
}

func (s *HTTPServer) handleUpdateCrag(w http.ResponseWriter, r *http.Request) {
	var input UpdateCragInput
	if !decodeInto(w, r, &input) {
		return
	}
	crag, err := s.service.UpdateCrag(r.Context(), sessionFrom(r), mux.Vars(r)["id"], input)
	s.respond(w, r, http.StatusOK, crag, err)
}

func (s *HTTPServer) handleDeleteCrag(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteCrag(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleCragRouteCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.CountCragRoutes(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"count": count}, err)
}

func (s *HTTPServer) handleActivityByMonth(w http.ResponseWriter, r *http.Request) {
	months, err := s.service.ActivityByMonth(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, months, err)
}

func (s *HTTPServer) handleCragSectors(w http.ResponseWriter, r *http.Request) {
	cragID := mux.Vars(r)["id"]
	sectors, err := s.service.FindSectors(r.Context(), sessionFrom(r), query.SectorFilter{CragID: &cragID})
	s.respond(w, r, http.StatusOK, sectors, err)
}

func (s *HTTPServer) handleCragComments(w http.ResponseWriter, r *http.Request) {
	cragID := mux.Vars(r)["id"]
	comments, err := s.service.FindComments(r.Context(), store.CommentFilter{CragID: &cragID, Type: optionalQuery(r, "type")})
	s.respond(w, r, http.StatusOK, comments, err)
}

func (s *HTTPServer) handleRouteBySlugs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	route, err := s.service.RouteBySlugs(r.Context(), sessionFrom(r), vars["cragSlug"], vars["routeSlug"])
	s.respond(w, r, http.StatusOK, route, err)
}

func (s *HTTPServer) handleCreateSector(w http.ResponseWriter, r *http.Request) {
	var input CreateSectorInput
	if !decodeInto(w, r, &input) {
		return
	}
	sector, err := s.service.CreateSector(r.Context(), sessionFrom(r), input)
	s.respond(w, r, http.StatusCreated, sector, err)
}

func (s *HTTPServer) handleUpdateSector(w http.ResponseWriter, r *http.Request) {
	var input UpdateSectorInput
	if !decodeInto(w, r, &input) {
		return
	}
	sector, err := s.service.UpdateSector(r.Context(), sessionFrom(r), mux.Vars(r)["id"], input)
	s.respond(w, r, http.StatusOK, sector, err)
}

func (s *HTTPServer) handleDeleteSector(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteSector(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleMoveSector(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CragID string `json:"cragId"`
	}
	if !decodeInto(w, r, &body) {
		return
	}
	sector, err := s.service.MoveSectorToCrag(r.Context(), sessionFrom(r), mux.Vars(r)["id"], body.CragID)
	s.respond(w, r, http.StatusOK, sector, err)
}

func (s *HTTPServer) handleSectorRoutes(w http.ResponseWriter, r *http.Request) {
	sectorID := mux.Vars(r)["id"]
	routes, err := s.service.FindRoutes(r.Context(), sessionFrom(r), query.RouteFilter{SectorID: &sectorID, RouteTypeID: optionalQuery(r, "routeTypeId")})
	s.respond(w, r, http.StatusOK, routes, err)
}

func (s *HTTPServer) handleBouldersOnly(w http.ResponseWriter, r *http.Request) {
	only, err := s.service.SectorBouldersOnly(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"bouldersOnly": only}, err)
}

func (s *HTTPServer) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var input CreateRouteInput
	if !decodeInto(w, r, &input) {
		return
	}
	route, err := s.service.CreateRoute(r.Context(), sessionFrom(r), input)
	s.respond(w, r, http.StatusCreated, route, err)
}

func (s *HTTPServer) handleRouteStats(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RouteIDs []string `json:"routeIds"`
	}
	if !decodeInto(w, r, &body) {
		return
	}
	stats, err := s.service.RouteStats(r.Context(), body.RouteIDs)
	s.respond(w, r, http.StatusOK, stats, err)
}

func (s *HTTPServer) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	var input UpdateRouteInput
	if !decodeInto(w, r, &input) {
		return
	}
	route, err := s.service.UpdateRoute(r.Context(), sessionFrom(r), mux.Vars(r)["id"], input)
	s.respond(w, r, http.StatusOK, route, err)
}

func (s *HTTPServer) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteRoute(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleRouteComments(w http.ResponseWriter, r *http.Request) {
	routeID := mux.Vars(r)["id"]
	comments, err := s.service.FindComments(r.Context(), store.CommentFilter{RouteID: &routeID, Type: optionalQuery(r, "type")})
	s.respond(w, r, http.StatusOK, comments, err)
}

func (s *HTTPServer) handleDifficultyVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := s.service.DifficultyVotes(r.Context(), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, votes, err)
}

func (s *HTTPServer) handleLogAscent(w http.ResponseWriter, r *http.Request) {
	var input LogAscentInput
	if !decodeInto(w, r, &input) {
		return
	}
	logged, err := s.service.LogAscent(r.Context(), sessionFrom(r), input)
	s.respond(w, r, http.StatusCreated, logged, err)
}

func (s *HTTPServer) handleDeleteAscent(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteAscent(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleFindComments(w http.ResponseWriter, r *http.Request) {
	f := store.CommentFilter{
		RouteID:   optionalQuery(r, "routeId"),
		CragID:    optionalQuery(r, "cragId"),
		IceFallID: optionalQuery(r, "iceFallId"),
		Type:      optionalQuery(r, "type"),
	}
	if ids := r.URL.Query()["routeIds"]; len(ids) > 0 {
		f.RouteIDs = ids
	}
	comments, err := s.service.FindComments(r.Context(), f)
	s.respond(w, r, http.StatusOK, comments, err)
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var input CreateCommentInput
	if !decodeInto(w, r, &input) {
		return
	}
	comment, err := s.service.CreateComment(r.Context(), sessionFrom(r), input)
	s.respond(w, r, http.StatusCreated, comment, err)
}

func (s *HTTPServer) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	var input UpdateCommentInput
	if !decodeInto(w, r, &input) {
		return
	}
	comment, err := s.service.UpdateComment(r.Context(), sessionFrom(r), mux.Vars(r)["id"], input)
	s.respond(w, r, http.StatusOK, comment, err)
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteComment(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := s.service.ExposedWarnings(r.Context())
	s.respond(w, r, http.StatusOK, warnings, err)
}

func (s *HTTPServer) handleCreateClub(w http.ResponseWriter, r *http.Request) {
	var input CreateClubInput
	if !decodeInto(w, r, &input) {
		return
	}
	club, err := s.service.CreateClub(r.Context(), sessionFrom(r), input)
	s.respond(w, r, http.StatusCreated, club, err)
}

func (s *HTTPServer) handleAddClubMember(w http.ResponseWriter, r *http.Request) {
	var input AddClubMemberInput
	if !decodeInto(w, r, &input) {
		return
	}
	member, err := s.service.AddClubMember(r.Context(), sessionFrom(r), mux.Vars(r)["id"], input)
	s.respond(w, r, http.StatusCreated, member, err)
}

func (s *HTTPServer) handleRemoveClubMember(w http.ResponseWriter, r *http.Request) {
	err := s.service.RemoveClubMember(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

// respond writes payload, or the mapped error when err is set.
func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err == nil {
		writeJSON(w, status, payload)
		return
	}
	code, errCode, message, details := mapError(err)
	if code >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("request failed")
	}
	writeError(w, code, errCode, message, details)
}

type sessionKey struct{}

func sessionFrom(r *http.Request) Session {
	session, _ := r.Context().Value(sessionKey{}).(Session)
	return session
}

// withSession attaches the caller's session. Requests without a token run
// anonymously; a bad token is rejected outright.
func (s *HTTPServer) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = errUnauthorized
			}
			s.respond(w, r, 0, nil, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithField("user_id", session.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observeRoute records request counts and latency by route template.
func (s *HTTPServer) observeRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)

		collectors := metrics.Get()
		collectors.HTTPRequests.WithLabelValues(route, strconv.Itoa(writer.status)).Inc()
		collectors.HTTPLatency.WithLabelValues(route).Observe(time.Since(started).Seconds())
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		entry := s.log.WithField("request_id", requestID)
		r = r.WithContext(logging.WithLogger(r.Context(), entry))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.service.cfg.CORSOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		entry.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func decodeInto(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func optionalQuery(r *http.Request, key string) *string {
	if !r.URL.Query().Has(key) {
		return nil
	}
	value := r.URL.Query().Get(key)
	return &value
}

func boolQuery(r *http.Request, key string) *bool {
	raw := optionalQuery(r, key)
	if raw == nil {
		return nil
	}
	value, err := strconv.ParseBool(*raw)
	if err != nil {
		return nil
	}
	return &value
}

func intQuery(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return value
}
