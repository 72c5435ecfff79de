package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cragdb/api/internal/auth"
	"cragdb/api/internal/publish"
)

func tokenFor(t *testing.T, mem *memStore, userID string) string {
	t.Helper()
	user := mem.users[userID]
	token, err := auth.IssueToken([]byte("test-secret"), user.ID, user.FullName, user.Role, "jti-"+user.ID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func serve(t *testing.T, handler http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Body.Len() > 0 && rr.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
		}
	}
	return rr, payload
}

func newTestHandler(mem *memStore) http.Handler {
	return NewHTTPServer(newTestService(mem), quietLog()).Handler()
}

func TestHealthAndReady(t *testing.T) {
	handler := newTestHandler(seededStore())

	rr, payload := serve(t, handler, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK || payload["ok"] != true {
		t.Fatalf("health: %d %v", rr.Code, payload)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}

	rr, payload = serve(t, handler, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK || payload["status"] != "ready" {
		t.Fatalf("ready: %d %v", rr.Code, payload)
	}
}

func TestCragBySlugHidesDrafts(t *testing.T) {
	mem := seededStore()
	mem.addCrag("c1", "osp", publish.Published, "u-editor")
	mem.addCrag("c2", "skrivnost", publish.Draft, "u-user")
	handler := newTestHandler(mem)

	rr, payload := serve(t, handler, http.MethodGet, "/api/crags/osp", "", "")
	if rr.Code != http.StatusOK || payload["id"] != "c1" {
		t.Fatalf("published crag: %d %v", rr.Code, payload)
	}

	rr, payload = serve(t, handler, http.MethodGet, "/api/crags/nope", "", "")
	if rr.Code != http.StatusNotFound || payload["code"] != "NOT_FOUND" {
		t.Fatalf("missing crag: %d %v", rr.Code, payload)
	}

	rr, _ = serve(t, handler, http.MethodGet, "/api/crags/skrivnost", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("draft crag for anonymous caller: %d", rr.Code)
	}
	rr, _ = serve(t, handler, http.MethodGet, "/api/crags/skrivnost", tokenFor(t, mem, "u-user"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("draft crag for its owner: %d", rr.Code)
	}
	rr, _ = serve(t, handler, http.MethodGet, "/api/crags/skrivnost", tokenFor(t, mem, "u-other"), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("draft crag for another user: %d", rr.Code)
	}
}

func TestCreateCragOverHTTP(t *testing.T) {
	mem := seededStore()
	handler := newTestHandler(mem)
	user := tokenFor(t, mem, "u-user")

	rr, payload := serve(t, handler, http.MethodPost, "/api/crags", "", `{"name":"Osp","countryId":"si"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: %d %v", rr.Code, payload)
	}

	rr, payload = serve(t, handler, http.MethodPost, "/api/crags", user, `{"name":"Osp","countryId":"si","publishStatus":"published"}`)
	if rr.Code != http.StatusForbidden || payload["code"] != "FORBIDDEN" {
		t.Fatalf("user publishing: %d %v", rr.Code, payload)
	}

	rr, payload = serve(t, handler, http.MethodPost, "/api/crags", user, `{"countryId":"si"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing name: %d %v", rr.Code, payload)
	}
	details, _ := payload["details"].(map[string]any)
	if details["name"] != "required" {
		t.Fatalf("expected name detail, got %v", payload)
	}

	rr, payload = serve(t, handler, http.MethodPost, "/api/crags", user, `{"name":"Osp","countryId":"si","bogus":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d %v", rr.Code, payload)
	}

	rr, payload = serve(t, handler, http.MethodPost, "/api/crags", user, `{"name":"Osp","countryId":"si"}`)
	if rr.Code != http.StatusCreated || payload["slug"] != "osp" || payload["publishStatus"] != "draft" {
		t.Fatalf("create: %d %v", rr.Code, payload)
	}
}

func TestInvalidTokenIsRejected(t *testing.T) {
	handler := newTestHandler(seededStore())

	rr, payload := serve(t, handler, http.MethodGet, "/api/crags/osp", "not-a-token", "")
	if rr.Code != http.StatusUnauthorized || payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("bad token: %d %v", rr.Code, payload)
	}
}

func TestMeNeedsSession(t *testing.T) {
	mem := seededStore()
	handler := newTestHandler(mem)

	rr, _ := serve(t, handler, http.MethodGet, "/api/me", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous me: %d", rr.Code)
	}
	rr, payload := serve(t, handler, http.MethodGet, "/api/me", tokenFor(t, mem, "u-editor"), "")
	if rr.Code != http.StatusOK || payload["role"] != "editor" {
		t.Fatalf("me: %d %v", rr.Code, payload)
	}
}

func TestCreateSectorOverHTTPShiftsSiblings(t *testing.T) {
	mem := seededStore()
	mem.addCrag("c1", "osp", publish.Published, "u-editor")
	mem.addSector("s1", "c1", 1, publish.Published, "u-editor")
	mem.addSector("s2", "c1", 2, publish.Published, "u-editor")
	handler := newTestHandler(mem)

	rr, payload := serve(t, handler, http.MethodPost, "/api/sectors", tokenFor(t, mem, "u-editor"), `{"cragId":"c1","name":"S3","position":1}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sector: %d %v", rr.Code, payload)
	}
	if mem.sectors["s1"].Position != 2 || mem.sectors["s2"].Position != 3 {
		t.Fatalf("siblings not shifted: s1=%d s2=%d", mem.sectors["s1"].Position, mem.sectors["s2"].Position)
	}
}

func TestUnknownRouteAndPreflight(t *testing.T) {
	handler := newTestHandler(seededStore())

	rr, payload := serve(t, handler, http.MethodGet, "/api/nothing-here", "", "")
	if rr.Code != http.StatusNotFound || payload["code"] != "NOT_FOUND" {
		t.Fatalf("unknown route: %d %v", rr.Code, payload)
	}

	rr, _ = serve(t, handler, http.MethodOptions, "/api/crags", "", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header: %v", rr.Header())
	}
}
