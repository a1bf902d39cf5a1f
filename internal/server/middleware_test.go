package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"tailscale.com/client/tailscale/apitype"
	"tailscale.com/tailcfg"
)

type fakeWhoIs struct {
	resp *apitype.WhoIsResponse
	err  error
}

func (f fakeWhoIs) WhoIs(context.Context, string) (*apitype.WhoIsResponse, error) {
	return f.resp, f.err
}

type fakeUsers struct {
	ids   map[string]int
	err   error
	calls int
}

func (f *fakeUsers) GetOrCreateUser(_ context.Context, login, _ string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.ids[login], nil
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDevIdentity verifies that the dev identity middleware sets user 1 and
// the local user info on every request.
func TestDevIdentity(t *testing.T) {
	var gotID int
	var gotInfo UserInfo
	handler := DevIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = userIDFromContext(r)
		gotInfo = userInfoFromContext(r)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if gotID != 1 {
		t.Errorf("userID = %d, want 1", gotID)
	}
	if gotInfo.Login != "local" {
		t.Errorf("login = %q, want %q", gotInfo.Login, "local")
	}
}

func TestTailscaleIdentity(t *testing.T) {
	whois := fakeWhoIs{resp: &apitype.WhoIsResponse{
		UserProfile: &tailcfg.UserProfile{LoginName: "alice@example.com", DisplayName: "Alice"},
	}}
	users := &fakeUsers{ids: map[string]int{"alice@example.com": 42}}

	var gotID int
	var gotInfo UserInfo
	handler := TailscaleIdentity(whois, users, discardLog())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = UserID(r)
		gotInfo = userInfoFromContext(r)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotID != 42 {
		t.Errorf("userID = %d, want 42", gotID)
	}
	if gotInfo.DisplayName != "Alice" {
		t.Errorf("display name = %q, want Alice", gotInfo.DisplayName)
	}
}

func TestTailscaleIdentityFailures(t *testing.T) {
	profile := &apitype.WhoIsResponse{UserProfile: &tailcfg.UserProfile{LoginName: "bob@example.com"}}

	tests := []struct {
		name  string
		whois fakeWhoIs
		users *fakeUsers
		want  int
	}{
		{"whois error", fakeWhoIs{err: errors.New("no peer")}, &fakeUsers{}, http.StatusUnauthorized},
		{"no profile", fakeWhoIs{resp: &apitype.WhoIsResponse{}}, &fakeUsers{}, http.StatusUnauthorized},
		{"user store error", fakeWhoIs{resp: profile}, &fakeUsers{err: errors.New("db down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := TailscaleIdentity(tt.whois, tt.users, discardLog())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("next handler should not be called")
			}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// TestServerSwitchesToTailscale verifies SetTailscale takes effect on a
// server whose routes are already built.
func TestServerSwitchesToTailscale(t *testing.T) {
	s, _ := testServer(t)
	users := &fakeUsers{ids: map[string]int{"carol@example.com": 9}}
	s.SetTailscale(fakeWhoIs{resp: &apitype.WhoIsResponse{
		UserProfile: &tailcfg.UserProfile{LoginName: "carol@example.com", DisplayName: "Carol"},
	}}, users)

	info := decode[UserInfo](t, do(t, s, http.MethodGet, "/api/v1/me", ""))
	if info.Login != "carol@example.com" {
		t.Errorf("login = %q, want carol@example.com", info.Login)
	}
	if users.calls != 1 {
		t.Errorf("user lookups = %d, want 1", users.calls)
	}
}

// TestUserIDFromContextDefault verifies that userIDFromContext returns 1
// when no identity middleware has set a value.
func TestUserIDFromContextDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := userIDFromContext(req); id != 1 {
		t.Errorf("userIDFromContext without context value = %d, want 1", id)
	}
	if info := userInfoFromContext(req); info != devUser {
		t.Errorf("userInfoFromContext = %+v, want %+v", info, devUser)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth("k1")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	tests := []struct {
		key  string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"k2", http.StatusForbidden},
		{"k1", http.StatusAccepted},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.key != "" {
			req.Header.Set("X-API-Key", tt.key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("key %q: status = %d, want %d", tt.key, rec.Code, tt.want)
		}
	}
}

// TestRequestLogging verifies that the logging middleware calls the next
// handler and keeps streaming support.
func TestRequestLogging(t *testing.T) {
	handler := RequestLogging(discardLog())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer is not a Flusher")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
}

// TestCORSPreflight verifies that OPTIONS requests get 204 with CORS headers.
func TestCORSPreflight(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called for OPTIONS")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q, want *", got)
	}
}
