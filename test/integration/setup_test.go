package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/emdr/protokoll/internal/domain/protocol"
	"github.com/emdr/protokoll/internal/domain/therapist"
	"github.com/emdr/protokoll/internal/platform/auth"
	"github.com/emdr/protokoll/internal/platform/export"
	"github.com/emdr/protokoll/internal/platform/kvstore"
	"github.com/emdr/protokoll/internal/platform/middleware"
)

// newTestServer wires the full HTTP surface over the local sqlite-file
// backend, the same shape the server binary builds in local mode.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := kvstore.Open(filepath.Join(t.TempDir(), "protokoll.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sessions := auth.NewSessions([]byte("integration-test-secret"), 30)
	protocolSvc := protocol.NewService(protocol.NewRepoKV(store))
	therapistSvc := therapist.NewService(therapist.NewRepoKV(store), sessions)
	exporter := export.NewService(export.PDFOptions{Praxis: "Testpraxis"})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(auth.Middleware(sessions, auth.DefaultSkipper))

	api := e.Group("/api/v1")
	therapist.NewHandler(therapistSvc).RegisterRoutes(api)
	protocol.NewHandler(protocolSvc, exporter).RegisterRoutes(api)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

// call issues a JSON request and decodes the response body into out (when
// non-nil). token may be empty for public endpoints.
func call(t *testing.T, srv *httptest.Server, method, path, token, body string, out interface{}) (*http.Response, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp, string(raw)
}

// registerTherapist creates an account and returns its session token.
func registerTherapist(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	var res struct {
		Token string `json:"token"`
	}
	resp, raw := call(t, srv, http.MethodPost, "/api/v1/auth/register", "",
		`{"email": "`+email+`", "password": "geheim", "displayName": "Dr. Test"}`, &res)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %s", resp.StatusCode, raw)
	}
	if res.Token == "" {
		t.Fatal("register returned no token")
	}
	return res.Token
}
