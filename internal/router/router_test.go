package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-account/internal/account"
	accountrepo "github.com/ovaphlow/pitchfork/service-account/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-account/internal/activity"
	activityrepo "github.com/ovaphlow/pitchfork/service-account/internal/activity/repo"
	"github.com/ovaphlow/pitchfork/service-account/internal/session"
	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

func newTestHandler(t *testing.T, logger *zap.SugaredLogger, opts Options) (http.Handler, *activityrepo.EventRepo) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	accounts := accountrepo.NewAccountRepo(db)
	events := activityrepo.NewEventRepo(db)
	if err := accounts.EnsureTable(ctx); err != nil {
		t.Fatal(err)
	}
	if err := events.EnsureTable(ctx); err != nil {
		t.Fatal(err)
	}
	ids, _ := utilities.NewIDGenerator(1)
	issuer, _ := session.NewIssuer("", "test", time.Hour)
	rec := activity.NewRecorder(events, ids, logger, activity.DispatchConfig{})
	t.Cleanup(rec.Close)
	auth, err := account.NewAuthService(accounts, rec, account.BcryptHasher{Cost: bcrypt.MinCost}, issuer, ids, logger)
	if err != nil {
		t.Fatal(err)
	}
	query := account.NewQueryService(accounts, activity.NewService(events), logger)
	return RegisterRoutes(logger, account.NewHandler(auth, query, logger), opts), events
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, zap.NewNop().Sugar(), Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("security headers missing: %v", rec.Header())
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS set on plain http")
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("request id missing")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h, _ := newTestHandler(t, zap.New(core).Sugar(), Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id %q", got)
	}
	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("got %d access log entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "abc-123" || fields["path"] != "/health" {
		t.Fatalf("access log fields %v", fields)
	}
}

func TestCORS(t *testing.T) {
	h, _ := newTestHandler(t, zap.NewNop().Sugar(), Options{CORSOrigin: "http://localhost:3000"})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("allow origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin allowed")
	}
}

func TestRoutesAndClientIP(t *testing.T) {
	h, events := newTestHandler(t, zap.NewNop().Sugar(), Options{TrustProxy: true})

	body := `{"username":"alice","password":"secret1","mobileNumber":"9876543210","firstName":"Alice","lastName":"Liddell","email":"alice@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}

	var env struct {
		Data struct {
			ID int64 `json:"id,string"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil || env.Data.ID == 0 {
		t.Fatalf("register body %q: %v", rec.Body.String(), err)
	}
	recent, err := events.ListRecent(context.Background(), env.Data.ID, 1)
	if err != nil || len(recent) != 1 {
		t.Fatalf("ListRecent: %v %v", recent, err)
	}
	if recent[0].IPAddress != "203.0.113.9" {
		t.Fatalf("ip %q", recent[0].IPAddress)
	}

	// wrong method never reaches the handler
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/register", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET register: %d", rec.Code)
	}
	// reads need a session before the id is even parsed
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/user/abc", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous read: %d", rec.Code)
	}
}

func TestClientIPIgnoresForwardedWhenUntrusted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := clientIP(req, false); got != "192.0.2.7" {
		t.Fatalf("clientIP = %q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("clientIP trusted = %q", got)
	}
}
