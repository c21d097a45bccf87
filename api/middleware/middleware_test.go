package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "middleware-test", Output: io.Discard})
}

var testJWT = config.JWTConfig{Secret: "test-secret", Issuer: "storefront-admin"}

func mintToken(t *testing.T, role enums.StaffRole) (string, uuid.UUID) {
	t.Helper()
	staffID := uuid.New()
	token, err := pkgAuth.MintStaffToken(testJWT, time.Now(), time.Hour, pkgAuth.StaffTokenPayload{StaffID: staffID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, staffID
}

func TestStaffAuthSeedsContext(t *testing.T) {
	token, staffID := mintToken(t, enums.StaffRoleOperator)

	var gotID, gotRole string
	handler := StaffAuth(testJWT, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = StaffIDFromContext(r.Context())
		gotRole = StaffRoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/products/low-stock", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if gotID != staffID.String() || gotRole != string(enums.StaffRoleOperator) {
		t.Fatalf("unexpected staff context id=%q role=%q", gotID, gotRole)
	}
}

func TestStaffAuthRejectsMissingAndExpiredTokens(t *testing.T) {
	expired, err := pkgAuth.MintStaffToken(testJWT, time.Now().Add(-2*time.Hour), time.Hour, pkgAuth.StaffTokenPayload{
		StaffID: uuid.New(),
		Role:    enums.StaffRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	handler := StaffAuth(testJWT, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	for _, header := range []string{"", "Bearer ", "Bearer " + expired, "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestRequireStaffRole(t *testing.T) {
	handler := RequireStaffRole(testLogger(), enums.StaffRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithStaff(req.Context(), uuid.NewString(), string(enums.StaffRoleOperator)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}

	req = req.WithContext(WithStaff(req.Context(), uuid.NewString(), string(enums.StaffRoleAdmin)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRateLimitBlocksPerIP(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	policy := RateLimitPolicy{Name: "checkout", Window: time.Minute, PerIP: 2}
	handler := RateLimit(policy, limiter, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/hosted", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if limiter.counts["checkout:203.0.113.9"] != 3 {
		t.Fatalf("expected counter keyed by first forwarded ip, got %v", limiter.counts)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	policy := RateLimitPolicy{Name: "checkout", Window: time.Minute, PerIP: 1}
	handler := RateLimit(policy, limiter, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected request through on limiter error, got %d", rec.Code)
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRequestIDEchoesHeader(t *testing.T) {
	var seen string
	handler := RequestID(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	if seen != "req-123" {
		t.Fatalf("expected request id on context, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "bad id\r\nX-Injected: 1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if _, err := uuid.Parse(rec.Header().Get(requestIDHeader)); err != nil {
		t.Fatalf("expected malformed id to be replaced, got %q", rec.Header().Get(requestIDHeader))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(rec.Header().Get(requestIDHeader)); err != nil {
		t.Fatalf("expected generated uuid, got %q", rec.Header().Get(requestIDHeader))
	}
}
