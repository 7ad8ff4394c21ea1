package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func registerTestUser(t *testing.T, srv *Server, email, password string) (token string) {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/auth/register", map[string]string{
		"email":            email,
		"name":             "Test User",
		"password":         password,
		"display_currency": "AUD",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	token, _ = resp["token"].(string)
	if token == "" {
		t.Fatal("register: expected a token")
	}
	return token
}

func TestAuthRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t)
	registerTestUser(t, srv, "alice@example.com", "supersecret")

	rec := doRequest(t, srv, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "Alice@Example.com",
		"password": "supersecret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	user := resp["user"].(map[string]interface{})
	if user["email"] != "alice@example.com" {
		t.Errorf("expected lowercased email, got %v", user["email"])
	}
	if user["display_currency"] != "AUD" {
		t.Errorf("expected AUD display currency, got %v", user["display_currency"])
	}
}

func TestAuthLoginWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	registerTestUser(t, srv, "alice@example.com", "supersecret")

	rec := doRequest(t, srv, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRegisterDuplicateEmail(t *testing.T) {
	srv := newTestServer(t)
	registerTestUser(t, srv, "alice@example.com", "supersecret")

	rec := doRequest(t, srv, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "anothersecret",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "supersecret",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad email, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "bob@example.com",
		"password": "short",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", rec.Code)
	}
}

func TestAuthMeWithBearerToken(t *testing.T) {
	srv := newTestServer(t)
	token := registerTestUser(t, srv, "alice@example.com", "supersecret")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	user := resp["user"].(map[string]interface{})
	if user["email"] != "alice@example.com" {
		t.Errorf("expected alice@example.com, got %v", user["email"])
	}
}

func TestAuthMeWithoutIdentity(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBearerTokenInvalid(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate challenge header")
	}
}

func TestBearerTokenScopesRequests(t *testing.T) {
	srv := newTestServer(t)
	token := registerTestUser(t, srv, "alice@example.com", "supersecret")

	// Create a position under the authenticated user.
	req := httptest.NewRequest(http.MethodPost, "/api/positions", jsonBody(t, map[string]interface{}{
		"name":     "Index Fund",
		"type":     "asset",
		"currency": "AUD",
	}))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// A different user sees an empty listing.
	rec = doRequest(t, srv, http.MethodGet, "/api/positions", nil)
	resp := decodeResponse(t, rec)
	positions := resp["positions"].([]interface{})
	if len(positions) != 0 {
		t.Errorf("expected no positions for other user, got %d", len(positions))
	}
}
