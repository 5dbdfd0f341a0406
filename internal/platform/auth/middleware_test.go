package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runJWT(t *testing.T, cfg JWTConfig, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/fhir/Patient")

	called := false
	handler := func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	}

	if err := JWTMiddleware(cfg)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec, called
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "omopfhir-test",
			Audience:  jwt.ClaimStrings{"fhir"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		FHIRScopes: []string{"patient/*.read"},
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired", "Bearer " + createTestToken(t, expired, testSigningKey)},
		{"wrong key", "Bearer " + createTestToken(t, validClaims(), []byte("other-key"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, called := runJWT(t, JWTConfig{SigningKey: testSigningKey}, tt.header)
			if called {
				t.Error("handler should not be called")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"OperationOutcome"`) {
				t.Errorf("expected OperationOutcome body, got %s", rec.Body.String())
			}
		})
	}
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	token := "Bearer " + createTestToken(t, validClaims(), testSigningKey)

	rec, called := runJWT(t, JWTConfig{SigningKey: testSigningKey, Issuer: "omopfhir-test", Audience: "fhir"}, token)
	if !called || rec.Code != http.StatusOK {
		t.Errorf("expected matching issuer/audience to pass, got %d", rec.Code)
	}

	rec, called = runJWT(t, JWTConfig{SigningKey: testSigningKey, Issuer: "someone-else"}, token)
	if called || rec.Code != http.StatusUnauthorized {
		t.Errorf("expected issuer mismatch to fail, got %d", rec.Code)
	}

	rec, called = runJWT(t, JWTConfig{SigningKey: testSigningKey, Audience: "billing"}, token)
	if called || rec.Code != http.StatusUnauthorized {
		t.Errorf("expected audience mismatch to fail, got %d", rec.Code)
	}
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	tokenStr := createTestToken(t, validClaims(), testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()

		if uid := UserIDFromContext(ctx); uid != "user-123" {
			t.Errorf("expected user_id=user-123, got %s", uid)
		}
		scopes := ScopesFromContext(ctx)
		if len(scopes) != 1 || scopes[0] != "patient/*.read" {
			t.Errorf("expected scopes=[patient/*.read], got %v", scopes)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/fhir/metadata", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/fhir/metadata")

	called := false
	handler := func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	}

	cfg := JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper}
	if err := JWTMiddleware(cfg)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected public path to bypass auth")
	}
}

func TestDevAuthMiddleware_WithDefaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "dev-user" {
			t.Errorf("expected user_id=dev-user, got %s", uid)
		}
		if scopes := ScopesFromContext(ctx); len(scopes) != 1 {
			t.Errorf("expected one dev scope, got %v", scopes)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := DevAuthMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
