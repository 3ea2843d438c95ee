package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/dbtest"
	"panelhub/internal/models"
	"panelhub/internal/repository"
)

const testSecret = "test-secret"

func sign(t *testing.T, secret string, sub uint, typ string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(sub), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Type: typ,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func newEcho(t *testing.T) (*echo.Echo, *models.User, *models.User) {
	t.Helper()
	db := dbtest.Open(t)
	users := repository.NewUserRepository(db)
	root := dbtest.User(t, db, "root@example.com", models.RoleAdmin)
	op := dbtest.User(t, db, "op@example.com", models.RoleOperator)
	policy := access.NewRootAdminPolicy([]string{"root@example.com"}, users)

	e := echo.New()
	g := e.Group("/api", JWTAuth(testSecret, users, policy, zap.NewNop()))
	g.GET("/me", func(c echo.Context) error {
		caller, _ := access.FromContext(c.Request().Context())
		return c.JSON(http.StatusOK, map[string]interface{}{"id": caller.ID, "root": caller.IsRoot})
	})
	g.GET("/root", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RootOnly())
	return e, root, op
}

func call(e *echo.Echo, method, path, token string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e, root, op := newEcho(t)

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"valid", sign(t, testSecret, op.ID, "access", time.Hour), http.StatusOK},
		{"wrong secret", sign(t, "other", op.ID, "access", time.Hour), http.StatusUnauthorized},
		{"expired", sign(t, testSecret, op.ID, "access", -time.Minute), http.StatusUnauthorized},
		{"refresh token", sign(t, testSecret, op.ID, "refresh", time.Hour), http.StatusUnauthorized},
		{"unknown user", sign(t, testSecret, 9999, "access", time.Hour), http.StatusUnauthorized},
		{"root", sign(t, testSecret, root.ID, "access", time.Hour), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := call(e, http.MethodGet, "/api/me", tc.token, nil); rec.Code != tc.status {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRootOnly(t *testing.T) {
	e, root, op := newEcho(t)

	if rec := call(e, http.MethodGet, "/api/root", sign(t, testSecret, op.ID, "access", time.Hour), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("operator status = %d", rec.Code)
	}
	if rec := call(e, http.MethodGet, "/api/root", sign(t, testSecret, root.ID, "access", time.Hour), nil); rec.Code != http.StatusNoContent {
		t.Fatalf("root status = %d", rec.Code)
	}
}

func TestIdempotencyRefusesReplay(t *testing.T) {
	store, err := NewKeyStore("", "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}
	status := http.StatusOK
	runs := 0
	e := echo.New()
	e.POST("/users", func(c echo.Context) error {
		runs++
		return c.NoContent(status)
	}, Idempotency(store))

	key := map[string]string{idempotencyHeader: "abc"}
	if rec := call(e, http.MethodPost, "/users", "", key); rec.Code != http.StatusOK {
		t.Fatalf("first = %d", rec.Code)
	}
	if rec := call(e, http.MethodPost, "/users", "", key); rec.Code != http.StatusConflict {
		t.Fatalf("replay = %d", rec.Code)
	}
	if rec := call(e, http.MethodPost, "/users", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("no key = %d", rec.Code)
	}

	status = http.StatusPaymentRequired
	other := map[string]string{idempotencyHeader: "def"}
	call(e, http.MethodPost, "/users", "", other)
	status = http.StatusOK
	if rec := call(e, http.MethodPost, "/users", "", other); rec.Code != http.StatusOK {
		t.Fatalf("retry after client error = %d", rec.Code)
	}
	if runs != 4 {
		t.Fatalf("handler ran %d times", runs)
	}
}

func TestIdempotencyReleasesByErrorKind(t *testing.T) {
	store, err := NewKeyStore("", "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}
	kind := apperr.PanelNotConfigured
	runs := 0
	e := echo.New()
	e.POST("/users", func(c echo.Context) error {
		runs++
		if kind == "" {
			return c.NoContent(http.StatusOK)
		}
		SetErrorKind(c, kind)
		return c.NoContent(apperr.HTTPStatus(kind))
	}, Idempotency(store))

	key := map[string]string{idempotencyHeader: "setup"}
	if rec := call(e, http.MethodPost, "/users", "", key); rec.Code != http.StatusConflict {
		t.Fatalf("unconfigured = %d", rec.Code)
	}
	kind = ""
	if rec := call(e, http.MethodPost, "/users", "", key); rec.Code != http.StatusOK {
		t.Fatalf("retry after configuration = %d", rec.Code)
	}

	// A panel that already answered keeps the key.
	kind = apperr.RemoteRejected
	remote := map[string]string{idempotencyHeader: "remote"}
	call(e, http.MethodPost, "/users", "", remote)
	kind = ""
	if rec := call(e, http.MethodPost, "/users", "", remote); rec.Code != http.StatusConflict {
		t.Fatalf("retry after remote rejection = %d", rec.Code)
	}
	if runs != 3 {
		t.Fatalf("handler ran %d times", runs)
	}
}

func TestMemoryKeyStoreExpires(t *testing.T) {
	s := newMemoryKeyStore(time.Millisecond)
	ctx := context.Background()
	if ok, _ := s.Claim(ctx, "k"); !ok {
		t.Fatal("first claim must be fresh")
	}
	time.Sleep(5 * time.Millisecond)
	if ok, _ := s.Claim(ctx, "k"); !ok {
		t.Fatal("expired key must be claimable again")
	}
}
