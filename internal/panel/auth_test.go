package panel

import (
	"context"
	"net/http"
	"testing"

	"panelhub/internal/panel/paneltest"
)

func TestLoginFormSucceeds(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()

	token, ok := NewClient(Options{}).Login(context.Background(), fake.URL+"/", "admin", "secret")
	if !ok || token != "fake-token" {
		t.Fatalf("Login = %q, %v", token, ok)
	}
	if got := fake.Calls(http.MethodPost, "/api/admin/token"); got != 1 {
		t.Fatalf("expected one login request, got %d", got)
	}
}

func TestLoginFallsBackToJSON(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	fake.Handle(http.MethodPost, "/api/admin/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte("<html>unsupported</html>"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"json-token"}`))
	})

	res := NewClient(Options{}).TryLogin(context.Background(), fake.URL, "admin", "secret")
	if !res.OK || res.Token != "json-token" || res.Encoding != "json" {
		t.Fatalf("TryLogin = %+v", res)
	}
}

func TestLoginRejectionIsDefinitive(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()

	res := NewClient(Options{}).TryLogin(context.Background(), fake.URL, "admin", "wrong")
	if res.OK {
		t.Fatal("expected login failure")
	}
	if res.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d", res.Status)
	}
	if got := fake.Calls(http.MethodPost, "/api/admin/token"); got != 1 {
		t.Fatalf("JSON encoding retried after 401: %d login requests", got)
	}
}

func TestLoginUnreachable(t *testing.T) {
	token, ok := NewClient(Options{}).Login(context.Background(), "http://127.0.0.1:1", "a", "b")
	if ok || token != "" {
		t.Fatalf("Login = %q, %v", token, ok)
	}
}

func TestLoginVerifiesTokenWhenEnabled(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	fake.Handle(http.MethodGet, "/api/admin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"expired"}`))
	})

	if _, ok := NewClient(Options{VerifyToken: true}).Login(context.Background(), fake.URL, "admin", "secret"); ok {
		t.Fatal("expected probe rejection to fail the login")
	}
	if _, ok := NewClient(Options{}).Login(context.Background(), fake.URL, "admin", "secret"); !ok {
		t.Fatal("login without probe should succeed")
	}
}
