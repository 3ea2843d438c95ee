package panel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"panelhub/internal/apperr"
	"panelhub/internal/models"
	"panelhub/internal/panel/paneltest"
)

func openSession(t *testing.T, fake *paneltest.Server, panelType string) *Session {
	t.Helper()
	s, err := NewClient(Options{}).Open(context.Background(), &models.Panel{BaseURL: fake.URL, Type: panelType}, "admin", "secret")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenLoginFailure(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()

	_, err := NewClient(Options{}).Open(context.Background(), &models.Panel{BaseURL: fake.URL}, "admin", "nope")
	if apperr.KindOf(err) != apperr.PanelLoginFailed {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateUserCanonicalBody(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	s := openSession(t, fake, models.PanelTypeMarzban)

	expire := int64(1900000000)
	u, err := s.CreateUser(context.Background(), UserSpec{
		Username:  "alice",
		DataLimit: 1024,
		Expire:    &expire,
		Inbounds:  map[string][]string{"vless": {"VLESS TCP"}},
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.SubscriptionURL == "" {
		t.Fatal("expected subscription url")
	}

	reqs := fake.Requests()
	body := reqs[len(reqs)-1].JSON()
	if body["status"] != "active" || body["data_limit_reset_strategy"] != "no_reset" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["expire"].(float64) != float64(expire) {
		t.Fatalf("expire = %v", body["expire"])
	}
	proxies := body["proxies"].(map[string]interface{})
	if _, ok := proxies["vless"]; !ok {
		t.Fatalf("proxies = %v", proxies)
	}
}

func TestCreateUserUnlimitedOmitsExpire(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	s := openSession(t, fake, models.PanelTypeMarzban)

	if _, err := s.CreateUser(context.Background(), UserSpec{Username: "bob", Inbounds: map[string][]string{"vmess": {"VMess WS"}}}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	reqs := fake.Requests()
	body := reqs[len(reqs)-1].JSON()
	if _, ok := body["expire"]; ok {
		t.Fatalf("expire must be omitted: %v", body)
	}
	if body["data_limit"].(float64) != 0 {
		t.Fatalf("data_limit = %v", body["data_limit"])
	}
}

func TestCreateUserFallsBackToAlternateShape(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	fake.Handle(http.MethodPost, "/api/user", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		if _, ok := body["inbound_tags"]; !ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":"field required"}`))
			return
		}
		_, _ = w.Write([]byte(`{"username":"carol","sub_url":"http://10.1.1.1/sub/zz"}`))
	})
	s := openSession(t, fake, models.PanelTypeMarzban)

	u, err := s.CreateUser(context.Background(), UserSpec{Username: "carol", Inbounds: map[string][]string{"vless": {"a"}}})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if got := fake.Calls(http.MethodPost, "/api/user"); got != 2 {
		t.Fatalf("expected canonical then flat, got %d attempts", got)
	}
	if u.SubscriptionURL != "http://10.1.1.1/sub/zz" {
		t.Fatalf("subscription = %q", u.SubscriptionURL)
	}
}

func TestCreateUserConflictStopsFallback(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	fake.AddUser(map[string]interface{}{"username": "dave"})
	s := openSession(t, fake, models.PanelTypeMarzban)

	_, err := s.CreateUser(context.Background(), UserSpec{Username: "dave", Inbounds: map[string][]string{"vless": {"a"}}})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("err = %v", err)
	}
	if got := fake.Calls(http.MethodPost, "/api/user"); got != 1 {
		t.Fatalf("expected a single create attempt, got %d", got)
	}
}

func TestCreateUserExhaustedShapesIsRemoteRejected(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	fake.Handle(http.MethodPost, "/api/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"bad"}`))
	})
	s := openSession(t, fake, models.PanelTypePasarGuard)

	_, err := s.CreateUser(context.Background(), UserSpec{Username: "erin", Inbounds: map[string][]string{"vless": {"a"}}})
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.RemoteRejected || ae.RemoteStatus != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if got := fake.Calls(http.MethodPost, "/api/user"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	first := fake.Requests()[1].JSON()
	if _, ok := first["proxy_settings"]; !ok {
		t.Fatalf("pasarguard should try proxy_settings first: %v", first)
	}
}

func TestModifyUserFallsBackToPost(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	fake.AddUser(map[string]interface{}{"username": "frank"})
	fake.Handle(http.MethodPatch, "/api/user/frank", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"detail":"Method Not Allowed"}`))
	})
	fake.Handle(http.MethodPost, "/api/user", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	})
	s := openSession(t, fake, models.PanelTypeMarzban)

	u, err := s.ModifyUser(context.Background(), "frank", map[string]interface{}{"data_limit": 5})
	if err != nil {
		t.Fatalf("ModifyUser: %v", err)
	}
	if u.Username != "frank" || u.DataLimit == nil || *u.DataLimit != 5 {
		t.Fatalf("user = %+v", u)
	}
	if fake.Calls(http.MethodPatch, "/api/user/frank") != 1 || fake.Calls(http.MethodPost, "/api/user") != 1 {
		t.Fatal("expected PATCH then POST")
	}
}

func TestSetStatusSurfacesRemoteBody(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	fake.Handle(http.MethodPatch, "/api/user/gina", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"invalid status"}`))
	})
	s := openSession(t, fake, models.PanelTypeMarzban)

	err := s.SetStatus(context.Background(), "gina", "frozen")
	ae, ok := apperr.As(err)
	if !ok || ae.RemoteStatus != http.StatusUnprocessableEntity || ae.RemoteBody != `{"detail":"invalid status"}` {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteMissingUserIsNotFound(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	s := openSession(t, fake, models.PanelTypeMarzban)

	if err := s.DeleteUser(context.Background(), "ghost"); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestUsageSumsNodes(t *testing.T) {
	fake := paneltest.New()
	defer fake.Close()
	fake.Handle(http.MethodGet, "/api/user/hank/usage", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"usages":[{"used_traffic":10},{"used_traffic":32}]}`))
	})
	s := openSession(t, fake, models.PanelTypeMarzban)

	used, _, ok := s.Usage(context.Background(), "hank")
	if !ok || used != 42 {
		t.Fatalf("Usage = %d, %v", used, ok)
	}
}

func TestTransportFailureIsUnreachable(t *testing.T) {
	fake := paneltest.New()
	s := openSession(t, fake, models.PanelTypeMarzban)
	fake.Close()

	ctx := context.Background()
	if _, err := s.ListInbounds(ctx); apperr.KindOf(err) != apperr.PanelUnreachable {
		t.Fatalf("ListInbounds err = %v", err)
	}
	if err := s.SetStatus(ctx, "frank", "disabled"); apperr.KindOf(err) != apperr.PanelUnreachable {
		t.Fatalf("SetStatus err = %v", err)
	}
	if _, err := s.CreateUser(ctx, UserSpec{Username: "frank"}); apperr.KindOf(err) != apperr.PanelUnreachable {
		t.Fatalf("CreateUser err = %v", err)
	}
}
