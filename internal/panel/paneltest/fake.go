// Package paneltest provides an in-process fake of a Marzban-compatible panel
// for tests.
package paneltest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Request is a request the fake received.
type Request struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
}

// JSON decodes the recorded body.
func (r Request) JSON() map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(r.Body, &out)
	return out
}

// Server is a fake panel. Zero-config defaults accept admin/secret.
type Server struct {
	*httptest.Server

	Username string
	Password string
	Token    string
	// InboundsBody is served verbatim from GET /api/inbounds.
	InboundsBody string
	// SubscriptionHost is the host injected into returned subscription links.
	SubscriptionHost string

	mu        sync.Mutex
	requests  []Request
	users     map[string]map[string]interface{}
	admins    map[string]string
	overrides map[string]http.HandlerFunc
}

// New starts a fake panel.
func New() *Server {
	s := &Server{
		Username:         "admin",
		Password:         "secret",
		Token:            "fake-token",
		InboundsBody:     `{"vless":[{"tag":"VLESS TCP","protocol":"vless"}],"vmess":[{"tag":"VMess WS","protocol":"vmess"}]}`,
		SubscriptionHost: "http://10.0.0.5:8000",
		users:            map[string]map[string]interface{}{},
		admins:           map[string]string{},
		overrides:        map[string]http.HandlerFunc{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Handle overrides the handler for an exact method and path.
func (s *Server) Handle(method, path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[method+" "+path] = h
}

// Requests returns a copy of everything received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Hits is the number of requests received.
func (s *Server) Hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Calls counts requests with the given method and path.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// AddUser seeds a remote user.
func (s *Server) AddUser(user map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user["username"].(string)] = user
}

// User returns a seeded or created user.
func (s *Server) User(username string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return u, ok
}

// Admin returns the password of an admin created through POST /api/admin.
func (s *Server) Admin(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.admins[username]
	return p, ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(strings.NewReader(string(body)))

	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, ContentType: r.Header.Get("Content-Type"), Body: body})
	override := s.overrides[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	if override != nil {
		override(w, r)
		return
	}

	if r.URL.Path == "/api/admin/token" && r.Method == http.MethodPost {
		s.login(w, r, body)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		return
	}

	switch {
	case r.URL.Path == "/api/admin" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{"username": s.Username, "is_sudo": true})
	case r.URL.Path == "/api/admin" && r.Method == http.MethodPost:
		s.createAdmin(w, body)
	case r.URL.Path == "/api/inbounds" && r.Method == http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, s.InboundsBody)
	case r.URL.Path == "/api/user" && r.Method == http.MethodPost:
		s.createUser(w, body)
	case strings.HasPrefix(r.URL.Path, "/api/user/"):
		s.userScoped(w, r, body)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, body []byte) {
	var user, pass string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var creds map[string]string
		_ = json.Unmarshal(body, &creds)
		user, pass = creds["username"], creds["password"]
	} else {
		_ = r.ParseForm()
		user, pass = r.PostForm.Get("username"), r.PostForm.Get("password")
	}
	if user != s.Username || pass != s.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": s.Token, "token_type": "bearer"})
}

func (s *Server) createAdmin(w http.ResponseWriter, body []byte) {
	var req map[string]interface{}
	_ = json.Unmarshal(body, &req)
	name, _ := req["username"].(string)
	pass, _ := req["password"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.admins[name]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "Admin already exists"})
		return
	}
	s.admins[name] = pass
	writeJSON(w, http.StatusOK, map[string]interface{}{"username": name, "is_sudo": false})
}

func (s *Server) createUser(w http.ResponseWriter, body []byte) {
	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid body"})
		return
	}
	name, _ := req["username"].(string)
	if _, ok := req["proxies"]; !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "field required: proxies"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[name]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "User already exists"})
		return
	}
	req["subscription_url"] = s.SubscriptionHost + "/sub/" + name + "-token"
	req["used_traffic"] = 0
	s.users[name] = req
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) userScoped(w http.ResponseWriter, r *http.Request, body []byte) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/user/")
	parts := strings.SplitN(rest, "/", 2)
	name := parts[0]
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "User not found"})
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case sub == "" && r.Method == http.MethodPatch:
		var patch map[string]interface{}
		_ = json.Unmarshal(body, &patch)
		for k, v := range patch {
			user[k] = v
		}
		writeJSON(w, http.StatusOK, user)
	case sub == "" && r.Method == http.MethodDelete:
		delete(s.users, name)
		writeJSON(w, http.StatusOK, map[string]string{"detail": "User successfully deleted"})
	case sub == "reset" && r.Method == http.MethodPost:
		user["used_traffic"] = 0
		writeJSON(w, http.StatusOK, user)
	case sub == "usage" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"username": name,
			"usages":   []map[string]interface{}{{"node_name": "Master", "used_traffic": user["used_traffic"]}},
		})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method Not Allowed"})
	}
}
