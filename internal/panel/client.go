package panel

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"panelhub/internal/apperr"
	"panelhub/internal/models"
	"panelhub/internal/pkg/httpclient"
)

// Options configures a Client.
type Options struct {
	Timeout     time.Duration
	VerifyToken bool
	Logger      *zap.Logger
}

// Client talks to Marzban-compatible panels. It holds no per-panel state;
// every operation starts from an explicit base URL and token.
type Client struct {
	http        *httpclient.Client
	verifyToken bool
	log         *zap.Logger
}

// NewClient builds a Client. Timeouts are clamped to 10s..20s.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	switch {
	case timeout <= 0:
		timeout = 15 * time.Second
	case timeout < 10*time.Second:
		timeout = 10 * time.Second
	case timeout > 20*time.Second:
		timeout = 20 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:        httpclient.New().WithTimeout(timeout).WithInsecureSkipVerify(),
		verifyToken: opts.VerifyToken,
		log:         log,
	}
}

// Session is an authenticated handle on one panel.
type Session struct {
	c         *Client
	baseURL   string
	token     string
	panelType string
}

// Open logs in to p with the given credentials.
func (c *Client) Open(ctx context.Context, p *models.Panel, username, password string) (*Session, error) {
	token, ok := c.Login(ctx, p.BaseURL, username, password)
	if !ok {
		return nil, apperr.New(apperr.PanelLoginFailed, "login to panel failed")
	}
	return &Session{c: c, baseURL: trimBase(p.BaseURL), token: token, panelType: p.Type}, nil
}

// BaseURL returns the panel base URL without a trailing slash.
func (s *Session) BaseURL() string { return s.baseURL }

func (s *Session) do(ctx context.Context, method, path string, opts ...httpclient.Option) (*httpclient.Response, error) {
	opts = append(opts, httpclient.Bearer(s.token))
	return s.c.http.Do(ctx, method, s.baseURL+path, opts...)
}

// Reachable reports whether anything answers HTTP at baseURL.
func (c *Client) Reachable(ctx context.Context, baseURL string) bool {
	_, err := c.http.Do(ctx, http.MethodGet, trimBase(baseURL)+"/api/admin/token")
	return err == nil
}

func trimBase(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
