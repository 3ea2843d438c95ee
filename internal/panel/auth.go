package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"panelhub/internal/pkg/httpclient"
	"panelhub/internal/pkg/utils"
)

const loginPath = "/api/admin/token"

var loginResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "panelhub_panel_login_total",
	Help: "Panel login attempts by outcome.",
}, []string{"result"})

// tokenKeys are the response fields a panel may carry its bearer token in.
var tokenKeys = []string{"access_token", "token"}

// LoginResult describes a login attempt for diagnostics.
type LoginResult struct {
	OK       bool   `json:"ok"`
	Endpoint string `json:"endpoint,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Status   int    `json:"status,omitempty"`
	Info     string `json:"info,omitempty"`
	Token    string `json:"-"`
}

// TokenPreview returns the first characters of the token.
func (r LoginResult) TokenPreview() string {
	return utils.Preview(r.Token, 12)
}

type loginEncoding struct {
	name string
	body func(username, password string) httpclient.Option
}

var loginEncodings = []loginEncoding{
	{"form", func(u, p string) httpclient.Option {
		return httpclient.Form(map[string]string{"username": u, "password": p})
	}},
	{"json", func(u, p string) httpclient.Option {
		return httpclient.JSON(map[string]string{"username": u, "password": p})
	}},
}

// Login returns a bearer token for the panel, or false. It never returns
// transport detail to the caller.
func (c *Client) Login(ctx context.Context, baseURL, username, password string) (string, bool) {
	res := c.TryLogin(ctx, baseURL, username, password)
	return res.Token, res.OK
}

// TryLogin attempts form then JSON login on the token endpoint. A 401/403
// JSON answer is definitive and stops further attempts.
func (c *Client) TryLogin(ctx context.Context, baseURL, username, password string) LoginResult {
	endpoint := trimBase(baseURL) + loginPath
	last := LoginResult{Endpoint: endpoint, Info: "no attempt made"}

	for _, enc := range loginEncodings {
		resp, err := c.http.Do(ctx, http.MethodPost, endpoint, enc.body(username, password))
		if err != nil {
			c.log.Debug("panel login transport error", zap.String("endpoint", endpoint), zap.String("encoding", enc.name), zap.Error(err))
			last = LoginResult{Endpoint: endpoint, Encoding: enc.name, Info: "panel unreachable"}
			continue
		}
		last = LoginResult{Endpoint: endpoint, Encoding: enc.name, Status: resp.Status}
		if !resp.IsJSON() {
			last.Info = "non-json response"
			continue
		}
		if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
			last.Info = "credentials rejected"
			loginResults.WithLabelValues("rejected").Inc()
			return last
		}
		if !resp.OK() {
			last.Info = extractAPIError(resp.Body, resp.Status)
			continue
		}
		token := extractToken(resp.Body)
		if token == "" {
			last.Info = "no token in response"
			continue
		}
		if c.verifyToken && !c.probe(ctx, baseURL, token) {
			last.Info = "token rejected by probe"
			loginResults.WithLabelValues("rejected").Inc()
			return last
		}
		last.OK = true
		last.Token = token
		last.Info = "ok"
		loginResults.WithLabelValues("ok").Inc()
		return last
	}

	loginResults.WithLabelValues("failed").Inc()
	return last
}

// probe checks a token with a lightweight authenticated request.
func (c *Client) probe(ctx context.Context, baseURL, token string) bool {
	resp, err := c.http.Do(ctx, http.MethodGet, trimBase(baseURL)+"/api/admin", httpclient.Bearer(token))
	if err != nil {
		return false
	}
	return resp.Status != http.StatusUnauthorized && resp.Status != http.StatusForbidden
}

func extractToken(body []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	for _, key := range tokenKeys {
		if v := strings.TrimSpace(getString(data, key)); v != "" {
			return v
		}
	}
	return ""
}
