package panel

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"panelhub/internal/apperr"
	"panelhub/internal/pkg/httpclient"
)

// RemoteUser is the normalized view of a panel user.
type RemoteUser struct {
	Username        string                 `json:"username"`
	Status          string                 `json:"status"`
	DataLimit       *int64                 `json:"data_limit"`
	UsedTraffic     *int64                 `json:"used_traffic"`
	Expire          *int64                 `json:"expire"`
	SubscriptionURL string                 `json:"subscription_url,omitempty"`
	Raw             map[string]interface{} `json:"-"`
}

func userPath(username string) string {
	return "/api/user/" + url.PathEscape(username)
}

// stopsFallback reports statuses that no alternate body layout can fix.
func stopsFallback(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict:
		return true
	}
	return false
}

func rejection(msg string, resp *httpclient.Response) error {
	switch resp.Status {
	case http.StatusNotFound:
		e := apperr.New(apperr.NotFound, "user not found on panel")
		e.RemoteStatus, e.RemoteBody = resp.Status, resp.Text()
		return e
	case http.StatusConflict:
		e := apperr.New(apperr.Conflict, extractAPIError(resp.Body, resp.Status))
		e.RemoteStatus, e.RemoteBody = resp.Status, resp.Text()
		return e
	}
	return apperr.Remote(msg+": "+extractAPIError(resp.Body, resp.Status), resp.Status, resp.Text())
}

func unreachable(err error) error {
	return apperr.Wrap(apperr.PanelUnreachable, "panel unreachable", err)
}

// CreateUser posts the user, retrying alternate body layouts on non-2xx
// answers that another layout might satisfy.
func (s *Session) CreateUser(ctx context.Context, spec UserSpec) (*RemoteUser, error) {
	var last *httpclient.Response
	for _, shape := range payloadShapesFor(s.panelType) {
		resp, err := s.do(ctx, http.MethodPost, "/api/user", httpclient.JSON(shape.build(spec)))
		if err != nil {
			return nil, unreachable(err)
		}
		if resp.OK() {
			s.c.log.Debug("panel user created", zap.String("username", spec.Username), zap.String("shape", shape.name))
			return s.userFromBody(resp.Body, spec.Username), nil
		}
		last = resp
		if stopsFallback(resp.Status) {
			break
		}
		s.c.log.Info("panel rejected create payload, trying next shape",
			zap.String("username", spec.Username),
			zap.String("shape", shape.name),
			zap.Int("status", resp.Status),
		)
	}
	return nil, rejection("panel rejected user creation", last)
}

// ModifyUser sends a PATCH to the user and falls back to POST on the
// collection when the PATCH is rejected.
func (s *Session) ModifyUser(ctx context.Context, username string, body map[string]interface{}) (*RemoteUser, error) {
	resp, err := s.do(ctx, http.MethodPatch, userPath(username), httpclient.JSON(body))
	if err != nil {
		return nil, unreachable(err)
	}
	if resp.OK() {
		return s.userFromBody(resp.Body, username), nil
	}
	if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden || resp.Status == http.StatusNotFound {
		return nil, rejection("panel rejected user update", resp)
	}

	s.c.log.Info("panel rejected PATCH, falling back to POST", zap.String("username", username), zap.Int("status", resp.Status))
	withName := make(map[string]interface{}, len(body)+1)
	for k, v := range body {
		withName[k] = v
	}
	withName["username"] = username
	resp, err = s.do(ctx, http.MethodPost, "/api/user", httpclient.JSON(withName))
	if err != nil {
		return nil, unreachable(err)
	}
	if !resp.OK() {
		return nil, rejection("panel rejected user update", resp)
	}
	return s.userFromBody(resp.Body, username), nil
}

var resetPaths = []func(username string) string{
	func(u string) string { return userPath(u) + "/reset" },
	func(u string) string { return "/api/users/" + url.PathEscape(u) + "/reset" },
}

// ResetUsage fires the traffic reset endpoints, stopping at the first
// success. Failures are tolerated and reported as false.
func (s *Session) ResetUsage(ctx context.Context, username string) bool {
	for _, path := range resetPaths {
		resp, err := s.do(ctx, http.MethodPost, path(username))
		if err == nil && resp.OK() {
			return true
		}
	}
	s.c.log.Warn("panel traffic reset failed", zap.String("username", username))
	return false
}

// SetStatus changes the user status with a single PATCH.
func (s *Session) SetStatus(ctx context.Context, username, status string) error {
	resp, err := s.do(ctx, http.MethodPatch, userPath(username), httpclient.JSON(map[string]string{"status": status}))
	if err != nil {
		return unreachable(err)
	}
	if !resp.OK() {
		if resp.Status == http.StatusNotFound {
			return rejection("", resp)
		}
		return apperr.Remote("panel rejected status change", resp.Status, resp.Text())
	}
	return nil
}

// DeleteUser removes the user from the panel.
func (s *Session) DeleteUser(ctx context.Context, username string) error {
	resp, err := s.do(ctx, http.MethodDelete, userPath(username))
	if err != nil {
		return unreachable(err)
	}
	if !resp.OK() {
		return rejection("panel rejected user deletion", resp)
	}
	return nil
}

// GetUser reads the user.
func (s *Session) GetUser(ctx context.Context, username string) (*RemoteUser, error) {
	resp, err := s.do(ctx, http.MethodGet, userPath(username))
	if err != nil {
		return nil, unreachable(err)
	}
	if !resp.OK() {
		return nil, rejection("panel refused user lookup", resp)
	}
	if _, ok := decodeObject(resp.Body); !ok {
		return nil, apperr.New(apperr.UnexpectedPanelResponse, "user response is not a json object")
	}
	return s.userFromBody(resp.Body, username), nil
}

// Usage reads the usage sub-resource. ok is false when the panel does not
// offer it or its shape is unknown.
func (s *Session) Usage(ctx context.Context, username string) (used int64, raw map[string]interface{}, ok bool) {
	resp, err := s.do(ctx, http.MethodGet, userPath(username)+"/usage")
	if err != nil || !resp.OK() {
		return 0, nil, false
	}
	raw, isObj := decodeObject(resp.Body)
	if !isObj {
		return 0, nil, false
	}
	if v, found := parseInt64(raw["used_traffic"]); found {
		return v, raw, true
	}
	usages, isList := raw["usages"].([]interface{})
	if !isList {
		return 0, raw, false
	}
	for _, item := range usages {
		if m, isMap := item.(map[string]interface{}); isMap {
			if v, found := parseInt64(m["used_traffic"]); found {
				used += v
			}
		}
	}
	return used, raw, true
}

// CreateAdmin creates a non-sudo admin account on the panel.
func (s *Session) CreateAdmin(ctx context.Context, username, password string) error {
	body := map[string]interface{}{"username": username, "password": password, "is_sudo": false}
	resp, err := s.do(ctx, http.MethodPost, "/api/admin", httpclient.JSON(body))
	if err != nil {
		return unreachable(err)
	}
	if !resp.OK() {
		return rejection("panel rejected admin creation", resp)
	}
	return nil
}

// userFromBody normalizes a user object. Bodies that are not JSON objects
// yield a RemoteUser carrying only the username.
func (s *Session) userFromBody(body []byte, username string) *RemoteUser {
	u := &RemoteUser{Username: username}
	raw, ok := decodeObject(body)
	if !ok {
		return u
	}
	u.Raw = raw
	if name := getString(raw, "username"); name != "" {
		u.Username = name
	}
	u.Status = getString(raw, "status")
	if v, found := parseInt64(raw["data_limit"]); found {
		u.DataLimit = &v
	}
	if v, found := parseInt64(raw["used_traffic"]); found {
		u.UsedTraffic = &v
	}
	if v, found := parseTimeToUnix(raw["expire"]); found && v > 0 {
		u.Expire = &v
	}
	u.SubscriptionURL = ExtractSubscriptionURL(raw)
	return u
}
