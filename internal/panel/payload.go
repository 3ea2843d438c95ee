package panel

import (
	"sort"

	"github.com/google/uuid"

	"panelhub/internal/models"
)

// UserSpec is the panel-neutral description of a remote user mutation.
type UserSpec struct {
	Username  string
	Status    string
	DataLimit int64
	// Expire is an absolute unix timestamp; nil means unlimited.
	Expire *int64
	// Inbounds groups inbound tags by protocol.
	Inbounds map[string][]string
}

func (u UserSpec) base() map[string]interface{} {
	status := u.Status
	if status == "" {
		status = "active"
	}
	body := map[string]interface{}{
		"username":                  u.Username,
		"status":                    status,
		"data_limit":                u.DataLimit,
		"data_limit_reset_strategy": "no_reset",
	}
	if u.Expire != nil {
		body["expire"] = *u.Expire
	}
	return body
}

func (u UserSpec) protocols() []string {
	out := make([]string, 0, len(u.Inbounds))
	for proto := range u.Inbounds {
		out = append(out, proto)
	}
	sort.Strings(out)
	return out
}

func (u UserSpec) tags() []string {
	var out []string
	for _, proto := range u.protocols() {
		out = append(out, u.Inbounds[proto]...)
	}
	return out
}

// payloadShape renders a UserSpec into one request body layout.
type payloadShape struct {
	name  string
	build func(UserSpec) map[string]interface{}
}

var canonicalShape = payloadShape{
	name: "canonical",
	build: func(u UserSpec) map[string]interface{} {
		body := u.base()
		proxies := make(map[string]interface{}, len(u.Inbounds))
		inbounds := make(map[string][]string, len(u.Inbounds))
		for _, proto := range u.protocols() {
			proxies[proto] = map[string]interface{}{}
			inbounds[proto] = u.Inbounds[proto]
		}
		body["proxies"] = proxies
		body["inbounds"] = inbounds
		return body
	},
}

var proxySettingsShape = payloadShape{
	name: "proxy_settings",
	build: func(u UserSpec) map[string]interface{} {
		body := u.base()
		settings := make(map[string]interface{}, len(u.Inbounds))
		for _, proto := range u.protocols() {
			switch proto {
			case "vmess", "vless":
				settings[proto] = map[string]interface{}{"id": uuid.NewString()}
			case "trojan":
				settings[proto] = map[string]interface{}{"password": uuid.NewString()}
			case "shadowsocks":
				settings[proto] = map[string]interface{}{
					"password": uuid.NewString(),
					"method":   "chacha20-ietf-poly1305",
				}
			default:
				settings[proto] = map[string]interface{}{}
			}
		}
		body["proxy_settings"] = settings
		body["inbounds"] = u.Inbounds
		return body
	},
}

var flatShape = payloadShape{
	name: "flat",
	build: func(u UserSpec) map[string]interface{} {
		body := u.base()
		body["inbound_tags"] = u.tags()
		body["protocols"] = u.protocols()
		return body
	},
}

// payloadShapesFor returns the body layouts to try for a panel type, most
// likely first.
func payloadShapesFor(panelType string) []payloadShape {
	if panelType == models.PanelTypePasarGuard {
		return []payloadShape{proxySettingsShape, canonicalShape, flatShape}
	}
	return []payloadShape{canonicalShape, flatShape, proxySettingsShape}
}

// UpdateBody renders a modify request. Quota and expiry are reset, not added
// to, and the user is reactivated. Proxies and inbounds are included only
// when the UserSpec carries them.
func (u UserSpec) UpdateBody() map[string]interface{} {
	body := u.base()
	delete(body, "username")
	if len(u.Inbounds) > 0 {
		full := canonicalShape.build(u)
		body["proxies"] = full["proxies"]
		body["inbounds"] = full["inbounds"]
	}
	return body
}
