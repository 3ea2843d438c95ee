package panel

import (
	"net/url"
	"strings"
)

// Canonicalize rewrites a panel-returned subscription link onto the panel's
// own public scheme and host. Empty input yields empty output.
func Canonicalize(baseURL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	base, err := url.Parse(trimBase(baseURL))
	if err != nil || base.Host == "" {
		return raw
	}
	ru, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	path := ru.Path
	if token := subToken(path); token != "" {
		path = "/sub/" + token
	} else if path == "" {
		path = "/sub"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	out := url.URL{
		Scheme:   base.Scheme,
		Host:     base.Host,
		Path:     path,
		RawQuery: ru.RawQuery,
	}
	return out.String()
}

// subToken returns the segment following /sub/ in path, if any.
func subToken(path string) string {
	idx := strings.Index(path, "/sub/")
	if idx < 0 {
		return ""
	}
	rest := path[idx+len("/sub/"):]
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// subscriptionExtractor pulls a raw subscription link out of a user object.
type subscriptionExtractor func(obj map[string]interface{}) string

func linkKey(key string) subscriptionExtractor {
	return func(obj map[string]interface{}) string {
		return strings.TrimSpace(getString(obj, key))
	}
}

func nestedLinkKey(parent, key string) subscriptionExtractor {
	return func(obj map[string]interface{}) string {
		inner, ok := obj[parent].(map[string]interface{})
		if !ok {
			return ""
		}
		return strings.TrimSpace(getString(inner, key))
	}
}

func tokenKey(key string) subscriptionExtractor {
	return func(obj map[string]interface{}) string {
		if tok := strings.TrimSpace(getString(obj, key)); tok != "" {
			return "/sub/" + tok
		}
		return ""
	}
}

var subscriptionExtractors = []subscriptionExtractor{
	linkKey("subscription_url"),
	linkKey("subscription"),
	linkKey("sub_url"),
	linkKey("subscription_link"),
	linkKey("sub_link"),
	linkKey("link"),
	nestedLinkKey("user", "subscription_url"),
	tokenKey("subscription_token"),
	tokenKey("sub_token"),
}

// ExtractSubscriptionURL returns the first subscription link found in obj.
func ExtractSubscriptionURL(obj map[string]interface{}) string {
	for _, extract := range subscriptionExtractors {
		if v := extract(obj); v != "" {
			return v
		}
	}
	return ""
}
