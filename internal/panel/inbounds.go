package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"panelhub/internal/apperr"
)

// Inbound is a normalized remote inbound.
type Inbound struct {
	Tag      string `json:"tag"`
	Protocol string `json:"protocol"`
}

// inboundShape recognises one layout of the inbound listing.
type inboundShape struct {
	name    string
	match   func(raw interface{}) bool
	extract func(raw interface{}) []Inbound
}

// inboundShapes is tried in order; the first match wins.
var inboundShapes = []inboundShape{
	{
		name: "array",
		match: func(raw interface{}) bool {
			_, ok := raw.([]interface{})
			return ok
		},
		extract: func(raw interface{}) []Inbound {
			return normalizeInbounds(raw.([]interface{}), "")
		},
	},
	{
		name: "items",
		match: func(raw interface{}) bool {
			obj, ok := raw.(map[string]interface{})
			if !ok {
				return false
			}
			_, ok = obj["items"].([]interface{})
			return ok
		},
		extract: func(raw interface{}) []Inbound {
			return normalizeInbounds(raw.(map[string]interface{})["items"].([]interface{}), "")
		},
	},
	{
		name: "grouped",
		match: func(raw interface{}) bool {
			obj, ok := raw.(map[string]interface{})
			if !ok {
				return false
			}
			for _, v := range obj {
				if _, ok := v.([]interface{}); ok {
					return true
				}
			}
			return len(obj) == 0
		},
		extract: func(raw interface{}) []Inbound {
			obj := raw.(map[string]interface{})
			groups := make([]string, 0, len(obj))
			for k := range obj {
				groups = append(groups, k)
			}
			sort.Strings(groups)

			var out []Inbound
			for _, group := range groups {
				items, ok := obj[group].([]interface{})
				if !ok {
					continue
				}
				out = append(out, normalizeInbounds(items, group)...)
			}
			return out
		},
	},
}

// ParseInbounds normalizes an inbound listing body.
func ParseInbounds(body []byte) ([]Inbound, error) {
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperr.Wrap(apperr.UnexpectedPanelResponse, "inbound listing is not json", err)
	}
	for _, shape := range inboundShapes {
		if shape.match(raw) {
			return shape.extract(raw), nil
		}
	}
	return nil, apperr.New(apperr.UnexpectedPanelResponse, "unrecognized inbound listing shape")
}

func normalizeInbounds(items []interface{}, group string) []Inbound {
	out := make([]Inbound, 0, len(items))
	for _, item := range items {
		var ib Inbound
		switch v := item.(type) {
		case string:
			ib.Tag = strings.TrimSpace(v)
		case map[string]interface{}:
			ib = inboundFromObject(v, group)
		default:
			continue
		}
		if ib.Tag == "" && ib.Protocol == "" {
			continue
		}
		out = append(out, ib)
	}
	return out
}

func inboundFromObject(obj map[string]interface{}, group string) Inbound {
	ib := Inbound{Protocol: strings.ToLower(strings.TrimSpace(getString(obj, "protocol")))}
	for _, key := range []string{"tag", "id", "remark"} {
		if v := strings.TrimSpace(getString(obj, key)); v != "" {
			ib.Tag = v
			break
		}
	}
	if ib.Tag == "" {
		ib.Tag = group
	}
	if ib.Protocol == "" {
		ib.Protocol = strings.ToLower(group)
	}
	return ib
}

// ListInbounds fetches and normalizes the panel's inbound catalog.
func (s *Session) ListInbounds(ctx context.Context) ([]Inbound, error) {
	resp, err := s.do(ctx, http.MethodGet, "/api/inbounds")
	if err != nil {
		return nil, unreachable(err)
	}
	if !resp.OK() {
		return nil, apperr.Remote("panel refused inbound listing", resp.Status, resp.Text())
	}
	return ParseInbounds(resp.Body)
}

// GroupByProtocol keeps inbounds whose tag is in allowed and groups their
// tags by protocol. Inbounds without a protocol are dropped.
func GroupByProtocol(catalog []Inbound, allowed []string) map[string][]string {
	want := make(map[string]bool, len(allowed))
	for _, tag := range allowed {
		want[tag] = true
	}
	out := make(map[string][]string)
	for _, ib := range catalog {
		if !want[ib.Tag] || ib.Protocol == "" {
			continue
		}
		out[ib.Protocol] = append(out[ib.Protocol], ib.Tag)
	}
	return out
}
