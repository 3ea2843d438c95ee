package panel

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		base, raw, want string
	}{
		{"https://panel.example:8443", "http://10.0.0.5/sub/abc123?x=1", "https://panel.example:8443/sub/abc123?x=1"},
		{"https://panel.example:8443/", "/sub/tok", "https://panel.example:8443/sub/tok"},
		{"https://panel.example", "http://internal/custom/path?q=2", "https://panel.example/custom/path?q=2"},
		{"https://panel.example", "http://internal", "https://panel.example/sub"},
		{"https://panel.example", "http://internal/prefix/sub/xyz/info", "https://panel.example/sub/xyz"},
		{"https://panel.example", "", ""},
	}
	for _, tc := range cases {
		if got := Canonicalize(tc.base, tc.raw); got != tc.want {
			t.Fatalf("Canonicalize(%q, %q) = %q, want %q", tc.base, tc.raw, got, tc.want)
		}
	}
}

func TestExtractSubscriptionURLOrder(t *testing.T) {
	cases := []struct {
		obj  map[string]interface{}
		want string
	}{
		{map[string]interface{}{"subscription_url": "a", "link": "b"}, "a"},
		{map[string]interface{}{"sub_link": "c"}, "c"},
		{map[string]interface{}{"user": map[string]interface{}{"subscription_url": "d"}}, "d"},
		{map[string]interface{}{"subscription_token": "tok"}, "/sub/tok"},
		{map[string]interface{}{"username": "x"}, ""},
	}
	for _, tc := range cases {
		if got := ExtractSubscriptionURL(tc.obj); got != tc.want {
			t.Fatalf("ExtractSubscriptionURL(%v) = %q, want %q", tc.obj, got, tc.want)
		}
	}
}
