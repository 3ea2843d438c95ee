package utils

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID generates a UUID v4 string.
func GenerateUUID() string {
	return uuid.New().String()
}

var usernameStrip = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeUsername drops characters panels reject in usernames.
func SanitizeUsername(username string) string {
	return usernameStrip.ReplaceAllString(strings.TrimSpace(username), "")
}

// ValidUsername reports whether a username survives sanitising unchanged and
// has a length panels accept.
func ValidUsername(username string) bool {
	if len(username) < 3 || len(username) > 32 {
		return false
	}
	return SanitizeUsername(username) == username
}

// MBToBytes converts megabytes to bytes.
func MBToBytes(mb int64) int64 {
	return mb * 1024 * 1024
}

// Preview shortens a secret for display, keeping the first n characters.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SplitCSV splits a comma separated list, trimming blanks.
func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
