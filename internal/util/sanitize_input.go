package util

import (
	"html"
	"strings"
)

// SanitizeInput trims and escapes HTML/script-like characters before a value
// is echoed into logs or audit details.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// SanitizeUserAgent bounds and escapes a client user-agent string. Audit rows
// keep the first 256 characters; anything longer is noise or abuse.
func SanitizeUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if len(ua) > 256 {
		ua = ua[:256]
	}
	return html.EscapeString(ua)
}

// ContainsSuspicious flags obvious injection attempts in submitted fields.
func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}
	for _, c := range badChars {
		if strings.Contains(strings.ToLower(s), c) {
			return true
		}
	}
	return false
}
