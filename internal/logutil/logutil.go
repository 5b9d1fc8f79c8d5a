// Package logutil formats the traffic the harness sends on behalf of a
// browser session so it can be logged without leaking the session itself.
package logutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const redacted = "[REDACTED]"

// sessionKeys are names that carry a credential outright. The app's session
// cookie is called "session"; OIDC redirects carry code, state and nonce.
var sessionKeys = map[string]bool{
	"session":       true,
	"authorization": true,
	"code":          true,
	"state":         true,
	"nonce":         true,
	"idtoken":       true,
}

var sensitiveFragments = []string{"token", "secret", "password", "cookie", "jwt"}

// IsSensitiveLogField reports whether a header, JSON field or query
// parameter named key may hold a credential.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.NewReplacer("-", "", "_", "").Replace(normalized)
	if sessionKeys[normalized] {
		return true
	}
	for _, frag := range sensitiveFragments {
		if strings.Contains(normalized, frag) {
			return true
		}
	}
	return false
}

// FormatHeadersForLog returns sorted header text with credential values
// replaced. Cookie and Set-Cookie keep only the cookie names.
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var value string
		switch http.CanonicalHeaderKey(k) {
		case "Cookie":
			value = FormatCookiesForLog(parseCookieHeader(headers.Values(k)))
		case "Set-Cookie":
			value = FormatCookiesForLog(parseSetCookies(headers.Values(k)))
		default:
			if IsSensitiveLogField(k) {
				value = redacted
			} else {
				value = strings.Join(headers.Values(k), ", ")
			}
		}
		parts = append(parts, fmt.Sprintf("%s=%q", strings.ToLower(k), value))
	}
	return strings.Join(parts, "; ")
}

func parseCookieHeader(lines []string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, line := range lines {
		parsed, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		cookies = append(cookies, parsed...)
	}
	return cookies
}

func parseSetCookies(lines []string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, line := range lines {
		if c, err := http.ParseSetCookie(line); err == nil {
			cookies = append(cookies, c)
		}
	}
	return cookies
}

// FormatCookiesForLog lists cookie names only; values are credentials.
func FormatCookiesForLog(cookies []*http.Cookie) string {
	if len(cookies) == 0 {
		return "[]"
	}
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ",") + "]"
}

// RedactURLForLog drops userinfo and replaces credential query parameters,
// so an OIDC redirect can be logged hop by hop.
func RedactURLForLog(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.User = nil
	if clean.RawQuery != "" {
		q := clean.Query()
		for k := range q {
			if IsSensitiveLogField(k) {
				q[k] = []string{"REDACTED"}
			}
		}
		clean.RawQuery = q.Encode()
	}
	return clean.String()
}

// FormatBodyForLog truncates a response body and, for JSON, replaces
// credential fields at any depth.
func FormatBodyForLog(contentType string, body []byte, maxBytes int, truncated bool) string {
	if len(body) == 0 {
		return ""
	}
	if maxBytes > 0 && len(body) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}
	text := string(body)
	if strings.Contains(strings.ToLower(contentType), "json") {
		var payload any
		if err := json.Unmarshal(body, &payload); err == nil {
			if safe, err := json.Marshal(redactJSON(payload)); err == nil {
				text = string(safe)
			}
		}
	}
	if truncated {
		return text + " [truncated]"
	}
	return text
}

func redactJSON(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for k, child := range typed {
			if IsSensitiveLogField(k) {
				typed[k] = redacted
				continue
			}
			typed[k] = redactJSON(child)
		}
	case []any:
		for i, child := range typed {
			typed[i] = redactJSON(child)
		}
	}
	return v
}

// TruncateForLog returns a single-line preview of at most maxChars.
func TruncateForLog(value string, maxChars int) string {
	oneLine := strings.ReplaceAll(strings.TrimSpace(value), "\n", "\\n")
	if maxChars <= 0 || len(oneLine) <= maxChars {
		return oneLine
	}
	return oneLine[:maxChars] + "... [truncated]"
}
