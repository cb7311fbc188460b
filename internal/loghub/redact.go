package loghub

import (
	"net/url"
	"regexp"
	"strings"
)

var urlInTextRE = regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^\s"'<>]+`)

// Redact strips userinfo from every URL in s so that passwords in Redis or
// bridge URLs never reach a dashboard observer.
func Redact(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	return urlInTextRE.ReplaceAllStringFunc(s, redactURL)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("redacted")
	return u.String()
}
