package peek

import (
	"net/url"
	"regexp"
)

var absoluteHTTP = regexp.MustCompile(`(?i)^https?://`)

// ResolveTarget unwraps redirect links of the form "...?url=<absolute URL>".
// Anything else, including input that does not parse, is returned as is.
func ResolveTarget(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	inner := u.Query().Get("url")
	if inner == "" || !absoluteHTTP.MatchString(inner) {
		return rawURL
	}
	return inner
}
