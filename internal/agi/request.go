package agi

import (
	"net/url"
	"strings"
)

// RequestURL carries the invocation parameters extracted from agi_request,
// of the form agi://host[:port]/seg1/seg2/...?k1=v1&k2=v2
type RequestURL struct {
	// Path holds the non-empty path segments, in order
	Path []string

	// Params holds the query parameters; a pair without '=' maps to ""
	Params map[string]string
}

// ParseRequestURL parses an AGI request URL. The scheme is not validated:
// Asterisk always sends agi:// but the parser accepts anything.
func ParseRequestURL(raw string) RequestURL {
	// split off the scheme at the first ':'
	if _, rest, ok := strings.Cut(raw, ":"); ok {
		raw = rest
	}
	raw = strings.TrimPrefix(raw, "//")

	// the authority ends at the first '/'
	var pathAndQuery string
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		pathAndQuery = raw[i:]
	}

	path, query, _ := strings.Cut(pathAndQuery, "?")

	u := RequestURL{Params: map[string]string{}}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		u.Path = append(u.Path, unescape(seg))
	}
	if query != "" {
		for _, pair := range strings.Split(query, "&") {
			k, v, _ := strings.Cut(pair, "=")
			if k == "" {
				continue
			}
			u.Params[unescape(k)] = unescape(v)
		}
	}
	return u
}

func unescape(s string) string {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return out
}
