package share

import (
	"net/url"
	"strings"
)

// ParseLink splits a share link into a stored session id or an inline
// payload. It accepts a full share URL, a bare query string or a raw
// payload. Spaces in a data parameter are read back as '+', which is how
// an unescaped payload survives query decoding.
func ParseLink(link string) (id, data string) {
	link = strings.TrimSpace(link)
	query := link
	if i := strings.IndexByte(link, '?'); i >= 0 {
		query = link[i+1:]
	} else if !strings.Contains(link, "=") {
		return "", link
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		return "", link
	}
	if id := q.Get("id"); id != "" {
		return id, ""
	}
	return "", strings.ReplaceAll(q.Get("data"), " ", "+")
}
