package legacy

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/adamwoolhether/hubshim/hub"
)

// Marker is the path segment separating the repository id from the
// revision and filename in a resolve URL.
const Marker = "resolve"

// ErrMalformedURL is the sentinel wrapped by [URLError].
var ErrMalformedURL = errors.New("malformed hub url")

// URLError is returned by [ParseURL] when a URL cannot be mapped to a
// download target.
type URLError struct {
	URL    string
	Reason string
}

func (e *URLError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrMalformedURL, e.URL, e.Reason)
}

func (e *URLError) Unwrap() error {
	return ErrMalformedURL
}

// Target is what a resolve URL points at.
type Target struct {
	RepoID   string
	Revision string
	Filename string
}

// ParseURL splits a URL of the form
//
//	https://<host>/<repo-id>/resolve/<revision>/<filename>
//
// into its parts. The first "resolve" segment is the marker. Each segment is
// percent-decoded after splitting, so an encoded "/" stays inside its
// segment: ".../resolve/refs%2Fpr%2F1/config.json" has revision "refs/pr/1".
// Invalid escapes are kept literally: "100%done.txt" stays as is.
func ParseURL(raw string) (Target, error) {
	var segs []string
	for seg := range strings.SplitSeq(strings.Trim(escapedPath(raw), "/"), "/") {
		if seg == "" {
			continue
		}
		segs = append(segs, unescape(seg))
	}

	idx := slices.Index(segs, Marker)
	if idx < 0 {
		return Target{}, &URLError{URL: raw, Reason: "no " + Marker + " segment"}
	}

	target := Target{
		RepoID:   strings.Join(segs[:idx], "/"),
		Revision: hub.DefaultRevision,
	}

	rest := segs[idx+1:]
	if len(rest) > 0 {
		target.Revision = rest[0]
		rest = rest[1:]
	}

	if len(rest) == 0 {
		return Target{}, &URLError{URL: raw, Reason: "cannot infer filename"}
	}
	target.Filename = strings.Join(rest, "/")

	return target, nil
}

// escapedPath returns the still-escaped path of raw. URLs that net/url
// rejects are cut by hand: scheme and host dropped, query and fragment
// removed.
func escapedPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.EscapedPath()
	}

	path, _, _ := strings.Cut(raw, "#")
	path, _, _ = strings.Cut(path, "?")
	if _, rest, ok := strings.Cut(path, "://"); ok {
		path = ""
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			path = rest[i:]
		}
	}

	return path
}

// unescape percent-decodes seg, leaving malformed escapes untouched.
func unescape(seg string) string {
	if decoded, err := url.PathUnescape(seg); err == nil {
		return decoded
	}

	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		if seg[i] == '%' && i+2 < len(seg) {
			if decoded, err := url.PathUnescape(seg[i : i+3]); err == nil {
				b.WriteString(decoded)
				i += 2
				continue
			}
		}
		b.WriteByte(seg[i])
	}

	return b.String()
}
