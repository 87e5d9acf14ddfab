package hub

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/adamwoolhether/hubshim/client"
)

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrRevisionNotFound   = errors.New("revision not found")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrGatedRepo          = errors.New("gated repository")
	ErrDisabledRepo       = errors.New("disabled repository")

	// ErrLocalEntryNotFound is returned when the file is needed from the
	// cache (offline mode, local-files-only, or an unreachable hub) and is
	// not there.
	ErrLocalEntryNotFound = errors.New("local entry not found")
	ErrTokenNotFound      = errors.New("token requested but none configured")
	ErrMissingCommit      = errors.New("missing commit header")
	ErrMissingETag        = errors.New("missing etag header")
)

// errorCodes maps the hub's X-Error-Code response header to sentinels.
var errorCodes = map[string]error{
	"RepoNotFound":     ErrRepositoryNotFound,
	"RevisionNotFound": ErrRevisionNotFound,
	"EntryNotFound":    ErrEntryNotFound,
	"GatedRepo":        ErrGatedRepo,
}

// HubError describes a failed hub request. Err is the sentinel derived from
// the response (nil when the server gave no recognised code) and Cause is
// the underlying *client.UnexpectedStatusError.
type HubError struct {
	StatusCode int
	Code       string
	Message    string
	URL        string
	Err        error
	Cause      error
}

func (e *HubError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	if e.Err == nil {
		return fmt.Sprintf("hub request failed (%d) for %s: %s", e.StatusCode, e.URL, msg)
	}
	return fmt.Sprintf("%v (%d) for %s: %s", e.Err, e.StatusCode, e.URL, msg)
}

func (e *HubError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// definitive reports whether e settles the request for good: a recognised
// hub error or an authorization failure. Anything else (5xx answers in
// particular) may be served from the cache instead.
func definitive(e *HubError) bool {
	return e.Err != nil || e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// hubError converts a client status error into a *HubError. ok is false
// for errors that never reached the server.
func hubError(err error, rawURL string) (*HubError, bool) {
	var statusErr *client.UnexpectedStatusError
	if !errors.As(err, &statusErr) {
		return nil, false
	}

	code := statusErr.Header.Get("X-Error-Code")
	sentinel := errorCodes[code]

	switch {
	case sentinel != nil:
	case statusErr.StatusCode == http.StatusForbidden && statusErr.Header.Get("X-Error-Message") == "Access to this resource is disabled.":
		sentinel = ErrDisabledRepo
	case statusErr.StatusCode == http.StatusNotFound:
		sentinel = ErrEntryNotFound
	}

	return &HubError{
		StatusCode: statusErr.StatusCode,
		Code:       code,
		Message:    statusErr.Header.Get("X-Error-Message"),
		URL:        rawURL,
		Err:        sentinel,
		Cause:      statusErr,
	}, true
}
