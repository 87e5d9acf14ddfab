package legacy

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/adamwoolhether/hubshim/hub"
)

// FuncName is the name the legacy entry point is installed under.
const FuncName = "cached_download"

// DefaultEtagTimeout is used when a [Request] leaves EtagTimeout zero.
const DefaultEtagTimeout = 10 * time.Second

// Func is the shape of the legacy entry point.
type Func func(ctx context.Context, req Request) (string, error)

// Request carries the arguments of a legacy cached_download call.
type Request struct {
	URL            string
	LibraryName    string
	LibraryVersion string
	CacheDir       string
	ForceFilename  string
	ResumeDownload *bool
	Proxies        map[string]string

	// EtagTimeout bounds the metadata request. Zero means DefaultEtagTimeout,
	// so an explicit zero is indistinguishable from an unset value.
	EtagTimeout time.Duration

	LocalFilesOnly bool
	UseAuthToken   hub.Token
	UserAgent      hub.UserAgent
	ForceDownload  bool

	// Extra holds keyword arguments the modern primitive has no field for.
	// They are accepted and dropped.
	Extra map[string]any
}

// Adapter translates legacy requests into calls to a [hub.FetchFunc].
type Adapter struct {
	fetch  hub.FetchFunc
	logger *slog.Logger
}

// New returns an Adapter that forwards to fetch.
func New(fetch hub.FetchFunc, optFns ...Option) (*Adapter, error) {
	if fetch == nil {
		return nil, errors.New("fetch func must not be nil")
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, err
		}
	}

	a := &Adapter{
		fetch:  fetch,
		logger: slog.Default(),
	}
	if opts.logger != nil {
		a.logger = opts.logger
	}

	return a, nil
}

// CachedDownload resolves req.URL and downloads the file it names. The
// result and any error of the underlying fetch are returned as-is.
func (a *Adapter) CachedDownload(ctx context.Context, req Request) (string, error) {
	target, err := ParseURL(req.URL)
	if err != nil {
		return "", err
	}

	if len(req.Extra) > 0 {
		a.logger.DebugContext(ctx, "ignoring unsupported arguments", "url", req.URL, "keys", slices.Sorted(maps.Keys(req.Extra)))
	}

	return a.fetch(ctx, params(target, req))
}

// params maps a legacy request onto the modern argument set.
func params(target Target, req Request) hub.Params {
	etagTimeout := req.EtagTimeout
	if etagTimeout == 0 {
		etagTimeout = DefaultEtagTimeout
	}

	return hub.Params{
		RepoID:         target.RepoID,
		Filename:       target.Filename,
		Revision:       target.Revision,
		LibraryName:    req.LibraryName,
		LibraryVersion: req.LibraryVersion,
		CacheDir:       req.CacheDir,
		ForceFilename:  req.ForceFilename,
		ResumeDownload: req.ResumeDownload,
		Proxies:        req.Proxies,
		EtagTimeout:    etagTimeout,
		Token:          req.UseAuthToken,
		UserAgent:      req.UserAgent,
		ForceDownload:  req.ForceDownload,
		LocalFilesOnly: req.LocalFilesOnly,
	}
}
