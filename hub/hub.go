package hub

import (
	"cmp"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/hubshim/client"
)

// Version is reported in the User-Agent header.
const Version = "0.4.0"

const (
	instrumentationName = "github.com/adamwoolhether/hubshim/hub"

	// maxRelativeRedirects bounds how many same-host redirects (renamed
	// repositories) a metadata request follows.
	maxRelativeRedirects = 5
)

var sha256Re = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Hub downloads files from a model hub into a local cache.
// It is safe for concurrent use.
type Hub struct {
	cfg        Config
	endpoint   *url.URL
	logger     *slog.Logger
	tracer     trace.Tracer
	progress   bool
	metrics    *metrics
	clientOpts []client.Option

	// meta never follows redirects so metadata is read from the first
	// response; data follows them to the storage backend.
	meta *client.Client
	data *client.Client

	// proxied holds client pairs per proxy set, keyed by proxyKey, so
	// repeated calls share a throttle and a connection pool.
	proxyMu sync.Mutex
	proxied map[string]clientPair
}

type clientPair struct {
	meta *client.Client
	data *client.Client
}

// New builds a *Hub from cfg. Zero Endpoint and EtagTimeout fall back to
// DefaultEndpoint and DefaultEtagTimeout. An empty CacheDir becomes
// <Home>/hub, where an empty Home is resolved as [LoadConfig] does.
func New(cfg Config, optFns ...Option) (*Hub, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying hub option: %w", err)
		}
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.EtagTimeout == 0 {
		cfg.EtagTimeout = DefaultEtagTimeout
	}
	if cfg.CacheDir == "" {
		home := cfg.Home
		if home == "" {
			var err error
			if home, err = defaultHome(os.Getenv("XDG_CACHE_HOME")); err != nil {
				return nil, err
			}
		}
		cfg.CacheDir = filepath.Join(home, "hub")
	}

	endpoint, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute URL, got %q", cfg.Endpoint)
	}

	h := &Hub{
		cfg:        cfg,
		endpoint:   endpoint,
		logger:     slog.Default(),
		tracer:     otel.Tracer(instrumentationName),
		progress:   opts.progress,
		clientOpts: opts.clientOpts,
		proxied:    make(map[string]clientPair),
	}

	if opts.logger != nil {
		h.logger = opts.logger
	}

	if opts.tracer != nil {
		h.tracer = opts.tracer
	}

	if opts.registerer != nil {
		if h.metrics, err = newMetrics(opts.registerer); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	h.meta, h.data, err = h.buildClients(nil)
	if err != nil {
		return nil, err
	}

	return h, nil
}

// Register binds the download primitive into ns under [FuncHubDownload].
func (h *Hub) Register(ns *Namespace) {
	ns.Bind(FuncHubDownload, FetchFunc(h.Download))
}

// Download fetches a single file and returns its path inside the cache.
// An up-to-date cached copy is returned without transferring the file again.
func (h *Hub) Download(ctx context.Context, p Params) (_ string, err error) {
	p = p.withDefaults(h.cfg)

	ctx, span := h.tracer.Start(ctx, "hub.Download", trace.WithAttributes(
		attribute.String("hub.repo_id", p.RepoID),
		attribute.String("hub.repo_type", string(p.RepoType)),
		attribute.String("hub.revision", p.Revision),
		attribute.String("hub.filename", p.Filename),
	))
	start := time.Now()
	var cacheHit bool
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Bool("hub.cache_hit", cacheHit))
		}
		span.End()
		h.metrics.observe(err, cacheHit, time.Since(start))
	}()

	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("validating params: %w", err)
	}

	requestID := uuid.NewString()
	logger := h.logger.With("request_id", requestID, "repo_id", p.RepoID, "revision", p.Revision, "filename", p.Filename)

	if p.ResumeDownload != nil {
		logger.Warn("resume_download is deprecated and ignored, downloads always restart")
	}

	store := newStorage(p.CacheDir, p.RepoType, p.RepoID)

	if p.LocalFilesOnly || h.cfg.Offline {
		path, ok, err := store.cachedSnapshot(p.Revision, p.Filename)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%w: %s@%s: %s", ErrLocalEntryNotFound, p.RepoID, p.Revision, p.Filename)
		}
		cacheHit = true
		return h.finish(ctx, p, path, logger)
	}

	if commitHashRe.MatchString(p.Revision) && !p.ForceDownload {
		if pointer := store.snapshotPath(p.Revision, p.Filename); exists(pointer) {
			cacheHit = true
			return h.finish(ctx, p, pointer, logger)
		}
	}

	token, err := p.Token.resolve(h.cfg.Token)
	if err != nil {
		return "", err
	}

	headers := map[string][]string{
		"User-Agent":      {buildUserAgent(p.LibraryName, p.LibraryVersion, p.UserAgent)},
		"Accept-Encoding": {"identity"},
		"X-Amzn-Trace-Id": {requestID},
	}
	if token != "" {
		headers["Authorization"] = []string{"Bearer " + token}
	}

	meta, data, err := h.clientsFor(p.Proxies)
	if err != nil {
		return "", err
	}

	fileURL := h.resolveURL(p)

	md, err := fetchMetadata(ctx, meta, fileURL, headers, p.EtagTimeout)
	if err != nil {
		hubErr, isHubErr := hubError(err, fileURL.String())
		if isHubErr {
			err = hubErr
		}

		switch {
		case isHubErr && definitive(hubErr):
			return "", hubErr
		case ctx.Err() != nil || errors.Is(err, ErrMissingCommit) || errors.Is(err, ErrMissingETag):
			return "", fmt.Errorf("fetching metadata: %w", err)
		}

		// The hub is unreachable or failing; a previously cached copy is still good.
		if path, ok, cacheErr := store.cachedSnapshot(p.Revision, p.Filename); cacheErr == nil && ok && !p.ForceDownload {
			logger.Warn("hub unavailable, serving cached file", "error", err)
			cacheHit = true
			return h.finish(ctx, p, path, logger)
		}

		if isHubErr {
			return "", hubErr
		}
		return "", fmt.Errorf("fetching metadata: %w", err)
	}

	span.SetAttributes(attribute.String("hub.commit", md.commit), attribute.String("hub.etag", md.etag))

	if p.Revision != md.commit {
		if err := store.writeRef(p.Revision, md.commit); err != nil {
			return "", err
		}
	}

	pointer := store.snapshotPath(md.commit, p.Filename)
	blob := store.blobPath(md.etag)

	if !p.ForceDownload {
		if exists(pointer) {
			cacheHit = true
			return h.finish(ctx, p, pointer, logger)
		}
		if exists(blob) {
			if err := linkSnapshot(ctx, blob, pointer, logger); err != nil {
				return "", err
			}
			cacheHit = true
			return h.finish(ctx, p, pointer, logger)
		}
	}

	fl, err := store.lock(ctx, md.etag)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			logger.Error("failed to release blob lock", "error", err)
		}
	}()

	// Another download may have produced the blob while we waited on the lock.
	if p.ForceDownload || !exists(blob) {
		logger.Info("downloading file", "size", md.size)

		if err := h.fetchBlob(ctx, data, fileURL, headers, md, blob); err != nil {
			return "", err
		}
	}

	if err := linkSnapshot(ctx, blob, pointer, logger); err != nil {
		return "", err
	}

	return h.finish(ctx, p, pointer, logger)
}

// fetchBlob streams the file into blob, verifying LFS files by digest.
func (h *Hub) fetchBlob(ctx context.Context, c *client.Client, fileURL *url.URL, headers map[string][]string, md fileMetadata, blob string) error {
	req, err := client.Request(ctx, fileURL, http.MethodGet, client.WithHeaders(headers))
	if err != nil {
		return err
	}

	var opts []client.DownloadOption
	if sha256Re.MatchString(md.etag) {
		opts = append(opts, client.WithChecksum(sha256.New(), md.etag))
	}
	if h.progress {
		opts = append(opts, client.WithProgress())
	}

	if err := c.Download(req, http.StatusOK, blob, opts...); err != nil {
		if hubErr, ok := hubError(err, fileURL.String()); ok {
			return hubErr
		}
		return fmt.Errorf("downloading %s: %w", fileURL, err)
	}

	if info, err := os.Stat(blob); err == nil {
		h.metrics.addBytes(info.Size())
	}

	return nil
}

// finish applies ForceFilename, copying the cached file to its requested name.
func (h *Hub) finish(ctx context.Context, p Params, path string, logger *slog.Logger) (string, error) {
	if p.ForceFilename == "" {
		return path, nil
	}

	dst := filepath.Join(p.CacheDir, filepath.FromSlash(p.ForceFilename))
	if err := copyFile(ctx, path, dst, logger); err != nil {
		return "", err
	}
	return dst, nil
}

// resolveURL builds {endpoint}/{prefix}{repo}/resolve/{revision}/{filename}.
// The revision is escaped as a single segment so "refs/pr/1" survives.
func (h *Hub) resolveURL(p Params) *url.URL {
	repo := p.RepoType.urlPrefix() + p.RepoID
	base := strings.TrimRight(h.endpoint.Path, "/")
	rawBase := strings.TrimRight(h.endpoint.EscapedPath(), "/")

	u := *h.endpoint
	u.Path = base + "/" + repo + "/resolve/" + p.Revision + "/" + p.Filename
	u.RawPath = rawBase + "/" + escapeSegments(repo) + "/resolve/" + url.PathEscape(p.Revision) + "/" + escapeSegments(p.Filename)
	u.RawQuery = ""
	u.Fragment = ""

	return &u
}

func escapeSegments(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// clientsFor returns the shared clients, or the pair routed through proxies.
// A proxy set is built once and reused by later calls.
func (h *Hub) clientsFor(proxies map[string]string) (*client.Client, *client.Client, error) {
	if len(proxies) == 0 {
		return h.meta, h.data, nil
	}

	key := proxyKey(proxies)

	h.proxyMu.Lock()
	defer h.proxyMu.Unlock()

	if pair, ok := h.proxied[key]; ok {
		return pair.meta, pair.data, nil
	}

	meta, data, err := h.buildClients(proxies)
	if err != nil {
		return nil, nil, err
	}
	h.proxied[key] = clientPair{meta: meta, data: data}

	return meta, data, nil
}

// proxyKey renders proxies in a stable order: "all=u1\nhttp=u2".
func proxyKey(proxies map[string]string) string {
	var b strings.Builder
	for _, scheme := range slices.Sorted(maps.Keys(proxies)) {
		b.WriteString(scheme)
		b.WriteByte('=')
		b.WriteString(proxies[scheme])
		b.WriteByte('\n')
	}
	return b.String()
}

func (h *Hub) buildClients(proxies map[string]string) (*client.Client, *client.Client, error) {
	base := slices.Concat(
		[]client.Option{client.WithLogger(h.logger)},
		h.clientOpts,
		[]client.Option{client.WithProxies(proxies)},
	)

	data, err := client.Build(base...)
	if err != nil {
		return nil, nil, fmt.Errorf("building data client: %w", err)
	}

	meta, err := client.Build(slices.Concat(base, []client.Option{client.WithNoFollowRedirects()})...)
	if err != nil {
		return nil, nil, fmt.Errorf("building metadata client: %w", err)
	}

	return meta, data, nil
}

// /////////////////////////////////////////////////////////////////

// fileMetadata is what a HEAD on a resolve URL tells us about a file.
type fileMetadata struct {
	commit string
	etag   string
	size   int64
}

// fetchMetadata issues the HEAD request, following only relative
// redirects. Headers of an absolute redirect (to a storage backend) are
// used as-is since they already describe the file.
func fetchMetadata(ctx context.Context, c *client.Client, u *url.URL, headers map[string][]string, timeout time.Duration) (fileMetadata, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target := u
	for range maxRelativeRedirects + 1 {
		req, err := client.Request(ctx, target, http.MethodHead, client.WithHeaders(headers))
		if err != nil {
			return fileMetadata{}, err
		}

		status, header, err := c.Head(req,
			http.StatusOK,
			http.StatusMovedPermanently,
			http.StatusFound,
			http.StatusSeeOther,
			http.StatusTemporaryRedirect,
			http.StatusPermanentRedirect,
		)
		if err != nil {
			return fileMetadata{}, err
		}

		if status != http.StatusOK {
			loc, err := url.Parse(header.Get("Location"))
			if err != nil {
				return fileMetadata{}, fmt.Errorf("parsing redirect location: %w", err)
			}
			if loc.Host == "" {
				target = target.ResolveReference(loc)
				continue
			}
		}

		return parseMetadata(header)
	}

	return fileMetadata{}, fmt.Errorf("more than %d relative redirects for %s", maxRelativeRedirects, u)
}

func parseMetadata(header http.Header) (fileMetadata, error) {
	md := fileMetadata{
		commit: header.Get("X-Repo-Commit"),
		etag:   normalizeETag(cmp.Or(header.Get("X-Linked-Etag"), header.Get("ETag"))),
		size:   -1,
	}

	if md.commit == "" {
		return fileMetadata{}, ErrMissingCommit
	}
	if md.etag == "" {
		return fileMetadata{}, ErrMissingETag
	}
	if !safeComponent(md.commit) {
		return fileMetadata{}, fmt.Errorf("invalid commit %q", md.commit)
	}
	if !safeComponent(md.etag) {
		return fileMetadata{}, fmt.Errorf("invalid etag %q", md.etag)
	}

	if n, err := strconv.ParseInt(cmp.Or(header.Get("X-Linked-Size"), header.Get("Content-Length")), 10, 64); err == nil {
		md.size = n
	}

	return md, nil
}

// normalizeETag strips the weak marker and quotes: W/"abc" -> abc.
func normalizeETag(etag string) string {
	return strings.Trim(strings.TrimPrefix(etag, "W/"), `"`)
}

// safeComponent reports whether s can be used as a single path element.
func safeComponent(s string) bool {
	return validCachePath(s) && !strings.Contains(s, "/")
}
