package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/adamwoolhether/hubshim/client/throttle"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	throttle          *throttle.Config
	proxies           map[string]*url.URL
	noFollowRedirects bool
	logger            *slog.Logger
}

// WithClient replaces the default [http.Client] used by the [Client].
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the overall request timeout on the underlying [http.Client].
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithProxies routes requests through a proxy chosen by request scheme.
// Keys are "http", "https" or "all"; a scheme-specific entry wins over "all".
// An empty map is a no-op. The base transport must be an [*http.Transport].
func WithProxies(proxies map[string]string) Option {
	return func(c *options) error {
		if len(proxies) == 0 {
			return nil
		}

		parsed := make(map[string]*url.URL, len(proxies))
		for scheme, raw := range proxies {
			u, err := url.Parse(raw)
			if err != nil {
				return fmt.Errorf("parsing proxy for %q: %w", scheme, err)
			}
			if u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("proxy for %q must be an absolute URL, got %q", scheme, raw)
			}
			parsed[scheme] = u
		}
		c.proxies = parsed
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}

// withProxy clones base and installs a scheme-keyed proxy selector on it.
func withProxy(base http.RoundTripper, proxies map[string]*url.URL) (http.RoundTripper, error) {
	t, ok := base.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("proxies require an *http.Transport, got %T", base)
	}

	cpy := t.Clone()
	cpy.Proxy = func(r *http.Request) (*url.URL, error) {
		if u, ok := proxies[r.URL.Scheme]; ok {
			return u, nil
		}
		return proxies["all"], nil
	}

	return cpy, nil
}

// RequestOption is a functional option for [Request].
type RequestOption func(options *requestOpts) error

type requestOpts struct {
	headers map[string][]string
}

// WithHeaders adds custom headers to the outgoing request.
// Repeated use merges the header sets.
func WithHeaders(headers map[string][]string) RequestOption {
	return func(opts *requestOpts) error {
		if opts.headers == nil {
			opts.headers = make(map[string][]string, len(headers))
		}
		for k, v := range headers {
			opts.headers[k] = append(opts.headers[k], v...)
		}

		return nil
	}
}
