package legacy_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/adamwoolhether/hubshim/hub"
	"github.com/adamwoolhether/hubshim/legacy"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// recorder is a fetch primitive that remembers what it was called with.
type recorder struct {
	mu     sync.Mutex
	calls  []hub.Params
	result string
	err    error
}

func (r *recorder) fetch(_ context.Context, p hub.Params) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, p)
	return r.result, r.err
}

func TestCachedDownload_Forwards(t *testing.T) {
	rec := &recorder{result: "/cache/models--org--model/snapshots/abc/config.json"}

	adapter, err := legacy.New(rec.fetch, legacy.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}

	resume := true
	token := hub.TokenValue("hf_abc")
	ua := hub.UserAgentString("custom/1")

	path, err := adapter.CachedDownload(t.Context(), legacy.Request{
		URL:            "https://huggingface.co/org/model/resolve/v2/config.json",
		LibraryName:    "mylib",
		LibraryVersion: "1.2",
		CacheDir:       "/cache",
		ForceFilename:  "renamed.json",
		ResumeDownload: &resume,
		Proxies:        map[string]string{"https": "http://proxy:3128"},
		EtagTimeout:    3 * time.Second,
		LocalFilesOnly: true,
		UseAuthToken:   token,
		UserAgent:      ua,
		ForceDownload:  true,
		Extra:          map[string]any{"legacy_cache_layout": true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if path != rec.result {
		t.Errorf("path = %q, want %q", path, rec.result)
	}

	exp := []hub.Params{{
		RepoID:         "org/model",
		Filename:       "config.json",
		Revision:       "v2",
		LibraryName:    "mylib",
		LibraryVersion: "1.2",
		CacheDir:       "/cache",
		ForceFilename:  "renamed.json",
		ResumeDownload: &resume,
		Proxies:        map[string]string{"https": "http://proxy:3128"},
		EtagTimeout:    3 * time.Second,
		Token:          token,
		UserAgent:      ua,
		ForceDownload:  true,
		LocalFilesOnly: true,
	}}

	opts := cmp.Options{cmp.AllowUnexported(hub.Token{}, hub.UserAgent{})}
	if diff := cmp.Diff(exp, rec.calls, opts); diff != "" {
		t.Errorf("forwarded params mismatch (-want +got):\n%s", diff)
	}
}

func TestCachedDownload_Defaults(t *testing.T) {
	rec := &recorder{}

	adapter, err := legacy.New(rec.fetch, legacy.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}

	if _, err := adapter.CachedDownload(t.Context(), legacy.Request{URL: "https://huggingface.co/org/model/resolve/main/config.json"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exp := hub.Params{
		RepoID:      "org/model",
		Filename:    "config.json",
		Revision:    "main",
		EtagTimeout: legacy.DefaultEtagTimeout,
	}

	opts := cmp.Options{cmp.AllowUnexported(hub.Token{}, hub.UserAgent{}), cmpopts.EquateEmpty()}
	if diff := cmp.Diff(exp, rec.calls[0], opts); diff != "" {
		t.Errorf("forwarded params mismatch (-want +got):\n%s", diff)
	}
	if rec.calls[0].Token.IsSet() || rec.calls[0].UserAgent.IsSet() {
		t.Error("unset legacy token and user agent must stay unset")
	}
}

func TestCachedDownload_ErrorPassthrough(t *testing.T) {
	fetchErr := &hub.HubError{StatusCode: 404, Err: hub.ErrRepositoryNotFound}
	rec := &recorder{err: fetchErr}

	adapter, err := legacy.New(rec.fetch, legacy.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}

	_, err = adapter.CachedDownload(t.Context(), legacy.Request{URL: "https://huggingface.co/org/model/resolve/main/config.json"})
	if err != fetchErr {
		t.Errorf("expected the fetch error unchanged, got %v", err)
	}
}

func TestCachedDownload_MalformedURL(t *testing.T) {
	rec := &recorder{}

	adapter, err := legacy.New(rec.fetch, legacy.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}

	_, err = adapter.CachedDownload(t.Context(), legacy.Request{URL: "https://huggingface.co/org/model/resolve"})
	if !errors.Is(err, legacy.ErrMalformedURL) {
		t.Fatalf("expected ErrMalformedURL, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Error("fetch must not be called for a malformed URL")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := legacy.New(nil); err == nil {
		t.Error("expected error for nil fetch func")
	}
	if _, err := legacy.New((&recorder{}).fetch, legacy.WithLogger(nil)); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestInstall(t *testing.T) {
	rec := &recorder{result: "/cache/file"}

	ns := hub.NewNamespace()
	ns.Bind(hub.FuncHubDownload, hub.FetchFunc(rec.fetch))

	if !legacy.Install(ns, legacy.WithLogger(quietLogger())) {
		t.Fatal("expected first install to bind")
	}

	download, ok := hub.Lookup[legacy.Func](ns, legacy.FuncName)
	if !ok {
		t.Fatal("expected legacy.Func under FuncName")
	}

	path, err := download(t.Context(), legacy.Request{URL: "https://huggingface.co/org/model/resolve/main/config.json"})
	if err != nil || path != "/cache/file" {
		t.Fatalf("installed func returned %q, %v", path, err)
	}

	if legacy.Install(ns) {
		t.Error("second install must be a no-op")
	}

	again, _ := hub.Lookup[legacy.Func](ns, legacy.FuncName)
	if _, err := again(t.Context(), legacy.Request{URL: "https://huggingface.co/org/model/resolve/main/config.json"}); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 2 {
		t.Errorf("fetch called %d times, want 2 (no double wrapping)", len(rec.calls))
	}
}

func TestInstall_NotApplicable(t *testing.T) {
	t.Run("nil namespace", func(t *testing.T) {
		if legacy.Install(nil) {
			t.Error("install into nil namespace must not bind")
		}
	})

	t.Run("primitive absent", func(t *testing.T) {
		ns := hub.NewNamespace()
		ns.Bind("unrelated", 1)

		if legacy.Install(ns) {
			t.Error("install without the primitive must not bind")
		}
		if diff := cmp.Diff([]string{"unrelated"}, ns.Names()); diff != "" {
			t.Errorf("namespace changed (-want +got):\n%s", diff)
		}
	})

	t.Run("primitive of wrong type", func(t *testing.T) {
		ns := hub.NewNamespace()
		ns.Bind(hub.FuncHubDownload, func() {})

		if legacy.Install(ns) {
			t.Error("install must not bind over an incompatible primitive")
		}
	})

	t.Run("legacy name taken", func(t *testing.T) {
		ns := hub.NewNamespace()
		ns.Bind(hub.FuncHubDownload, hub.FetchFunc((&recorder{}).fetch))
		ns.Bind(legacy.FuncName, "existing")

		if legacy.Install(ns) {
			t.Error("install must not replace an existing legacy binding")
		}
		if v, _ := hub.Lookup[string](ns, legacy.FuncName); v != "existing" {
			t.Errorf("existing binding replaced with %v", v)
		}
	})
}

func TestInstall_Concurrent(t *testing.T) {
	ns := hub.NewNamespace()
	ns.Bind(hub.FuncHubDownload, hub.FetchFunc((&recorder{}).fetch))

	var installed atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			if legacy.Install(ns, legacy.WithLogger(quietLogger())) {
				installed.Add(1)
			}
		})
	}
	wg.Wait()

	if got := installed.Load(); got != 1 {
		t.Errorf("installed %d times, want 1", got)
	}
}
