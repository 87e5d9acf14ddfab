//go:build integration

package e2e_test

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/adamwoolhether/hubshim"
	"github.com/adamwoolhether/hubshim/client"
	"github.com/adamwoolhether/hubshim/hub"
	"github.com/adamwoolhether/hubshim/legacy"
)

// -------------------------------------------------------------------------
// Types
// -------------------------------------------------------------------------

const commit = "fedcba9876543210fedcba9876543210fedcba98"

type repoFile struct {
	content []byte
	etag    string
	gated   bool
}

// fakeHub is a minimal resolve endpoint serving files of one repo.
type fakeHub struct {
	mu    sync.Mutex
	files map[string]repoFile
	token string
	gets  atomic.Int32
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func newFakeHub(token string) *fakeHub {
	return &fakeHub{files: make(map[string]repoFile), token: token}
}

func (f *fakeHub) add(path string, content []byte, gated bool) {
	sum := sha256.Sum256(content)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[path] = repoFile{content: content, etag: hex.EncodeToString(sum[:]), gated: gated}
}

func (f *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	file, ok := f.files[r.URL.EscapedPath()]
	f.mu.Unlock()

	switch {
	case !ok && strings.HasPrefix(r.URL.Path, "/org/missing/"):
		w.Header().Set("X-Error-Code", "RepoNotFound")
		w.WriteHeader(http.StatusUnauthorized)
		return
	case !ok:
		w.Header().Set("X-Error-Code", "EntryNotFound")
		w.WriteHeader(http.StatusNotFound)
		return
	case file.gated && r.Header.Get("Authorization") != "Bearer "+f.token:
		w.Header().Set("X-Error-Code", "GatedRepo")
		w.Header().Set("X-Error-Message", "Access to model org/model is restricted.")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.Header().Set("X-Repo-Commit", commit)
	w.Header().Set("ETag", `"`+file.etag+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.content)))

	if r.Method == http.MethodGet {
		f.gets.Add(1)
		_, _ = w.Write(file.content)
	}
}

func setupEnv(t *testing.T, endpoint string) string {
	t.Helper()

	cacheDir := t.TempDir()
	t.Setenv("HF_ENDPOINT", endpoint)
	t.Setenv("HF_HOME", t.TempDir())
	t.Setenv("HF_HUB_CACHE", cacheDir)
	t.Setenv("HF_TOKEN", "hf_e2e")
	t.Setenv("HF_HUB_OFFLINE", "")
	t.Setenv("HF_HUB_ETAG_TIMEOUT", "")

	return cacheDir
}

func newNamespace(t *testing.T) *hub.Namespace {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ns, err := hubshim.New(
		hub.WithLogger(log),
		hub.WithClientOptions(client.WithThrottle(50, 10)),
	)
	if err != nil {
		t.Fatalf("building namespace: %v", err)
	}

	return ns
}

func cachedDownload(t *testing.T, ns *hub.Namespace) legacy.Func {
	t.Helper()

	fn, ok := hub.Lookup[legacy.Func](ns, legacy.FuncName)
	if !ok {
		t.Fatalf("%s not installed, have %v", legacy.FuncName, ns.Names())
	}

	return fn
}

// -------------------------------------------------------------------------
// Tests
// -------------------------------------------------------------------------

func TestE2E_LegacyDownload(t *testing.T) {
	fake := newFakeHub("hf_e2e")
	fake.add("/org/model/resolve/main/config.json", []byte(`{"layers": 12}`), false)
	fake.add("/org/model/resolve/main/weights/model.safetensors", []byte("weights"), true)

	srv := httptest.NewServer(fake)
	defer srv.Close()

	setupEnv(t, srv.URL)
	download := cachedDownload(t, newNamespace(t))

	t.Run("public file", func(t *testing.T) {
		path, err := download(t.Context(), legacy.Request{URL: srv.URL + "/org/model/resolve/main/config.json"})
		if err != nil {
			t.Fatalf("download: %v", err)
		}

		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}
		if string(b) != `{"layers": 12}` {
			t.Errorf("content = %q", b)
		}
	})

	t.Run("gated file with configured token", func(t *testing.T) {
		if _, err := download(t.Context(), legacy.Request{URL: srv.URL + "/org/model/resolve/main/weights/model.safetensors"}); err != nil {
			t.Fatalf("download: %v", err)
		}
	})

	t.Run("gated file with token disabled", func(t *testing.T) {
		_, err := download(t.Context(), legacy.Request{
			URL:           srv.URL + "/org/model/resolve/main/weights/model.safetensors",
			UseAuthToken:  hub.TokenDisabled(),
			ForceDownload: true,
		})
		if !errors.Is(err, hub.ErrGatedRepo) {
			t.Fatalf("expected ErrGatedRepo, got %v", err)
		}
		if !errors.Is(err, client.ErrAuthFailure) {
			t.Errorf("expected ErrAuthFailure, got %v", err)
		}
	})

	t.Run("missing repo", func(t *testing.T) {
		_, err := download(t.Context(), legacy.Request{URL: srv.URL + "/org/missing/resolve/main/config.json"})
		if !errors.Is(err, hub.ErrRepositoryNotFound) {
			t.Fatalf("expected ErrRepositoryNotFound, got %v", err)
		}
	})

	t.Run("malformed url", func(t *testing.T) {
		_, err := download(t.Context(), legacy.Request{URL: srv.URL + "/org/model/blob/main/config.json"})
		if !errors.Is(err, legacy.ErrMalformedURL) {
			t.Fatalf("expected ErrMalformedURL, got %v", err)
		}
	})

	if got := fake.gets.Load(); got != 2 {
		t.Errorf("GET requests = %d, want 2", got)
	}
}

func TestE2E_OfflineAfterDownload(t *testing.T) {
	fake := newFakeHub("hf_e2e")
	fake.add("/org/model/resolve/main/config.json", []byte("cfg"), false)

	srv := httptest.NewServer(fake)
	setupEnv(t, srv.URL)

	url := srv.URL + "/org/model/resolve/main/config.json"

	want, err := cachedDownload(t, newNamespace(t))(t.Context(), legacy.Request{URL: url})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	srv.Close()

	t.Setenv("HF_HUB_OFFLINE", "1")

	got, err := cachedDownload(t, newNamespace(t))(t.Context(), legacy.Request{URL: url})
	if err != nil {
		t.Fatalf("offline download: %v", err)
	}
	if got != want {
		t.Errorf("offline path = %q, want %q", got, want)
	}

	_, err = cachedDownload(t, newNamespace(t))(t.Context(), legacy.Request{URL: srv.URL + "/org/model/resolve/main/other.json"})
	if !errors.Is(err, hub.ErrLocalEntryNotFound) {
		t.Fatalf("expected ErrLocalEntryNotFound, got %v", err)
	}
}

func TestE2E_ModernPrimitive(t *testing.T) {
	fake := newFakeHub("hf_e2e")
	fake.add("/org/model/resolve/refs%2Fpr%2F3/config.json", []byte("pr"), false)

	srv := httptest.NewServer(fake)
	defer srv.Close()

	setupEnv(t, srv.URL)
	ns := newNamespace(t)

	fetch, ok := hub.Lookup[hub.FetchFunc](ns, hub.FuncHubDownload)
	if !ok {
		t.Fatal("hf_hub_download not bound")
	}

	modern, err := fetch(t.Context(), hub.Params{RepoID: "org/model", Revision: "refs/pr/3", Filename: "config.json"})
	if err != nil {
		t.Fatalf("modern download: %v", err)
	}

	viaLegacy, err := cachedDownload(t, ns)(t.Context(), legacy.Request{URL: srv.URL + "/org/model/resolve/refs%2Fpr%2F3/config.json"})
	if err != nil {
		t.Fatalf("legacy download: %v", err)
	}

	if modern != viaLegacy {
		t.Errorf("legacy path %q differs from modern path %q", viaLegacy, modern)
	}
	if got := fake.gets.Load(); got != 1 {
		t.Errorf("GET requests = %d, want 1", got)
	}
}
