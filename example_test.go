package hubshim_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adamwoolhether/hubshim"
	"github.com/adamwoolhether/hubshim/hub"
	"github.com/adamwoolhether/hubshim/legacy"
)

func ExampleNew() {
	content := []byte("hello")
	sum := sha256.Sum256(content)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Repo-Commit", "0123456789abcdef0123456789abcdef01234567")
		w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodGet {
			_, _ = w.Write(content)
		}
	}))
	defer ts.Close()

	cacheDir, _ := os.MkdirTemp("", "hubshim-example-")
	defer os.RemoveAll(cacheDir)

	os.Setenv("HF_ENDPOINT", ts.URL)
	os.Setenv("HF_HUB_CACHE", cacheDir)
	os.Setenv("HF_HUB_OFFLINE", "")
	defer os.Unsetenv("HF_ENDPOINT")
	defer os.Unsetenv("HF_HUB_CACHE")
	defer os.Unsetenv("HF_HUB_OFFLINE")

	ns, err := hubshim.New()
	if err != nil {
		fmt.Println("new error:", err)
		return
	}

	fmt.Println(ns.Names())

	download, ok := hub.Lookup[legacy.Func](ns, legacy.FuncName)
	if !ok {
		fmt.Println("cached_download not installed")
		return
	}

	path, err := download(context.Background(), legacy.Request{
		URL: ts.URL + "/org/model/resolve/main/greeting.txt",
	})
	if err != nil {
		fmt.Println("download error:", err)
		return
	}

	b, _ := os.ReadFile(path)
	rel, _ := filepath.Rel(cacheDir, path)
	fmt.Println(filepath.ToSlash(rel))
	fmt.Println(string(b))
	// Output:
	// [cached_download hf_hub_download]
	// models--org--model/snapshots/0123456789abcdef0123456789abcdef01234567/greeting.txt
	// hello
}
