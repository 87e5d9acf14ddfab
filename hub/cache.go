package hub

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/adamwoolhether/hubshim/client/download"
)

var commitHashRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// lockRetryDelay is how often a blocked download re-checks the blob lock.
const lockRetryDelay = 100 * time.Millisecond

// repoFolderName returns the cache folder for a repo, for example
// "models--org--name".
func repoFolderName(repoType RepoType, repoID string) string {
	parts := append([]string{string(repoType) + "s"}, strings.Split(repoID, "/")...)
	return strings.Join(parts, "--")
}

// storage addresses one repository inside a cache directory:
//
//	<cache>/<folder>/blobs/<etag>
//	<cache>/<folder>/refs/<revision>
//	<cache>/<folder>/snapshots/<commit>/<filename>
type storage struct {
	cacheDir string
	folder   string
}

func newStorage(cacheDir string, repoType RepoType, repoID string) storage {
	return storage{cacheDir: cacheDir, folder: repoFolderName(repoType, repoID)}
}

func (s storage) root() string { return filepath.Join(s.cacheDir, s.folder) }

func (s storage) blobPath(etag string) string {
	return filepath.Join(s.root(), "blobs", etag)
}

func (s storage) refPath(revision string) string {
	return filepath.Join(s.root(), "refs", filepath.FromSlash(revision))
}

func (s storage) snapshotPath(commit, filename string) string {
	return filepath.Join(s.root(), "snapshots", commit, filepath.FromSlash(filename))
}

func (s storage) lockPath(etag string) string {
	return filepath.Join(s.cacheDir, ".locks", s.folder, etag+".lock")
}

// readRef returns the commit a revision points at, or "" if unknown.
func (s storage) readRef(revision string) (string, error) {
	b, err := os.ReadFile(s.refPath(revision))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading ref: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// writeRef records that revision points at commit, skipping the write
// when the ref is already current.
func (s storage) writeRef(revision, commit string) error {
	current, err := s.readRef(revision)
	if err != nil {
		return err
	}
	if current == commit {
		return nil
	}

	path := s.refPath(revision)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating refs dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ref-*")
	if err != nil {
		return fmt.Errorf("creating ref temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(commit); err != nil {
		tmp.Close()
		return fmt.Errorf("writing ref: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing ref: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming ref: %w", err)
	}

	return nil
}

// cachedSnapshot returns the snapshot path for filename at revision if it
// is present on disk. revision may be a branch, tag or commit hash.
func (s storage) cachedSnapshot(revision, filename string) (string, bool, error) {
	commit := revision
	if !commitHashRe.MatchString(revision) {
		ref, err := s.readRef(revision)
		if err != nil {
			return "", false, err
		}
		if ref == "" {
			return "", false, nil
		}
		commit = ref
	}

	path := s.snapshotPath(commit, filename)
	if !exists(path) {
		return "", false, nil
	}
	return path, true, nil
}

// lock takes the per-blob file lock, blocking until it is acquired or ctx ends.
func (s storage) lock(ctx context.Context, etag string) (*flock.Flock, error) {
	path := s.lockPath(etag)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("locking blob: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("locking blob: %s not acquired", path)
	}

	return fl, nil
}

// linkSnapshot points the snapshot entry at its blob, replacing any
// existing entry. It prefers a relative symlink and falls back to a copy
// where symlinks are unavailable.
func linkSnapshot(ctx context.Context, blob, pointer string, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(pointer), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	if err := os.Remove(pointer); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale snapshot entry: %w", err)
	}

	rel, err := filepath.Rel(filepath.Dir(pointer), blob)
	if err == nil {
		if err = os.Symlink(rel, pointer); err == nil {
			return nil
		}
	}

	logger.Warn("symlink unavailable, copying blob into snapshot", "error", err)
	return copyFile(ctx, blob, pointer, logger)
}

// copyFile writes a copy of src to dst through the atomic temp-file writer.
func copyFile(ctx context.Context, src, dst string, logger *slog.Logger) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	if err := download.Handle(ctx, f, info.Size(), dst, logger); err != nil {
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
