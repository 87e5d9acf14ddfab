package client

import (
	"hash"

	"github.com/adamwoolhether/hubshim/client/download"
)

// Re-exports of the user-facing parts of [download], so callers of
// [Client.Download] rarely need to import it directly.

type (
	// DownloadOption is a functional option for [Client.Download].
	DownloadOption = download.Option

	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error
)

var (
	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = download.ErrDownloadCancelled
)

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithProgress enables periodic download progress logging.
func WithProgress() DownloadOption { return download.WithProgress() }
