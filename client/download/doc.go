// Package download streams HTTP response bodies to disk with optional
// checksum validation and progress reporting.
//
// [Handle] writes the body to a hidden ".incomplete-*" file alongside the
// destination path, then atomically renames it on success. A reader that
// sees destPath therefore always sees a complete file:
//
//	err := download.Handle(ctx, resp.Body, resp.ContentLength, blobPath, logger,
//		download.WithChecksum(sha256.New(), etag),
//	)
//
// Most callers should use [github.com/adamwoolhether/hubshim/client.Client.Download],
// which invokes Handle internally.
package download
