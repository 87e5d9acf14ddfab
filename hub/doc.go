// Package hub downloads single files from a model hub into the shared
// on-disk cache and exposes that operation through a [Namespace].
//
// # Downloading
//
// Build a [Hub] from [LoadConfig] and fetch a file:
//
//	cfg, err := hub.LoadConfig()
//	h, err := hub.New(cfg, hub.WithProgress())
//	path, err := h.Download(ctx, hub.Params{
//		RepoID:   "org/model",
//		Filename: "config.json",
//	})
//
// Each file is resolved with a HEAD request that reports the commit and
// content hash. The content lives once under blobs/, and every revision
// that contains it gets a snapshot entry pointing at the blob:
//
//	<cache>/models--org--model/blobs/<etag>
//	<cache>/models--org--model/refs/main
//	<cache>/models--org--model/snapshots/<commit>/config.json
//
// A snapshot that is already present is returned without a transfer, and
// with LocalFilesOnly (or HF_HUB_OFFLINE) no request is made at all.
//
// # Errors
//
// Hub failures are [*HubError] values that match the sentinel derived from
// the server's X-Error-Code header:
//
//	if errors.Is(err, hub.ErrRepositoryNotFound) { ... }
//
// # Namespace
//
// [Hub.Register] binds [Hub.Download] under [FuncHubDownload] so adapters
// can look it up with [Lookup].
package hub
