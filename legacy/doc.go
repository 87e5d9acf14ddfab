// Package legacy restores the cached_download entry point on top of the
// hub's download primitive.
//
// Legacy callers pass a full resolve URL instead of separate arguments:
//
//	https://huggingface.co/org/model/resolve/main/config.json
//
// [ParseURL] turns that into repo id "org/model", revision "main" and
// filename "config.json", and [Adapter.CachedDownload] forwards it to the
// primitive with the remaining arguments renamed (UseAuthToken becomes
// Token).
//
// [Install] binds the adapter into a [hub.Namespace] at the composition
// root:
//
//	ns := hub.NewNamespace()
//	h.Register(ns)
//	legacy.Install(ns)
//
//	download, _ := hub.Lookup[legacy.Func](ns, legacy.FuncName)
//	path, err := download(ctx, legacy.Request{URL: u})
package legacy
