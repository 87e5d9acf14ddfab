package legacy

import (
	"errors"
	"log/slog"

	"github.com/adamwoolhether/hubshim/hub"
)

// Option is a functional option for [New] and [Install].
type Option func(*options) error

type options struct {
	logger *slog.Logger
}

// WithLogger injects a custom [slog.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// Install binds [Adapter.CachedDownload] under [FuncName] in ns when ns
// provides the modern primitive under [hub.FuncHubDownload] and has no
// legacy binding yet. It reports whether it bound anything; every other
// outcome, including a nil ns, leaves ns untouched.
//
// Install is idempotent and safe for concurrent use.
func Install(ns *hub.Namespace, optFns ...Option) bool {
	if ns.Has(FuncName) {
		return false
	}

	fetch, ok := hub.Lookup[hub.FetchFunc](ns, hub.FuncHubDownload)
	if !ok {
		return false
	}

	adapter, err := New(fetch, optFns...)
	if err != nil {
		return false
	}

	if !ns.BindIfAbsent(FuncName, Func(adapter.CachedDownload)) {
		return false
	}

	adapter.logger.Debug("installed legacy entry point", "name", FuncName)
	return true
}
