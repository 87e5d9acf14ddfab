// Package hubshim wires the hub downloader and its legacy entry point into a
// single namespace.
package hubshim

import (
	"fmt"

	"github.com/adamwoolhether/hubshim/hub"
	"github.com/adamwoolhether/hubshim/legacy"
)

// New loads the hub configuration from the environment and returns a
// namespace with hf_hub_download bound and cached_download installed on top
// of it.
func New(opts ...hub.Option) (*hub.Namespace, error) {
	cfg, err := hub.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading hub config: %w", err)
	}

	h, err := hub.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating hub: %w", err)
	}

	ns := hub.NewNamespace()
	h.Register(ns)
	legacy.Install(ns)

	return ns, nil
}
