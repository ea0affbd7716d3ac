// Package builtin holds the explicit table of scanner adapters shipped
// with scanforge.
package builtin

import (
	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/adapter/bandit"
	"github.com/scanforge/scanforge/pkg/adapter/nuclei"
	"github.com/scanforge/scanforge/pkg/adapter/semgrep"
	"github.com/scanforge/scanforge/pkg/adapter/trivy"
)

// Adapters returns a fresh instance of every built-in adapter.
func Adapters() []adapter.Adapter {
	return []adapter.Adapter{
		semgrep.New(),
		bandit.New(),
		trivy.NewFS(),
		trivy.NewImage(),
		nuclei.New(),
	}
}

// Registry returns a registry of every built-in adapter.
func Registry() *adapter.Registry {
	r, err := adapter.NewRegistry(Adapters()...)
	if err != nil {
		// Names are compile-time constants; a clash is a programming error.
		panic(err)
	}
	return r
}
