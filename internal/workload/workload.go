// Package workload assembles the inputs a single invocation needs: the
// compiled guest bytes and its descriptor/environment configuration.
package workload

import "github.com/wasmkeep/wasmkeep/internal/descriptors"

// Package is the immutable input to one invocation. It is discarded once
// keep.Execute returns.
type Package struct {
	ModuleBytes []byte
	Config      descriptors.Config
}
