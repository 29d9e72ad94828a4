package discovery

import (
	"github.com/shipouthq/shipout/internal/discovery/signals"
	"github.com/shipouthq/shipout/internal/filesystems"
)

// NewWithDefaults wires the standard signal set: explicit deployment specs
// (skaffold, compose) outrank a bare Dockerfile for the same context.
func NewWithDefaults(filesystem filesystems.FileSystem) *Discovery {
	return New(filesystem,
		signals.NewSkaffoldSignal(filesystem),
		signals.NewComposeSignal(filesystem),
		signals.NewDockerfileSignal(filesystem),
	)
}
