package builder

import "context"

// BuildOptions carries per-service build settings.
type BuildOptions struct {
	// Tag is the fully qualified reference the built image is tagged with.
	Tag string

	// Dockerfile is the path of the Dockerfile relative to the context
	// directory. Empty means "Dockerfile".
	Dockerfile string

	// BuildArgs are passed through to the build.
	BuildArgs map[string]string
}

// ImageBuilder is the external container tooling the publisher drives. Tests
// substitute a fake; production uses the docker CLI or the Engine API.
type ImageBuilder interface {
	// Login configures credentials for the registry host. Called once per
	// run, before any build.
	Login(ctx context.Context, registryHost string) error

	// Build produces a locally tagged image from the context directory.
	Build(ctx context.Context, contextDir string, opts BuildOptions) error

	// Push uploads the tag to its registry. Auth failures surface here.
	Push(ctx context.Context, tag string) error
}
