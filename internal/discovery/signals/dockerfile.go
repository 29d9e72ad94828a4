package signals

import (
	"context"
	"strings"

	"github.com/shipouthq/shipout/internal/catalog"
	"github.com/shipouthq/shipout/internal/filesystems"
)

// DockerfileSignal claims any directory holding a Dockerfile as a buildable
// service named after the directory.
type DockerfileSignal struct {
	filesystem  filesystems.FileSystem
	contextDirs []string
}

func NewDockerfileSignal(filesystem filesystems.FileSystem) *DockerfileSignal {
	return &DockerfileSignal{filesystem: filesystem}
}

func (d *DockerfileSignal) Confidence() int {
	return 70 // indicates a buildable context, nothing about how it is deployed
}

func (d *DockerfileSignal) Reset() {
	d.contextDirs = nil
}

func (d *DockerfileSignal) ObserveEntry(ctx context.Context, dir string, entry filesystems.DirEntry) error {
	if !entry.IsDir() && strings.EqualFold(entry.Name(), "Dockerfile") {
		d.contextDirs = append(d.contextDirs, dir)
	}
	return nil
}

func (d *DockerfileSignal) GenerateCandidates(ctx context.Context) ([]catalog.ServiceDescriptor, error) {
	var candidates []catalog.ServiceDescriptor
	for _, contextDir := range d.contextDirs {
		candidates = append(candidates, catalog.ServiceDescriptor{
			Name:        d.filesystem.Base(contextDir),
			ContextPath: contextDir,
		})
	}
	return candidates, nil
}
