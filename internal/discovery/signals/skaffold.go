package signals

import (
	"context"
	"strings"

	"github.com/GoogleContainerTools/skaffold/pkg/skaffold/schema/latest"
	"github.com/shipouthq/shipout/internal/catalog"
	"github.com/shipouthq/shipout/internal/filesystems"
	"gopkg.in/yaml.v3"
)

// SkaffoldSignal reads skaffold.yaml build artifacts. Skaffold configs name
// both the image and the workspace, so they outrank every other signal.
type SkaffoldSignal struct {
	filesystem  filesystems.FileSystem
	configPaths []string
	configDirs  map[string]string
}

func NewSkaffoldSignal(filesystem filesystems.FileSystem) *SkaffoldSignal {
	return &SkaffoldSignal{filesystem: filesystem}
}

func (s *SkaffoldSignal) Confidence() int {
	return 95
}

func (s *SkaffoldSignal) Reset() {
	s.configPaths = nil
	s.configDirs = make(map[string]string)
}

func (s *SkaffoldSignal) ObserveEntry(ctx context.Context, dir string, entry filesystems.DirEntry) error {
	if !entry.IsDir() && strings.EqualFold(entry.Name(), "skaffold.yaml") {
		configPath := s.filesystem.Join(dir, entry.Name())
		s.configPaths = append(s.configPaths, configPath)
		s.configDirs[configPath] = dir
	}
	return nil
}

func (s *SkaffoldSignal) GenerateCandidates(ctx context.Context) ([]catalog.ServiceDescriptor, error) {
	var candidates []catalog.ServiceDescriptor
	for _, configPath := range s.configPaths {
		config, err := s.parseConfig(configPath)
		if err != nil {
			continue // skip broken configs
		}

		configDir := s.configDirs[configPath]
		for _, artifact := range config.Build.Artifacts {
			candidates = append(candidates, catalog.ServiceDescriptor{
				Name:        s.deriveServiceName(artifact.ImageName, configDir),
				ContextPath: s.deriveContext(artifact, configDir),
			})
		}
	}
	return candidates, nil
}

func (s *SkaffoldSignal) parseConfig(configPath string) (*latest.SkaffoldConfig, error) {
	content, err := s.filesystem.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var config latest.SkaffoldConfig
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (s *SkaffoldSignal) deriveServiceName(imageName, configDir string) string {
	if imageName != "" {
		// Last path segment of the image name, e.g. "frontend" from
		// "us-central1-docker.pkg.dev/proj/demo/frontend"
		parts := strings.Split(imageName, "/")
		return parts[len(parts)-1]
	}
	return s.filesystem.Base(configDir)
}

func (s *SkaffoldSignal) deriveContext(artifact *latest.Artifact, configDir string) string {
	workspace := artifact.Workspace
	switch {
	case workspace == "" || workspace == ".":
		return configDir
	case strings.HasPrefix(workspace, "/"):
		return workspace
	case strings.HasPrefix(workspace, "./"):
		return s.filesystem.Join(configDir, workspace[2:])
	default:
		return s.filesystem.Join(configDir, workspace)
	}
}
