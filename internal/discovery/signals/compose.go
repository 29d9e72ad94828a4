package signals

import (
	"context"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composeTypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/shipouthq/shipout/internal/catalog"
	"github.com/shipouthq/shipout/internal/filesystems"
)

var composeFileNames = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// ComposeSignal turns compose services that carry a build section into
// catalog candidates. Image-only compose services are not buildable and are
// ignored.
type ComposeSignal struct {
	filesystem  filesystems.FileSystem
	configPaths []string
	configDirs  map[string]string
}

func NewComposeSignal(filesystem filesystems.FileSystem) *ComposeSignal {
	return &ComposeSignal{filesystem: filesystem}
}

func (s *ComposeSignal) Confidence() int {
	return 90 // compose explicitly names services and their build contexts
}

func (s *ComposeSignal) Reset() {
	s.configPaths = nil
	s.configDirs = make(map[string]string)
}

func (s *ComposeSignal) ObserveEntry(ctx context.Context, dir string, entry filesystems.DirEntry) error {
	if entry.IsDir() {
		return nil
	}
	for _, filename := range composeFileNames {
		if strings.EqualFold(entry.Name(), filename) {
			configPath := s.filesystem.Join(dir, entry.Name())
			s.configPaths = append(s.configPaths, configPath)
			s.configDirs[configPath] = dir
			break
		}
	}
	return nil
}

func (s *ComposeSignal) GenerateCandidates(ctx context.Context) ([]catalog.ServiceDescriptor, error) {
	var candidates []catalog.ServiceDescriptor
	for _, configPath := range s.configPaths {
		dir := s.configDirs[configPath]

		content, err := s.filesystem.ReadFile(configPath)
		if err != nil {
			continue
		}

		configDetails := composeTypes.ConfigDetails{
			WorkingDir: dir,
			ConfigFiles: []composeTypes.ConfigFile{
				{Filename: configPath, Content: content},
			},
		}
		project, err := loader.LoadWithContext(ctx, configDetails, func(options *loader.Options) {
			options.SetProjectName(s.filesystem.Base(dir), true)
			options.SkipConsistencyCheck = true
		})
		if err != nil {
			// Broken compose files are a deployment concern, not ours
			continue
		}

		for name, service := range project.Services {
			if service.Build == nil {
				continue
			}
			candidates = append(candidates, catalog.ServiceDescriptor{
				Name:        name,
				ContextPath: s.resolveContext(service.Build.Context, dir),
			})
		}
	}
	return candidates, nil
}

func (s *ComposeSignal) resolveContext(buildContext, dir string) string {
	switch {
	case buildContext == "" || buildContext == ".":
		return dir
	case strings.HasPrefix(buildContext, "/"):
		return buildContext
	case strings.HasPrefix(buildContext, "./"):
		return s.filesystem.Join(dir, buildContext[2:])
	default:
		return s.filesystem.Join(dir, buildContext)
	}
}
