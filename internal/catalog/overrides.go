package catalog

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/shipouthq/shipout/internal/filesystems"
)

// OverridesFileName is looked for inside each service's build context.
const OverridesFileName = "shipout.toml"

// Overrides carries per-service build settings from a shipout.toml placed in
// the service's context directory.
type Overrides struct {
	Dockerfile string            `toml:"dockerfile"`
	BuildArgs  map[string]string `toml:"build_args"`
}

// LoadOverrides reads the overrides file from contextDir. A missing file is
// not an error; a present but unparsable one is.
func LoadOverrides(filesystem filesystems.FileSystem, contextDir string) (*Overrides, error) {
	path := filesystem.Join(contextDir, OverridesFileName)
	content, err := filesystem.ReadFile(path)
	if err != nil {
		return nil, nil
	}

	var overrides Overrides
	if err := toml.Unmarshal(content, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &overrides, nil
}
