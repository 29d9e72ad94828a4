package catalog

import (
	"fmt"

	"github.com/shipouthq/shipout/internal/filesystems"
	"gopkg.in/yaml.v3"
)

// Where a descriptor came from, for reporting.
const (
	SourceBuiltin   = "builtin"
	SourceFile      = "file"
	SourceDiscovery = "discovery"
)

// ServiceDescriptor is one catalog entry: a service name plus the build
// context it is built from. Image, when set, overrides the derived registry
// reference for this service.
type ServiceDescriptor struct {
	Name        string
	ContextPath string
	Image       string
	Source      string
}

// defaultServices is the service set of the upstream demo application. It is
// used only when no catalog file is given and discovery is not requested,
// preserving the original hard-coded loop as a fallback.
var defaultServices = []string{
	"frontend",
	"cartservice",
	"productcatalogservice",
	"currencyservice",
	"paymentservice",
	"shippingservice",
	"emailservice",
	"checkoutservice",
	"recommendationservice",
	"adservice",
	"loadgenerator",
	"frauddetectionservice",
	"chatbotservice",
}

// Default returns the built-in catalog with contexts under <root>/src/<name>.
func Default(filesystem filesystems.FileSystem, root string) []ServiceDescriptor {
	descriptors := make([]ServiceDescriptor, 0, len(defaultServices))
	for _, name := range defaultServices {
		descriptors = append(descriptors, ServiceDescriptor{
			Name:        name,
			ContextPath: filesystem.Join(root, "src", name),
			Source:      SourceBuiltin,
		})
	}
	return descriptors
}

// catalogFile is the YAML shape of an explicit catalog.
type catalogFile struct {
	Services []struct {
		Name    string `yaml:"name"`
		Context string `yaml:"context"`
		Image   string `yaml:"image"`
	} `yaml:"services"`
}

// LoadFile reads a YAML catalog. Context paths are relative to root unless
// absolute; a missing context defaults to <root>/src/<name>.
func LoadFile(filesystem filesystems.FileSystem, path, root string) ([]ServiceDescriptor, error) {
	content, err := filesystem.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	descriptors := make([]ServiceDescriptor, 0, len(file.Services))
	for _, entry := range file.Services {
		if entry.Name == "" {
			return nil, fmt.Errorf("catalog file %s: service entry with empty name", path)
		}

		contextPath := entry.Context
		switch {
		case contextPath == "":
			contextPath = filesystem.Join(root, "src", entry.Name)
		case contextPath[0] != '/':
			contextPath = filesystem.Join(root, contextPath)
		}

		descriptors = append(descriptors, ServiceDescriptor{
			Name:        entry.Name,
			ContextPath: contextPath,
			Image:       entry.Image,
			Source:      SourceFile,
		})
	}

	if err := Validate(descriptors); err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return descriptors, nil
}

// Validate rejects duplicate service names. The original script relied on the
// list being duplicate-free by construction; here it is checked.
func Validate(descriptors []ServiceDescriptor) error {
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if seen[d.Name] {
			return fmt.Errorf("duplicate service name %q", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}
