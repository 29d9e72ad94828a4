package registry

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

const (
	// DefaultNamespace is the repository path segment between the project
	// and the service name.
	DefaultNamespace = "microservices-demo"

	// DefaultTag is applied when no tag is configured.
	DefaultTag = "latest"

	hostSuffix = "-docker.pkg.dev"

	// placeholderProject is the sample value from the deployment guide.
	// Pushing to it would create artifacts in a registry that cannot exist,
	// so it is rejected instead of silently used.
	placeholderProject = "your-project-id"
)

// Target identifies the registry location a run publishes to. Project and
// region are required; namespace and tag fall back to defaults.
type Target struct {
	ProjectID string
	Region    string
	Namespace string
	Tag       string
}

// Validate checks that the target can actually receive pushes.
func (t Target) Validate() error {
	if t.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if t.ProjectID == placeholderProject {
		return fmt.Errorf("project id %q is the sample placeholder, set a real project", t.ProjectID)
	}
	if t.Region == "" {
		return fmt.Errorf("region is required")
	}
	if strings.ContainsAny(t.Region, "/: ") {
		return fmt.Errorf("invalid region %q", t.Region)
	}
	return nil
}

// Host returns the registry host derived from the region.
func (t Target) Host() string {
	return t.Region + hostSuffix
}

func (t Target) namespace() string {
	if t.Namespace == "" {
		return DefaultNamespace
	}
	return t.Namespace
}

func (t Target) tag() string {
	if t.Tag == "" {
		return DefaultTag
	}
	return t.Tag
}

// Reference derives the fully qualified image reference for a service name
// and validates it. Identical inputs always derive the identical reference;
// there is no implicit versioning.
func (t Target) Reference(service string) (string, error) {
	if service == "" {
		return "", fmt.Errorf("service name is required")
	}

	ref := fmt.Sprintf("%s/%s/%s/%s:%s", t.Host(), t.ProjectID, t.namespace(), service, t.tag())
	if _, err := name.NewTag(ref, name.StrictValidation); err != nil {
		return "", fmt.Errorf("derived reference %q is not valid: %w", ref, err)
	}
	return ref, nil
}

// ParseOverride validates a descriptor's explicit image override. Overrides
// bypass derivation but not validation; a bare reference is normalized to
// its tagged form.
func ParseOverride(ref string) (string, error) {
	tag, err := name.NewTag(ref, name.WithDefaultTag(DefaultTag))
	if err != nil {
		return "", fmt.Errorf("invalid image override %q: %w", ref, err)
	}
	return tag.Name(), nil
}
