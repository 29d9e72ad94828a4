package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shipouthq/shipout/internal/catalog"
	"github.com/shipouthq/shipout/internal/filesystems"
)

// maxWalkDepth bounds the directory walk; service contexts deeper than this
// are not part of any layout this tool targets.
const maxWalkDepth = 4

// ServiceSignal is one source of evidence for buildable services. Signals
// observe every entry during the walk and generate candidates afterwards,
// once they have seen the whole tree.
type ServiceSignal interface {
	// ObserveEntry is called for each file/directory entry encountered during the walk
	ObserveEntry(ctx context.Context, dir string, entry filesystems.DirEntry) error

	// GenerateCandidates is called after the walk to produce service candidates
	GenerateCandidates(ctx context.Context) ([]catalog.ServiceDescriptor, error)

	// Reset clears internal state before a new walk
	Reset()

	// Confidence resolves conflicts between signals claiming the same context, 0-100
	Confidence() int
}

// Discovery finds buildable service contexts under a source root.
type Discovery struct {
	filesystem filesystems.FileSystem
	signals    []ServiceSignal
}

func New(filesystem filesystems.FileSystem, signals ...ServiceSignal) *Discovery {
	return &Discovery{filesystem: filesystem, signals: signals}
}

// Discover walks the tree once, lets every signal observe it, then merges
// candidates into a catalog. Entries for the same context path merge with
// the highest-confidence signal naming the service.
func (d *Discovery) Discover(ctx context.Context, rootPath string) ([]catalog.ServiceDescriptor, error) {
	for _, signal := range d.signals {
		signal.Reset()
	}

	if err := d.walk(ctx, rootPath); err != nil {
		return nil, fmt.Errorf("filesystem walk failed: %w", err)
	}

	type scored struct {
		candidate  catalog.ServiceDescriptor
		confidence int
	}
	byContext := make(map[string]scored)
	order := make([]string, 0)

	for _, signal := range d.signals {
		candidates, err := signal.GenerateCandidates(ctx)
		if err != nil {
			return nil, err
		}
		for _, candidate := range candidates {
			if candidate.ContextPath == "" {
				continue
			}
			existing, seen := byContext[candidate.ContextPath]
			if !seen {
				order = append(order, candidate.ContextPath)
			}
			if !seen || signal.Confidence() > existing.confidence {
				byContext[candidate.ContextPath] = scored{candidate, signal.Confidence()}
			}
		}
	}

	sort.Strings(order)

	descriptors := make([]catalog.ServiceDescriptor, 0, len(order))
	names := make(map[string]bool)
	for _, contextPath := range order {
		candidate := byContext[contextPath].candidate
		name := candidate.Name
		// Two contexts may claim the same name (e.g. identical directory
		// names at different depths); disambiguate with the parent.
		if names[name] {
			name = d.filesystem.Base(d.filesystem.Dir(contextPath)) + "-" + name
		}
		names[name] = true

		descriptors = append(descriptors, catalog.ServiceDescriptor{
			Name:        name,
			ContextPath: contextPath,
			Image:       candidate.Image,
			Source:      catalog.SourceDiscovery,
		})
	}

	return descriptors, nil
}

var excludeDirs = []string{
	"node_modules", "vendor", "bower_components",
	"venv", "env", "target", "deps", "_build",
	"dist", "out", ".next", ".nuxt",
	"bin", "obj", "tmp", "temp", "cache", "logs",
}

func shouldIgnoreDirectory(dirName string) bool {
	for _, pattern := range excludeDirs {
		if strings.EqualFold(dirName, pattern) {
			return true
		}
	}
	return strings.HasPrefix(dirName, ".") && len(dirName) > 1
}

type walkItem struct {
	path  string
	depth int
}

// walk performs iterative traversal using a stack
func (d *Discovery) walk(ctx context.Context, rootPath string) error {
	stack := []walkItem{{path: rootPath, depth: 0}}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current.depth > maxWalkDepth {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if current.depth > 0 && shouldIgnoreDirectory(d.filesystem.Base(current.path)) {
			continue
		}

		for entry, err := range d.filesystem.ReadDir(current.path) {
			if err != nil {
				// Unreadable directories don't sink the walk
				continue
			}

			for _, signal := range d.signals {
				if err := signal.ObserveEntry(ctx, current.path, entry); err != nil {
					return err
				}
			}

			if entry.IsDir() {
				stack = append(stack, walkItem{
					path:  d.filesystem.Join(current.path, entry.Name()),
					depth: current.depth + 1,
				})
			}
		}
	}

	return nil
}
