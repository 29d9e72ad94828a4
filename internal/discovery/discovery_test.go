package discovery

import (
	"context"
	"testing"

	"github.com/shipouthq/shipout/internal/catalog"
	"github.com/shipouthq/shipout/internal/filesystems"
)

func discover(t *testing.T, mfs *filesystems.MemoryFS) []catalog.ServiceDescriptor {
	t.Helper()
	descriptors, err := NewWithDefaults(mfs).Discover(context.Background(), ".")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return descriptors
}

func byName(descriptors []catalog.ServiceDescriptor) map[string]catalog.ServiceDescriptor {
	m := make(map[string]catalog.ServiceDescriptor)
	for _, d := range descriptors {
		m[d.Name] = d
	}
	return m
}

func TestDiscover_DockerfileContexts(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("services/frontend/Dockerfile", []byte("FROM alpine\n"))
	mfs.AddFile("services/cartservice/Dockerfile", []byte("FROM alpine\n"))
	mfs.AddFile("services/cartservice/main.go", []byte("package main\n"))
	mfs.AddFile("README.md", []byte("# demo\n"))

	descriptors := discover(t, mfs)
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 services, got %+v", descriptors)
	}

	found := byName(descriptors)
	if d, ok := found["frontend"]; !ok || d.ContextPath != "services/frontend" {
		t.Errorf("expected frontend at services/frontend, got %+v", found)
	}
	if d, ok := found["cartservice"]; !ok || d.ContextPath != "services/cartservice" {
		t.Errorf("expected cartservice at services/cartservice, got %+v", found)
	}
	for _, d := range descriptors {
		if d.Source != catalog.SourceDiscovery {
			t.Errorf("expected discovery source, got %q", d.Source)
		}
	}
}

func TestDiscover_IgnoresVendoredTrees(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("frontend/Dockerfile", []byte("FROM alpine\n"))
	mfs.AddFile("node_modules/pkg/Dockerfile", []byte("FROM alpine\n"))
	mfs.AddFile(".git/hooks/Dockerfile", []byte("FROM alpine\n"))

	descriptors := discover(t, mfs)
	if len(descriptors) != 1 || descriptors[0].Name != "frontend" {
		t.Fatalf("expected only frontend, got %+v", descriptors)
	}
}

func TestDiscover_SkaffoldNamesWinOverDockerfile(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("skaffold.yaml", []byte(`
apiVersion: skaffold/v2beta29
kind: Config
build:
  artifacts:
    - image: gcr.io/proj/web
      context: ./services/frontend
`))
	mfs.AddFile("services/frontend/Dockerfile", []byte("FROM alpine\n"))

	descriptors := discover(t, mfs)
	if len(descriptors) != 1 {
		t.Fatalf("expected one merged service, got %+v", descriptors)
	}
	if descriptors[0].Name != "web" {
		t.Errorf("expected skaffold image name to win, got %q", descriptors[0].Name)
	}
	if descriptors[0].ContextPath != "services/frontend" {
		t.Errorf("unexpected context %q", descriptors[0].ContextPath)
	}
}

func TestDiscover_ComposeBuildServices(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("docker-compose.yml", []byte(`
services:
  api:
    build:
      context: ./api
  cache:
    image: redis:7
`))
	mfs.AddFile("api/Dockerfile", []byte("FROM alpine\n"))

	descriptors := discover(t, mfs)
	if len(descriptors) != 1 {
		t.Fatalf("expected only the buildable compose service, got %+v", descriptors)
	}
	if descriptors[0].Name != "api" || descriptors[0].ContextPath != "api" {
		t.Errorf("unexpected descriptor %+v", descriptors[0])
	}
}

func TestDiscover_DisambiguatesDuplicateNames(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("billing/worker/Dockerfile", []byte("FROM alpine\n"))
	mfs.AddFile("search/worker/Dockerfile", []byte("FROM alpine\n"))

	descriptors := discover(t, mfs)
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 services, got %+v", descriptors)
	}
	if err := catalog.Validate(descriptors); err != nil {
		t.Fatalf("discovered catalog must be duplicate-free: %v", err)
	}
}

func TestDiscover_EmptyTree(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddDir("docs")

	descriptors := discover(t, mfs)
	if len(descriptors) != 0 {
		t.Fatalf("expected no services, got %+v", descriptors)
	}
}
