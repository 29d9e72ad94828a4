package publish

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shipouthq/shipout/internal/builder"
	"github.com/shipouthq/shipout/internal/catalog"
	"github.com/shipouthq/shipout/internal/filesystems"
	"github.com/shipouthq/shipout/internal/registry"
)

type fakeBuilder struct {
	mu        sync.Mutex
	logins    []string
	builds    []builder.BuildOptions
	pushes    []string
	failBuild map[string]bool // by service name in the tag
	failPush  map[string]bool
}

func (f *fakeBuilder) Login(ctx context.Context, registryHost string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, registryHost)
	return nil
}

func (f *fakeBuilder) Build(ctx context.Context, contextDir string, opts builder.BuildOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for service := range f.failBuild {
		if strings.Contains(opts.Tag, "/"+service+":") {
			return errors.New("build exploded")
		}
	}
	f.builds = append(f.builds, opts)
	return nil
}

func (f *fakeBuilder) Push(ctx context.Context, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for service := range f.failPush {
		if strings.Contains(tag, "/"+service+":") {
			return errors.New("denied: not authorized")
		}
	}
	f.pushes = append(f.pushes, tag)
	return nil
}

func testTarget() registry.Target {
	return registry.Target{ProjectID: "acme", Region: "us-east1"}
}

func addService(mfs *filesystems.MemoryFS, name string) catalog.ServiceDescriptor {
	contextPath := "src/" + name
	mfs.AddFile(contextPath+"/Dockerfile", []byte("FROM alpine:3.20\n"))
	return catalog.ServiceDescriptor{Name: name, ContextPath: contextPath}
}

func newTestPublisher(mfs *filesystems.MemoryFS, fake *fakeBuilder, opts Options) (*Publisher, *bytes.Buffer) {
	p := New(mfs, fake, opts)
	stderr := &bytes.Buffer{}
	p.SetStderr(stderr)
	p.SetStdout(&bytes.Buffer{})
	return p, stderr
}

func TestRun_PublishesInCatalogOrder(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	descriptors := []catalog.ServiceDescriptor{
		addService(mfs, "frontend"),
		addService(mfs, "cartservice"),
	}

	fake := &fakeBuilder{}
	p, _ := newTestPublisher(mfs, fake, Options{Target: testTarget()})

	report, err := p.Run(context.Background(), descriptors)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(fake.logins) != 1 || fake.logins[0] != "us-east1-docker.pkg.dev" {
		t.Fatalf("expected one login to the derived host, got %v", fake.logins)
	}

	wantPushes := []string{
		"us-east1-docker.pkg.dev/acme/microservices-demo/frontend:latest",
		"us-east1-docker.pkg.dev/acme/microservices-demo/cartservice:latest",
	}
	if len(fake.pushes) != len(wantPushes) {
		t.Fatalf("expected %d pushes, got %v", len(wantPushes), fake.pushes)
	}
	for i, want := range wantPushes {
		if fake.pushes[i] != want {
			t.Errorf("push %d: expected %q, got %q", i, want, fake.pushes[i])
		}
	}

	if report.Published() != 2 || report.Skipped() != 0 {
		t.Errorf("unexpected report counts: %+v", report)
	}
}

func TestRun_SkipsMissingContextAndContinues(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	first := addService(mfs, "frontend")
	missing := catalog.ServiceDescriptor{Name: "ghostservice", ContextPath: "src/ghostservice"}
	last := addService(mfs, "emailservice")

	fake := &fakeBuilder{}
	p, stderr := newTestPublisher(mfs, fake, Options{Target: testTarget()})

	report, err := p.Run(context.Background(), []catalog.ServiceDescriptor{first, missing, last})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(fake.builds) != 2 || len(fake.pushes) != 2 {
		t.Fatalf("expected the skipped service to never reach the builder, got builds=%d pushes=%d",
			len(fake.builds), len(fake.pushes))
	}
	for _, tag := range fake.pushes {
		if strings.Contains(tag, "ghostservice") {
			t.Fatalf("skipped service was pushed: %s", tag)
		}
	}

	if report.Skipped() != 1 || report.Published() != 2 {
		t.Errorf("unexpected report counts: %+v", report)
	}
	if report.Results[1].Status != StatusSkipped {
		t.Errorf("expected second result skipped, got %+v", report.Results[1])
	}
	if !strings.Contains(stderr.String(), "warning: skipping ghostservice") {
		t.Errorf("expected a skip warning, got %q", stderr.String())
	}
}

func TestRun_BuildFailureAbortsRun(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	descriptors := []catalog.ServiceDescriptor{
		addService(mfs, "frontend"),
		addService(mfs, "cartservice"),
		addService(mfs, "emailservice"),
	}

	fake := &fakeBuilder{failBuild: map[string]bool{"cartservice": true}}
	p, _ := newTestPublisher(mfs, fake, Options{Target: testTarget()})

	report, err := p.Run(context.Background(), descriptors)
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if !strings.Contains(err.Error(), "cartservice") {
		t.Errorf("expected failing service in error, got %v", err)
	}

	// Fail fast: emailservice must never be processed
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 results (frontend, cartservice), got %d", len(report.Results))
	}
	if report.Results[1].Status != StatusFailed {
		t.Errorf("expected cartservice failed, got %+v", report.Results[1])
	}
	if len(fake.pushes) != 1 {
		t.Errorf("expected only frontend pushed, got %v", fake.pushes)
	}
}

func TestRun_PushFailureAbortsRun(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	descriptors := []catalog.ServiceDescriptor{
		addService(mfs, "frontend"),
		addService(mfs, "cartservice"),
	}

	fake := &fakeBuilder{failPush: map[string]bool{"frontend": true}}
	p, _ := newTestPublisher(mfs, fake, Options{Target: testTarget()})

	_, err := p.Run(context.Background(), descriptors)
	if err == nil {
		t.Fatal("expected the run to fail")
	}

	if len(fake.builds) != 1 {
		t.Errorf("expected no further builds after the push failure, got %d", len(fake.builds))
	}
}

func TestRun_EmptyCatalog(t *testing.T) {
	fake := &fakeBuilder{}
	p, _ := newTestPublisher(filesystems.NewMemoryFS(), fake, Options{Target: testTarget()})

	report, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("expected empty report, got %+v", report.Results)
	}
	if len(fake.logins)+len(fake.builds)+len(fake.pushes) != 0 {
		t.Error("expected no builder invocations for an empty catalog")
	}
}

func TestRun_RejectsPlaceholderTarget(t *testing.T) {
	fake := &fakeBuilder{}
	p, _ := newTestPublisher(filesystems.NewMemoryFS(), fake, Options{
		Target: registry.Target{ProjectID: "your-project-id", Region: "us-central1"},
	})

	if _, err := p.Run(context.Background(), nil); err == nil {
		t.Fatal("expected placeholder project to be rejected")
	}
}

func TestRun_RejectsDuplicateNames(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	descriptor := addService(mfs, "frontend")

	fake := &fakeBuilder{}
	p, _ := newTestPublisher(mfs, fake, Options{Target: testTarget()})

	_, err := p.Run(context.Background(), []catalog.ServiceDescriptor{descriptor, descriptor})
	if err == nil {
		t.Fatal("expected duplicate names to be rejected")
	}
	if len(fake.logins) != 0 {
		t.Error("expected validation to run before login")
	}
}

func TestRun_DryRun(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	descriptors := []catalog.ServiceDescriptor{addService(mfs, "frontend")}

	fake := &fakeBuilder{}
	p, _ := newTestPublisher(mfs, fake, Options{Target: testTarget(), DryRun: true})

	report, err := p.Run(context.Background(), descriptors)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(fake.logins)+len(fake.builds)+len(fake.pushes) != 0 {
		t.Error("expected no builder invocations in dry-run")
	}
	if report.Results[0].Status != StatusPlanned {
		t.Errorf("expected planned status, got %+v", report.Results[0])
	}
	want := "us-east1-docker.pkg.dev/acme/microservices-demo/frontend:latest"
	if report.Results[0].Reference != want {
		t.Errorf("expected derived reference %q, got %q", want, report.Results[0].Reference)
	}
}

func TestRun_ImageOverrideBypassesDerivation(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	descriptor := addService(mfs, "frontend")
	descriptor.Image = "ghcr.io/acme/frontend:pinned"

	fake := &fakeBuilder{}
	p, _ := newTestPublisher(mfs, fake, Options{Target: testTarget()})

	_, err := p.Run(context.Background(), []catalog.ServiceDescriptor{descriptor})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(fake.pushes) != 1 || fake.pushes[0] != "ghcr.io/acme/frontend:pinned" {
		t.Fatalf("expected the override to be pushed, got %v", fake.pushes)
	}
}

func TestRun_OverridesFromContext(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	descriptor := addService(mfs, "frontend")
	mfs.AddFile("src/frontend/Dockerfile.release", []byte("FROM alpine:3.20\nARG VERSION\nARG CHANNEL\n"))
	mfs.AddFile("src/frontend/shipout.toml", []byte(
		"dockerfile = \"Dockerfile.release\"\n[build_args]\nCHANNEL = \"stable\"\n"))

	fake := &fakeBuilder{}
	p, _ := newTestPublisher(mfs, fake, Options{
		Target:    testTarget(),
		BuildArgs: map[string]string{"VERSION": "1.2.3", "CHANNEL": "edge"},
	})

	_, err := p.Run(context.Background(), []catalog.ServiceDescriptor{descriptor})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(fake.builds) != 1 {
		t.Fatalf("expected one build, got %d", len(fake.builds))
	}
	opts := fake.builds[0]
	if opts.Dockerfile != "Dockerfile.release" {
		t.Errorf("expected dockerfile override, got %q", opts.Dockerfile)
	}
	if opts.BuildArgs["VERSION"] != "1.2.3" {
		t.Errorf("expected global build arg to survive, got %v", opts.BuildArgs)
	}
	if opts.BuildArgs["CHANNEL"] != "stable" {
		t.Errorf("expected per-service arg to win, got %v", opts.BuildArgs)
	}
}

func TestRun_MissingDockerfileIsFatal(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("src/frontend/main.go", []byte("package main\n"))
	descriptor := catalog.ServiceDescriptor{Name: "frontend", ContextPath: "src/frontend"}

	fake := &fakeBuilder{}
	p, _ := newTestPublisher(mfs, fake, Options{Target: testTarget()})

	_, err := p.Run(context.Background(), []catalog.ServiceDescriptor{descriptor})
	if err == nil {
		t.Fatal("expected a context without a Dockerfile to fail the run")
	}
	if len(fake.builds) != 0 {
		t.Error("expected the builder to never be invoked")
	}
}

func TestRun_UnknownBuildArgWarns(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	descriptor := addService(mfs, "frontend")

	fake := &fakeBuilder{}
	p, stderr := newTestPublisher(mfs, fake, Options{
		Target:    testTarget(),
		BuildArgs: map[string]string{"TYPO_ARG": "x"},
	})

	if _, err := p.Run(context.Background(), []catalog.ServiceDescriptor{descriptor}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(stderr.String(), "TYPO_ARG") {
		t.Errorf("expected a warning about the undeclared arg, got %q", stderr.String())
	}
}

func TestRun_ParallelPublishesAll(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	var descriptors []catalog.ServiceDescriptor
	for _, name := range []string{"frontend", "cartservice", "emailservice", "adservice"} {
		descriptors = append(descriptors, addService(mfs, name))
	}

	fake := &fakeBuilder{}
	p, _ := newTestPublisher(mfs, fake, Options{Target: testTarget(), Parallelism: 3})

	report, err := p.Run(context.Background(), descriptors)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.Published() != 4 {
		t.Fatalf("expected 4 published, got %+v", report)
	}
	// Report order follows the catalog even though execution interleaves
	for i, descriptor := range descriptors {
		if report.Results[i].Service != descriptor.Name {
			t.Errorf("result %d: expected %s, got %s", i, descriptor.Name, report.Results[i].Service)
		}
	}
}

func TestRun_ParallelFailureIsIsolated(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	var descriptors []catalog.ServiceDescriptor
	for _, name := range []string{"frontend", "cartservice", "emailservice"} {
		descriptors = append(descriptors, addService(mfs, name))
	}

	fake := &fakeBuilder{failBuild: map[string]bool{"cartservice": true}}
	p, _ := newTestPublisher(mfs, fake, Options{Target: testTarget(), Parallelism: 2})

	report, err := p.Run(context.Background(), descriptors)
	if err == nil {
		t.Fatal("expected the run to fail")
	}

	// The failed service's artifact is never pushed, whatever else completed
	for _, tag := range fake.pushes {
		if strings.Contains(tag, "cartservice") {
			t.Fatalf("failed service was pushed: %s", tag)
		}
	}
	for _, result := range report.Results {
		if result.Service == "cartservice" && result.Status != StatusFailed {
			t.Errorf("expected cartservice failed, got %+v", result)
		}
	}
}
