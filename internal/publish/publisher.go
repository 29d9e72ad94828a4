package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shipouthq/shipout/internal/builder"
	"github.com/shipouthq/shipout/internal/catalog"
	"github.com/shipouthq/shipout/internal/dockerfile"
	"github.com/shipouthq/shipout/internal/filesystems"
	"github.com/shipouthq/shipout/internal/registry"
	"github.com/shipouthq/shipout/internal/staging"
	"golang.org/x/sync/errgroup"
)

// Options configure a publish run.
type Options struct {
	Target registry.Target

	// SharedDir is the interface-definition directory staged into every
	// context before building. Empty disables staging.
	SharedDir string

	// BuildArgs apply to every service; per-service overrides win.
	BuildArgs map[string]string

	// Parallelism bounds concurrent services. Values below 2 mean
	// sequential, in catalog order.
	Parallelism int

	// DryRun derives and reports references without invoking the builder.
	DryRun bool
}

// Publisher runs the build-and-push pipeline over a catalog: stage shared
// files, build, push, skip services whose context is missing, abort the run
// on the first build or push failure.
type Publisher struct {
	filesystem filesystems.FileSystem
	builder    builder.ImageBuilder
	opts       Options
	stdout     io.Writer
	stderr     io.Writer
}

func New(filesystem filesystems.FileSystem, imageBuilder builder.ImageBuilder, opts Options) *Publisher {
	return &Publisher{
		filesystem: filesystem,
		builder:    imageBuilder,
		opts:       opts,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
}

// SetStderr redirects the publisher's warnings, for tests.
func (p *Publisher) SetStderr(w io.Writer) {
	p.stderr = w
}

// SetStdout redirects the publisher's progress output, for tests.
func (p *Publisher) SetStdout(w io.Writer) {
	p.stdout = w
}

// Run publishes the catalog. The returned report always covers the services
// processed so far, even when the run aborts; the error is the fatal failure
// that stopped it, if any.
func (p *Publisher) Run(ctx context.Context, descriptors []catalog.ServiceDescriptor) (*Report, error) {
	if err := p.opts.Target.Validate(); err != nil {
		return nil, err
	}
	if err := catalog.Validate(descriptors); err != nil {
		return nil, err
	}

	report := &Report{Registry: p.opts.Target.Host()}
	if len(descriptors) == 0 {
		return report, nil
	}

	if !p.opts.DryRun {
		if err := p.builder.Login(ctx, p.opts.Target.Host()); err != nil {
			return report, err
		}
	}

	if p.opts.Parallelism > 1 {
		return p.runParallel(ctx, descriptors, report)
	}
	return p.runSequential(ctx, descriptors, report)
}

func (p *Publisher) runSequential(ctx context.Context, descriptors []catalog.ServiceDescriptor, report *Report) (*Report, error) {
	for _, descriptor := range descriptors {
		result, err := p.publishOne(ctx, descriptor, p.builder)
		report.Results = append(report.Results, result)
		if err != nil {
			// Fail fast: nothing after this entry runs
			return report, err
		}
	}
	return report, nil
}

func (p *Publisher) runParallel(ctx context.Context, descriptors []catalog.ServiceDescriptor, report *Report) (*Report, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Parallelism)

	results := make([]Result, len(descriptors))
	for i, descriptor := range descriptors {
		g.Go(func() error {
			serviceBuilder := p.scopedBuilder(descriptor.Name)
			result, err := p.publishOne(ctx, descriptor, serviceBuilder)
			results[i] = result
			return err
		})
	}

	// First failure cancels the group context; services already running see
	// the cancellation through their external command's context.
	err := g.Wait()
	for _, result := range results {
		if result.Status != "" {
			report.Results = append(report.Results, result)
		}
	}
	return report, err
}

// outputScoped is implemented by builders whose tool output can be
// redirected, so parallel runs get per-service log attribution.
type outputScoped interface {
	WithOutput(stdout, stderr io.Writer) builder.ImageBuilder
}

func (p *Publisher) scopedBuilder(service string) builder.ImageBuilder {
	scoped, ok := p.builder.(outputScoped)
	if !ok {
		return p.builder
	}
	prefixed := newPrefixWriter(p.stderr, "["+service+"] ")
	return scoped.WithOutput(prefixed, prefixed)
}

// publishOne runs the full per-service pipeline. A nil error with a skipped
// result is the recoverable path; a non-nil error aborts the whole run.
func (p *Publisher) publishOne(ctx context.Context, descriptor catalog.ServiceDescriptor, imageBuilder builder.ImageBuilder) (Result, error) {
	start := time.Now()
	result := Result{Service: descriptor.Name}

	fail := func(err error) (Result, error) {
		result.Status = StatusFailed
		result.Reason = err.Error()
		result.Duration = time.Since(start)
		return result, fmt.Errorf("service %s: %w", descriptor.Name, err)
	}

	if !filesystems.DirExists(p.filesystem, descriptor.ContextPath) {
		fmt.Fprintf(p.stderr, "warning: skipping %s, build context %s does not exist\n",
			descriptor.Name, descriptor.ContextPath)
		result.Status = StatusSkipped
		result.Reason = "missing build context"
		result.Duration = time.Since(start)
		return result, nil
	}

	reference, err := p.deriveReference(descriptor)
	if err != nil {
		return fail(err)
	}
	result.Reference = reference

	overrides, err := catalog.LoadOverrides(p.filesystem, descriptor.ContextPath)
	if err != nil {
		return fail(err)
	}

	buildOpts := builder.BuildOptions{
		Tag:       reference,
		BuildArgs: mergeArgs(p.opts.BuildArgs, overrides),
	}
	if overrides != nil && overrides.Dockerfile != "" {
		buildOpts.Dockerfile = overrides.Dockerfile
	}

	if err := p.preflight(descriptor, buildOpts); err != nil {
		return fail(err)
	}

	if p.opts.DryRun {
		result.Status = StatusPlanned
		result.Duration = time.Since(start)
		return result, nil
	}

	if p.opts.SharedDir != "" {
		if err := staging.Stage(p.opts.SharedDir, descriptor.ContextPath); err != nil {
			return fail(err)
		}
	}

	if err := imageBuilder.Build(ctx, descriptor.ContextPath, buildOpts); err != nil {
		return fail(err)
	}
	if err := imageBuilder.Push(ctx, reference); err != nil {
		return fail(err)
	}

	result.Status = StatusPublished
	result.Duration = time.Since(start)
	fmt.Fprintf(p.stdout, "published %s\n", reference)
	return result, nil
}

func (p *Publisher) deriveReference(descriptor catalog.ServiceDescriptor) (string, error) {
	if descriptor.Image != "" {
		return registry.ParseOverride(descriptor.Image)
	}
	return p.opts.Target.Reference(descriptor.Name)
}

// preflight parses the service's Dockerfile before the builder sees it. An
// unparsable or absent Dockerfile fails the service like a build failure.
func (p *Publisher) preflight(descriptor catalog.ServiceDescriptor, buildOpts builder.BuildOptions) error {
	dockerfileName := buildOpts.Dockerfile
	if dockerfileName == "" {
		dockerfileName = "Dockerfile"
	}

	path := p.filesystem.Join(descriptor.ContextPath, dockerfileName)
	content, err := p.filesystem.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	checked, err := dockerfile.Check(content)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	for _, name := range checked.UnknownArgs(buildOpts.BuildArgs) {
		fmt.Fprintf(p.stderr, "warning: %s: build arg %s is not declared in %s\n",
			descriptor.Name, name, dockerfileName)
	}
	return nil
}

func mergeArgs(global map[string]string, overrides *catalog.Overrides) map[string]string {
	if len(global) == 0 && (overrides == nil || len(overrides.BuildArgs) == 0) {
		return nil
	}
	merged := make(map[string]string, len(global))
	for k, v := range global {
		merged[k] = v
	}
	if overrides != nil {
		for k, v := range overrides.BuildArgs {
			merged[k] = v
		}
	}
	return merged
}
