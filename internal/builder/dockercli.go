package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// DockerCLI builds and pushes by shelling out to docker, and configures
// registry credentials with gcloud, the same way the original publish script
// did. Tool output passes through verbatim so operators see the external
// tool's own diagnostics.
type DockerCLI struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewDockerCLI() *DockerCLI {
	return &DockerCLI{Stdout: os.Stdout, Stderr: os.Stderr}
}

// WithOutput returns a builder whose tool output goes to the given writers,
// used for per-service attribution in parallel runs.
func (b *DockerCLI) WithOutput(stdout, stderr io.Writer) ImageBuilder {
	return &DockerCLI{Stdout: stdout, Stderr: stderr}
}

func (b *DockerCLI) Login(ctx context.Context, registryHost string) error {
	cmd := exec.CommandContext(ctx, "gcloud", "auth", "configure-docker", registryHost, "--quiet")
	cmd.Stdout = b.Stdout
	cmd.Stderr = b.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("configuring docker auth for %s failed: %w", registryHost, err)
	}
	return nil
}

func (b *DockerCLI) Build(ctx context.Context, contextDir string, opts BuildOptions) error {
	args := []string{"build", "-t", opts.Tag}
	if opts.Dockerfile != "" {
		args = append(args, "-f", filepath.Join(contextDir, opts.Dockerfile))
	}
	for _, arg := range sortedArgs(opts.BuildArgs) {
		args = append(args, "--build-arg", arg)
	}
	args = append(args, contextDir)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = b.Stdout
	cmd.Stderr = b.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker build of %s failed: %w", opts.Tag, err)
	}
	return nil
}

func (b *DockerCLI) Push(ctx context.Context, tag string) error {
	cmd := exec.CommandContext(ctx, "docker", "push", tag)
	cmd.Stdout = b.Stdout
	cmd.Stderr = b.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker push of %s failed: %w", tag, err)
	}
	return nil
}

// sortedArgs renders build args as k=v in deterministic order, so repeated
// runs invoke identical commands.
func sortedArgs(buildArgs map[string]string) []string {
	keys := make([]string, 0, len(buildArgs))
	for k := range buildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, k+"="+buildArgs[k])
	}
	return args
}
