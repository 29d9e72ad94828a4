package builder

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
)

// DockerAPI talks to the Docker Engine directly instead of shelling out.
// Registry credentials come from SHIPOUT_REGISTRY_USERNAME and
// SHIPOUT_REGISTRY_PASSWORD; with Artifact Registry that is typically
// oauth2accesstoken plus a gcloud access token.
type DockerAPI struct {
	cli    *client.Client
	output io.Writer
	auth   string // base64 auth config, set by Login
}

func NewDockerAPI() (*DockerAPI, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerAPI{cli: cli, output: os.Stderr}, nil
}

// WithOutput returns a builder streaming engine messages to stderr, used for
// per-service attribution in parallel runs. The engine connection and the
// Login credentials are shared.
func (b *DockerAPI) WithOutput(stdout, stderr io.Writer) ImageBuilder {
	return &DockerAPI{cli: b.cli, output: stderr, auth: b.auth}
}

func (b *DockerAPI) Login(ctx context.Context, registryHost string) error {
	authConfig := registry.AuthConfig{
		Username:      os.Getenv("SHIPOUT_REGISTRY_USERNAME"),
		Password:      os.Getenv("SHIPOUT_REGISTRY_PASSWORD"),
		ServerAddress: registryHost,
	}

	encoded, err := registry.EncodeAuthConfig(authConfig)
	if err != nil {
		return fmt.Errorf("failed to encode registry auth for %s: %w", registryHost, err)
	}
	b.auth = encoded
	return nil
}

func (b *DockerAPI) Build(ctx context.Context, contextDir string, opts BuildOptions) error {
	tar, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create build context from %s: %w", contextDir, err)
	}
	defer tar.Close()

	buildArgs := make(map[string]*string, len(opts.BuildArgs))
	for k, v := range opts.BuildArgs {
		value := v
		buildArgs[k] = &value
	}

	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	resp, err := b.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{opts.Tag},
		Dockerfile: dockerfile,
		BuildArgs:  buildArgs,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("docker build of %s failed: %w", opts.Tag, err)
	}
	defer resp.Body.Close()

	// The build streams progress as JSON messages; an in-stream error means
	// the build failed even though the HTTP call succeeded.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, b.output, 0, false, nil); err != nil {
		return fmt.Errorf("docker build of %s failed: %w", opts.Tag, err)
	}
	return nil
}

func (b *DockerAPI) Push(ctx context.Context, tag string) error {
	resp, err := b.cli.ImagePush(ctx, tag, types.ImagePushOptions{RegistryAuth: b.auth})
	if err != nil {
		return fmt.Errorf("docker push of %s failed: %w", tag, err)
	}
	defer resp.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp, b.output, 0, false, nil); err != nil {
		return fmt.Errorf("docker push of %s failed: %w", tag, err)
	}
	return nil
}
