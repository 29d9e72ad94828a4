package shipout

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shipouthq/shipout/internal/builder"
	"github.com/shipouthq/shipout/internal/catalog"
	"github.com/shipouthq/shipout/internal/discovery"
	"github.com/shipouthq/shipout/internal/filesystems"
	"github.com/shipouthq/shipout/internal/publish"
	"github.com/shipouthq/shipout/internal/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var publishCmd = &cobra.Command{
	Use:   "publish [source-root]",
	Short: "Build and push all cataloged service images",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sourceRoot := "."
		if len(args) > 0 {
			sourceRoot = args[0]
		}

		if err := runPublish(cmd.Context(), sourceRoot); err != nil {
			fmt.Fprintf(os.Stderr, "Publish failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func runPublish(ctx context.Context, sourceRoot string) error {
	// An interrupt cancels in-flight external commands; the interrupted
	// service's artifact state is undefined, as with the original script.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	filesystem := filesystems.NewLocalFS()

	descriptors, err := resolveCatalog(ctx, filesystem, sourceRoot)
	if err != nil {
		return err
	}
	fmt.Printf("Publishing %d services from %s\n", len(descriptors), sourceRoot)

	buildArgs, err := loadBuildArgs(filesystem)
	if err != nil {
		return err
	}

	imageBuilder, err := newBuilder()
	if err != nil {
		return err
	}

	sharedDir := viper.GetString("protos")
	if sharedDir == "" {
		// The demo layout keeps shared proto definitions at <root>/protos
		candidate := filesystem.Join(sourceRoot, "protos")
		if filesystems.DirExists(filesystem, candidate) {
			sharedDir = candidate
		}
	}

	publisher := publish.New(filesystem, imageBuilder, publish.Options{
		Target: registry.Target{
			ProjectID: viper.GetString("project"),
			Region:    viper.GetString("region"),
			Namespace: viper.GetString("namespace"),
			Tag:       viper.GetString("tag"),
		},
		SharedDir:   sharedDir,
		BuildArgs:   buildArgs,
		Parallelism: viper.GetInt("parallel"),
		DryRun:      viper.GetBool("dry-run"),
	})

	report, runErr := publisher.Run(ctx, descriptors)

	if report != nil {
		exporter, err := publish.NewExporter(viper.GetString("output"))
		if err != nil {
			return err
		}
		rendered, err := exporter.Export(report)
		if err != nil {
			return fmt.Errorf("rendering report failed: %w", err)
		}
		fmt.Println(string(rendered))
	}

	return runErr
}

func resolveCatalog(ctx context.Context, filesystem filesystems.FileSystem, sourceRoot string) ([]catalog.ServiceDescriptor, error) {
	if catalogFile := viper.GetString("catalog"); catalogFile != "" {
		return catalog.LoadFile(filesystem, catalogFile, sourceRoot)
	}

	if viper.GetBool("discover") {
		descriptors, err := discovery.NewWithDefaults(filesystem).Discover(ctx, sourceRoot)
		if err != nil {
			return nil, fmt.Errorf("service discovery failed: %w", err)
		}
		return descriptors, nil
	}

	return catalog.Default(filesystem, sourceRoot), nil
}

func loadBuildArgs(filesystem filesystems.FileSystem) (map[string]string, error) {
	envFile := viper.GetString("build-env-file")
	if envFile == "" {
		return nil, nil
	}

	content, err := filesystem.ReadFile(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read build env file: %w", err)
	}
	args, err := godotenv.Unmarshal(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse build env file %s: %w", envFile, err)
	}
	return args, nil
}

func newBuilder() (builder.ImageBuilder, error) {
	switch name := viper.GetString("builder"); name {
	case "cli", "":
		return builder.NewDockerCLI(), nil
	case "api":
		return builder.NewDockerAPI()
	default:
		return nil, fmt.Errorf("unknown builder %q, expected cli or api", name)
	}
}

func init() {
	publishCmd.Flags().String("project", "", "registry project id (required)")
	publishCmd.Flags().String("region", "", "registry region, e.g. us-central1 (required)")
	publishCmd.Flags().String("namespace", "", "repository namespace (default microservices-demo)")
	publishCmd.Flags().String("tag", "", "image tag (default latest)")
	publishCmd.Flags().String("catalog", "", "YAML catalog file instead of the built-in service list")
	publishCmd.Flags().Bool("discover", false, "discover services from the source tree instead of the built-in list")
	publishCmd.Flags().String("protos", "", "shared interface-definition directory staged into each context")
	publishCmd.Flags().String("builder", "cli", "container builder: cli (docker command) or api (engine API)")
	publishCmd.Flags().Int("parallel", 1, "number of services to build concurrently")
	publishCmd.Flags().String("build-env-file", "", "dotenv file of build args applied to every service")
	publishCmd.Flags().Bool("dry-run", false, "derive references without building or pushing")
	publishCmd.Flags().String("output", "text", "report format: text, json or yaml")

	cobra.CheckErr(viper.BindPFlags(publishCmd.Flags()))

	rootCmd.AddCommand(publishCmd)
}
