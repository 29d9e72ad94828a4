package shipout

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shipouthq/shipout/internal/discovery"
	"github.com/shipouthq/shipout/internal/filesystems"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [source-root]",
	Short: "List buildable services found in a source tree",
	Long: `Discover scans the source tree for buildable service contexts
(Dockerfiles, compose build sections, skaffold artifacts) and prints the
catalog a publish run with --discover would use, without building anything.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sourceRoot := "."
		if len(args) > 0 {
			sourceRoot = args[0]

			// If user provided a file path, use the parent directory
			if stat, err := os.Stat(sourceRoot); err == nil && !stat.IsDir() {
				sourceRoot = filepath.Dir(sourceRoot)
			}
		}

		fmt.Printf("Discovering services in: %s\n", sourceRoot)

		if err := runDiscovery(cmd.Context(), sourceRoot); err != nil {
			fmt.Fprintf(os.Stderr, "Service discovery failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func runDiscovery(ctx context.Context, sourceRoot string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	filesystem := filesystems.NewLocalFS()
	descriptors, err := discovery.NewWithDefaults(filesystem).Discover(ctx, sourceRoot)
	if err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}

	fmt.Printf("Discovered %d services:\n", len(descriptors))
	for _, descriptor := range descriptors {
		fmt.Printf("  - %s\n", descriptor.Name)
		fmt.Printf("    Context: %s\n", descriptor.ContextPath)
		if descriptor.Image != "" {
			fmt.Printf("    Image: %s\n", descriptor.Image)
		}
	}

	output, err := json.MarshalIndent(descriptors, "", "  ")
	if err != nil {
		return fmt.Errorf("JSON export failed: %w", err)
	}
	fmt.Printf("\nJSON Export:\n%s\n", string(output))
	return nil
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
