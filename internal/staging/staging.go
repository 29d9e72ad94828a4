package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Stage copies the shared interface-definition directory into a service's
// build context, under the shared directory's own name (so protos/ lands as
// <context>/protos). Existing files are overwritten; staged copies stay in
// place after the run, matching the original script's behavior. The shared
// source is read-only here, so staging different contexts never races.
func Stage(sharedDir, contextDir string) error {
	info, err := os.Stat(sharedDir)
	if err != nil {
		return fmt.Errorf("shared directory %s: %w", sharedDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("shared path %s is not a directory", sharedDir)
	}

	target := filepath.Join(contextDir, filepath.Base(sharedDir))
	if err := copyTree(sharedDir, target); err != nil {
		return fmt.Errorf("staging %s into %s: %w", sharedDir, contextDir, err)
	}
	return nil
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			// Symlinks inside a build context confuse the builder anyway
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
