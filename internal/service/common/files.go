//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/formulary/internal/config"
	"github.com/oshokin/formulary/internal/logger"
)

// RemoveFiles deletes every path. Missing files are skipped.
func RemoveFiles(ctx context.Context, paths []string) error {
	var errs []error

	for _, path := range paths {
		err := os.Remove(path)

		switch {
		case err == nil:
			logger.DebugKV(ctx, "Removed file", "path", path)
		case errors.Is(err, os.ErrNotExist):
			logger.DebugKV(ctx, "File already gone", "path", path)
		default:
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}

// PruneKeg removes the version directory of a package and its parent when they are empty.
func PruneKeg(cfg *config.Config, name, version string) {
	keg := cfg.KegDir(name, version)

	for _, dir := range []string{keg, filepath.Dir(keg)} {
		if dir == cfg.Prefix {
			return
		}

		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
