//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/oshokin/formulary/internal/config"
	"github.com/oshokin/formulary/internal/logger"
)

// ErrNotInstalled is returned when a package has no receipt.
var ErrNotInstalled = errors.New("package is not installed")

// LoadConfig reads settings and applies the log level.
// A non-empty levelOverride wins over the configured level.
func LoadConfig(ctx context.Context, path, levelOverride string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if levelOverride != "" {
		level = levelOverride
	}

	if err = logger.SetLevelString(level); err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Configuration loaded",
		"bin_dir", cfg.BinDir,
		"prefix", cfg.Prefix,
		"cache_dir", cfg.CacheDir,
		"receipts_dir", cfg.ReceiptsDir,
		"formula_dir", cfg.FormulaDir)

	return cfg, nil
}

// MarkerPath returns where the run marker for cfg lives.
func MarkerPath(cfg *config.Config) string {
	return filepath.Join(cfg.CacheDir, MarkerFilename)
}
