package uninstaller

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/formulary/internal/logger"
	"github.com/oshokin/formulary/internal/repository/formula"
	"github.com/oshokin/formulary/internal/repository/receipt"
	"github.com/oshokin/formulary/internal/service/common"
)

var errNameRequired = errors.New("package name must be provided")

// Options are inputs accepted by the uninstaller entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Name is the installed package.
	Name string
	// Force kills processes running installed files instead of failing.
	Force bool
}

// Run removes every file recorded in the package receipt, then the receipt itself.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "uninstaller")

	if opts == nil || opts.Name == "" {
		return errNameRequired
	}

	cfg, err := common.LoadConfig(ctx, opts.ConfigPath, opts.LogLevel)
	if err != nil {
		return err
	}

	lock, err := common.AcquireLock(ctx, common.MarkerPath(cfg), common.DefaultMarkerLifetime)
	if err != nil {
		return err
	}

	defer lock.Release()

	name, _ := formula.ParseRef(opts.Name)
	receipts := receipt.NewFileRepository(cfg.ReceiptsDir)

	installed, err := receipts.Load(ctx, name)
	if errors.Is(err, receipt.ErrNotFound) {
		return fmt.Errorf("%w: %s", common.ErrNotInstalled, name)
	}

	if err != nil {
		return fmt.Errorf("load receipt: %w", err)
	}

	ctx = logger.WithKV(ctx, "package", installed.Ref())

	if err = common.EnsureNotRunning(ctx, installed.Files, opts.Force); err != nil {
		return err
	}

	if err = common.RemoveFiles(ctx, installed.Files); err != nil {
		return err
	}

	common.PruneKeg(cfg, installed.Name, installed.Version)

	if err = receipts.Delete(ctx, installed.Name); err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}

	logger.InfoKV(ctx, "Uninstalled", "files", len(installed.Files))

	return nil
}
