package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/oshokin/formulary/internal/archive"
	"github.com/oshokin/formulary/internal/config"
	domain "github.com/oshokin/formulary/internal/domain/formula"
	"github.com/oshokin/formulary/internal/fetch"
	"github.com/oshokin/formulary/internal/logger"
	"github.com/oshokin/formulary/internal/repository/formula"
	"github.com/oshokin/formulary/internal/repository/receipt"
	"github.com/oshokin/formulary/internal/service/common"
	"github.com/oshokin/formulary/internal/signature"
)

var (
	// ErrMissingSource is returned when an install rule names a file the artifacts did not produce.
	ErrMissingSource = errors.New("install source not produced by artifacts")
	// ErrUnsigned is returned when signatures are required but the descriptor declares none.
	ErrUnsigned = errors.New("descriptor is not signed")

	errNameRequired = errors.New("package name must be provided")
)

// Options are inputs accepted by the installer entry points.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Name is the package name, optionally pinned as name@version.
	Name string
	// Version pins a release; empty means the latest.
	Version string
	// Force reinstalls the same version and kills processes running old files.
	Force bool
}

type mode int

const (
	modeInstall mode = iota
	modeUpgrade
	modeFetch
)

// runner holds the state of one installer execution.
type runner struct {
	cfg        *config.Config
	opts       *Options
	formulas   *formula.Repository
	receipts   receipt.Repository
	downloader *fetch.Downloader
	stagingDir string
}

// Run installs a package, upgrading an installed release when the version differs.
func Run(ctx context.Context, opts *Options) error {
	return execute(logger.WithName(ctx, "installer"), opts, modeInstall)
}

// Upgrade moves an installed package to its latest release.
func Upgrade(ctx context.Context, opts *Options) error {
	return execute(logger.WithName(ctx, "upgrader"), opts, modeUpgrade)
}

// Fetch downloads and verifies a package's artifacts into the cache without installing.
func Fetch(ctx context.Context, opts *Options) error {
	return execute(logger.WithName(ctx, "fetcher"), opts, modeFetch)
}

func execute(ctx context.Context, opts *Options, m mode) error {
	if opts == nil || opts.Name == "" {
		return errNameRequired
	}

	cfg, err := common.LoadConfig(ctx, opts.ConfigPath, opts.LogLevel)
	if err != nil {
		return err
	}

	r := &runner{
		cfg:        cfg,
		opts:       opts,
		formulas:   formula.NewFromConfig(cfg),
		receipts:   receipt.NewFileRepository(cfg.ReceiptsDir),
		downloader: fetch.NewFromConfig(cfg),
	}

	lock, err := common.AcquireLock(ctx, common.MarkerPath(cfg), common.DefaultMarkerLifetime)
	if err != nil {
		return err
	}

	defer lock.Release()
	defer r.cleanup(ctx)

	if err = r.run(ctx, m); err != nil {
		logger.ErrorKV(ctx, "Run failed", "package", opts.Name, "error", err)

		return err
	}

	return nil
}

func (r *runner) run(ctx context.Context, m mode) error {
	name, version := formula.ParseRef(r.opts.Name)
	if r.opts.Version != "" {
		version = r.opts.Version
	}

	if m == modeUpgrade {
		version = ""
	}

	d, err := r.formulas.GetVersion(name, version)
	if err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "package", d.Ref())

	if m == modeFetch {
		_, err = r.fetch(ctx, d)

		return err
	}

	installed, err := r.installed(ctx, name)
	if err != nil {
		return err
	}

	if m == modeUpgrade && installed == nil {
		return fmt.Errorf("%w: %s", common.ErrNotInstalled, name)
	}

	if proceed := r.decide(ctx, m, d, installed); !proceed {
		return nil
	}

	results, err := r.fetch(ctx, d)
	if err != nil {
		return err
	}

	logger.Info(ctx, "Staging artifacts")

	if err = r.stage(d, results); err != nil {
		return err
	}

	if installed != nil {
		if err = common.EnsureNotRunning(ctx, installed.Files, r.opts.Force); err != nil {
			return err
		}
	}

	return r.place(ctx, d, installed)
}

func (r *runner) installed(ctx context.Context, name string) (*domain.Receipt, error) {
	existing, err := r.receipts.Load(ctx, name)
	if errors.Is(err, receipt.ErrNotFound) {
		return nil, nil //nolint:nilnil // Not installed yet.
	}

	if err != nil {
		return nil, fmt.Errorf("load receipt: %w", err)
	}

	return existing, nil
}

// decide reports whether the run has work to do.
func (r *runner) decide(ctx context.Context, m mode, d *domain.Descriptor, installed *domain.Receipt) bool {
	if installed == nil {
		return true
	}

	switch {
	case installed.Version == d.Version && !r.opts.Force:
		logger.InfoKV(ctx, "Already installed", "version", installed.Version)

		return false
	case domain.CompareVersions(d.Version, installed.Version) < 0 && !r.opts.Force:
		if m == modeUpgrade {
			logger.InfoKV(ctx, "Installed release is newer than the latest descriptor",
				"installed", installed.Version, "latest", d.Version)
		} else {
			logger.WarnKV(ctx, "Installed release is newer, use --force to downgrade",
				"installed", installed.Version, "requested", d.Version)
		}

		return false
	case installed.Version != d.Version:
		logger.InfoKV(ctx, "Replacing installed release", "from", installed.Version, "to", d.Version)
	default:
		logger.Info(ctx, "Reinstalling")
	}

	return true
}

// fetch downloads every artifact and checks the optional signature.
// A checksum mismatch stops the run here, before anything is staged.
func (r *runner) fetch(ctx context.Context, d *domain.Descriptor) ([]*fetch.Result, error) {
	logger.InfoKV(ctx, "Fetching artifacts", "count", len(d.Artifacts()))

	results, err := r.downloader.FetchAll(ctx, d.Artifacts())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", d.Ref(), err)
	}

	for _, res := range results {
		logger.InfoKV(ctx, "Artifact verified",
			"artifact", res.Artifact.Name, "path", res.Path, "digest", res.Digest.String(), "cached", res.Cached)
	}

	if err = r.verifySignature(ctx, d, results[0].Path); err != nil {
		return nil, err
	}

	return results, nil
}

func (r *runner) verifySignature(ctx context.Context, d *domain.Descriptor, artifactPath string) error {
	if d.SignatureURL == "" {
		if r.cfg.RequireSignatures {
			return fmt.Errorf("%w: %s", ErrUnsigned, d.Ref())
		}

		return nil
	}

	if r.cfg.Keyring == "" {
		logger.Warn(ctx, "No keyring configured, skipping signature check")

		return nil
	}

	verifier, err := signature.LoadKeyring(r.cfg.Keyring)
	if err != nil {
		return err
	}

	armored, err := r.downloader.Get(ctx, d.SignatureURL)
	if err != nil {
		return fmt.Errorf("fetch signature: %w", err)
	}

	keyID, err := verifier.VerifyFile(artifactPath, armored)
	if err != nil {
		return fmt.Errorf("%s: %w", d.Ref(), err)
	}

	logger.InfoKV(ctx, "Signature verified", "key", keyID)

	return nil
}

// stage copies or extracts every artifact into one staging directory and
// checks that each install rule finds its source there.
func (r *runner) stage(d *domain.Descriptor, results []*fetch.Result) error {
	stagingDir, err := os.MkdirTemp(r.cfg.CacheDir, "stage-"+d.Name+"-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	r.stagingDir = stagingDir

	for _, res := range results {
		if err = archive.Extract(res.Path, stagingDir, res.Artifact.Filename()); err != nil {
			return err
		}
	}

	for _, rule := range d.Install {
		info, statErr := os.Stat(r.stagedPath(rule))
		if statErr != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s", ErrMissingSource, rule.Source)
		}
	}

	return nil
}

func (r *runner) stagedPath(rule domain.InstallRule) string {
	return filepath.Join(r.stagingDir, filepath.FromSlash(rule.Source))
}

// destination returns where a rule's target is installed.
func (r *runner) destination(d *domain.Descriptor, rule domain.InstallRule) string {
	if rule.Destination() == domain.DirPrefix {
		return filepath.Join(r.cfg.KegDir(d.Name, d.Version), rule.TargetName())
	}

	return filepath.Join(r.cfg.BinDir, rule.TargetName())
}

// place applies staged files and launchers, saves the receipt and removes
// files of the replaced release that the new one no longer ships.
func (r *runner) place(ctx context.Context, d *domain.Descriptor, installed *domain.Receipt) error {
	if err := r.cfg.EnsureDirs(); err != nil {
		return err
	}

	logger.Info(ctx, "Placing files")

	tx := newTransaction()

	files, err := r.apply(ctx, tx, d)
	if err != nil {
		tx.rollback(ctx)

		return err
	}

	actor, err := common.DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Unable to detect actor", "error", err)
	}

	if err = r.receipts.Save(ctx, domain.NewReceipt(d, actor, files)); err != nil {
		tx.rollback(ctx)

		return fmt.Errorf("save receipt: %w", err)
	}

	tx.commit(ctx)

	if installed != nil {
		var stale []string

		for _, path := range installed.Files {
			if !slices.Contains(files, path) {
				stale = append(stale, path)
			}
		}

		if err = common.RemoveFiles(ctx, stale); err != nil {
			logger.WarnKV(ctx, "Unable to remove files of the replaced release", "error", err)
		}

		if installed.Version != d.Version {
			common.PruneKeg(r.cfg, installed.Name, installed.Version)
		}
	}

	logger.InfoKV(ctx, "Installed", "files", files)

	return nil
}

func (r *runner) apply(ctx context.Context, tx *transaction, d *domain.Descriptor) ([]string, error) {
	plain := make(map[string]string, len(d.Artifacts()))

	for _, a := range d.Artifacts() {
		if !a.IsArchive() {
			plain[a.Filename()] = a.SHA256
		}
	}

	var (
		files   = make([]string, 0, len(d.Install)+len(d.Launchers))
		targets = make(map[string]string, len(d.Install))
	)

	for _, rule := range d.Install {
		dest := r.destination(d, rule)

		// Files copied straight from a plain artifact are re-verified while writing.
		if err := tx.placeFile(ctx, r.stagedPath(rule), dest, plain[rule.Source]); err != nil {
			return nil, err
		}

		files = append(files, dest)
		targets[rule.TargetName()] = dest
	}

	for _, l := range d.Launchers {
		dest := filepath.Join(r.cfg.BinDir, l.Name)

		if err := tx.placeBytes(ctx, launcherScript(l, targets[l.Target]), dest); err != nil {
			return nil, err
		}

		files = append(files, dest)
	}

	return files, nil
}

func (r *runner) cleanup(ctx context.Context) {
	if r.stagingDir == "" {
		return
	}

	if err := os.RemoveAll(r.stagingDir); err != nil {
		logger.WarnKV(ctx, "Unable to remove staging directory", "path", r.stagingDir, "error", err)
	}
}
