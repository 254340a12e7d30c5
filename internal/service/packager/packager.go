package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/formulary/internal/checksum"
	"github.com/oshokin/formulary/internal/config"
	domain "github.com/oshokin/formulary/internal/domain/formula"
	"github.com/oshokin/formulary/internal/fetch"
	"github.com/oshokin/formulary/internal/logger"
	"github.com/oshokin/formulary/internal/repository/formula"
	"github.com/oshokin/formulary/internal/service/auditor"
	"github.com/oshokin/formulary/internal/service/common"
)

// DefaultFileMode is used for written descriptors.
const DefaultFileMode os.FileMode = 0o644

var (
	// ErrExists is returned when the descriptor file already exists and Force is not set.
	ErrExists = errors.New("descriptor already exists")

	errURLRequired     = errors.New("artifact url must be provided")
	errCannotGuessName = errors.New("unable to guess name and version from the artifact file name")

	// releasePattern splits "iri-1.1.4.2.jar" into name and version.
	releasePattern = regexp.MustCompile(`^([a-z0-9][a-z0-9._+-]*?)-v?(\d+(?:\.\d+)*)`)
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Name of the package; guessed from the artifact file name when empty.
	Name string
	// Version of the release; guessed from the artifact file name when empty.
	Version string
	// Description is a one-line summary.
	Description string
	// Homepage of the project.
	Homepage string
	// URL of the release artifact.
	URL string
	// File is a local copy of the artifact; when empty URL is downloaded to compute the checksum.
	File string
	// Source is the install source; defaults to the artifact file name.
	Source string
	// Target is the installed name; defaults to the base name of Source.
	Target string
	// OutputDir receives the descriptor; defaults to formula_dir, then the working directory.
	OutputDir string
	// Force overwrites an existing descriptor of the same release.
	Force bool
}

// packager builds one descriptor.
type packager struct {
	cfg  *config.Config
	opts *Options
}

// Run writes a new descriptor and returns its path.
func Run(ctx context.Context, opts *Options) (string, error) {
	ctx = logger.WithName(ctx, "packager")

	if opts == nil || opts.URL == "" {
		return "", errURLRequired
	}

	cfg, err := common.LoadConfig(ctx, opts.ConfigPath, opts.LogLevel)
	if err != nil {
		return "", err
	}

	p := &packager{cfg: cfg, opts: opts}

	path, err := p.run(ctx)
	if err != nil {
		return "", fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return path, nil
}

func (p *packager) run(ctx context.Context) (string, error) {
	d, err := p.describe()
	if err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Computing checksum", "package", d.Ref())

	sum, err := p.checksum(ctx)
	if err != nil {
		return "", err
	}

	d.SHA256 = sum.Encoded()

	for _, f := range auditor.Audit(d) {
		logger.WarnKV(ctx, "Audit finding", "severity", f.Severity.String(), "field", f.Field, "message", f.Message)
	}

	outputDir := p.outputDir()

	fileName, err := p.fileName(outputDir, d)
	if err != nil {
		return "", err
	}

	contents, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}

	if _, err = formula.Parse(fileName, contents); err != nil {
		return "", err
	}

	if err = os.MkdirAll(outputDir, config.DefaultDirPermissions); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(outputDir, fileName)

	logger.InfoKV(ctx, "Saving descriptor", "path", path)

	if err = os.WriteFile(path, contents, DefaultFileMode); err != nil {
		return "", fmt.Errorf("write descriptor: %w", err)
	}

	p.printNextSteps(ctx, d, path)

	return path, nil
}

// describe fills every field except the checksum.
func (p *packager) describe() (*domain.Descriptor, error) {
	filename := domain.ArtifactFilename(p.opts.URL)

	name, version := p.opts.Name, p.opts.Version
	if name == "" || version == "" {
		match := releasePattern.FindStringSubmatch(strings.ToLower(filename))
		if match == nil {
			return nil, fmt.Errorf("%w: %s", errCannotGuessName, filename)
		}

		if name == "" {
			name = match[1]
		}

		if version == "" {
			version = match[2]
		}
	}

	source := p.opts.Source
	if source == "" {
		source = filename
	}

	homepage := p.opts.Homepage
	if homepage == "" {
		homepage = p.opts.URL
	}

	return &domain.Descriptor{
		Name:        name,
		Version:     version,
		Description: p.opts.Description,
		Homepage:    homepage,
		URL:         p.opts.URL,
		Install:     []domain.InstallRule{{Source: source, Target: p.opts.Target}},
	}, nil
}

func (p *packager) checksum(ctx context.Context) (digest.Digest, error) {
	if p.opts.File != "" {
		return checksum.File(p.opts.File)
	}

	tmpDir, err := os.MkdirTemp("", "formulary-create-")
	if err != nil {
		return "", err
	}

	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	downloader := fetch.NewFromConfig(p.cfg)

	return downloader.Download(ctx, p.opts.URL, filepath.Join(tmpDir, domain.ArtifactFilename(p.opts.URL)))
}

func (p *packager) outputDir() string {
	switch {
	case p.opts.OutputDir != "":
		return p.opts.OutputDir
	case p.cfg.FormulaDir != "":
		return p.cfg.FormulaDir
	default:
		return "."
	}
}

// fileName picks <name>.yaml, or the pinned form when <name>.yaml holds another release.
func (p *packager) fileName(outputDir string, d *domain.Descriptor) (string, error) {
	latest := formula.FileName(d, false)

	data, err := os.ReadFile(filepath.Join(outputDir, latest))

	switch {
	case errors.Is(err, os.ErrNotExist):
		return latest, nil
	case err != nil:
		return "", fmt.Errorf("read %s: %w", latest, err)
	}

	existing, err := formula.Parse(latest, data)
	if err == nil && existing.Version != d.Version {
		pinned := formula.FileName(d, true)
		if _, statErr := os.Stat(filepath.Join(outputDir, pinned)); statErr == nil && !p.opts.Force {
			return "", fmt.Errorf("%w: %s", ErrExists, pinned)
		}

		return pinned, nil
	}

	if !p.opts.Force {
		return "", fmt.Errorf("%w: %s", ErrExists, latest)
	}

	return latest, nil
}

// printNextSteps logs human-readable guidance for next actions with the created descriptor.
func (p *packager) printNextSteps(ctx context.Context, d *domain.Descriptor, path string) {
	var builder strings.Builder

	builder.WriteString("Descriptor written to ")
	builder.WriteString(path)
	builder.WriteString(".\nReview the install rule, then run:\n")
	builder.WriteString("formulary audit ")
	builder.WriteString(d.Name)
	builder.WriteString(" --online\nformulary install ")
	builder.WriteString(d.Ref())

	logger.Info(ctx, builder.String())
}
