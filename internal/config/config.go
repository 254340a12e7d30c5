package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/formulary/internal/logger"
)

// Config holds the directories and knobs shared by every formulary command.
type Config struct {
	// BinDir receives installed binaries and launchers.
	BinDir string `yaml:"bin_dir"`
	// Prefix is the root of per-version install directories (<prefix>/<name>/<version>).
	Prefix string `yaml:"prefix"`
	// CacheDir keeps verified downloads between runs.
	CacheDir string `yaml:"cache_dir"`
	// ReceiptsDir stores one JSON receipt per installed package.
	ReceiptsDir string `yaml:"receipts_dir"`
	// FormulaDir is where descriptors are read from; empty means the built-in set.
	FormulaDir string `yaml:"formula_dir"`
	// Keyring is an ASCII-armored OpenPGP public keyring for detached signatures.
	Keyring string `yaml:"keyring"`
	// RequireSignatures turns a skipped signature check into a failure.
	RequireSignatures bool `yaml:"require_signatures"`
	// Timeout bounds a single artifact download.
	Timeout time.Duration `yaml:"timeout"`
	// Parallelism caps concurrent artifact downloads.
	Parallelism int `yaml:"parallelism"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the config file looked up when no path is given.
	DefaultConfigFilename = "formulary.yaml"

	// EnvPrefix prefixes environment overrides, e.g. FORMULARY_BIN_DIR.
	EnvPrefix = "FORMULARY_"

	// DefaultTimeout is the default duration for a single download.
	DefaultTimeout = 5 * time.Minute

	// DefaultParallelism is the default number of concurrent downloads.
	DefaultParallelism = 4

	// DefaultFilePermissions is the permission for config and receipt files.
	DefaultFilePermissions = 0o600

	// DefaultDirPermissions is used for every directory formulary creates.
	DefaultDirPermissions = 0o755

	appDirName = "formulary"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errDirRequired is returned when one of the working directories is empty.
	errDirRequired = errors.New("directory must be provided")
	// errKeyringRequired is returned when signatures are required but no keyring is set.
	errKeyringRequired = errors.New("require_signatures is set but keyring is empty")
	// errBadLogLevel is returned for an unknown log level.
	errBadLogLevel = errors.New("unknown log level")
)

// Defaults returns the lowest configuration layer, rooted in the XDG directories.
func Defaults() map[string]any {
	dataHome := filepath.Join(xdg.DataHome, appDirName)

	return map[string]any{
		"bin_dir":            filepath.Join(dataHome, "bin"),
		"prefix":             filepath.Join(dataHome, "Cellar"),
		"cache_dir":          filepath.Join(xdg.CacheHome, appDirName),
		"receipts_dir":       filepath.Join(dataHome, "receipts"),
		"formula_dir":        "",
		"keyring":            "",
		"require_signatures": false,
		"timeout":            DefaultTimeout.String(),
		"parallelism":        DefaultParallelism,
		"log_level":          "info",
	}
}

// Load layers defaults, the YAML file and FORMULARY_* environment variables.
// An empty path falls back to DefaultConfigFilename, which may be absent.
// An explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	optional := path == ""
	if optional {
		path = DefaultConfigFilename
	}

	path = filepath.Clean(path)

	switch _, err := os.Stat(path); {
	case err == nil:
		if err = k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && optional:
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config

	unmarshalConf := koanf.UnmarshalConf{
		Tag: "yaml",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}

	if err = k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields, fills defaults and makes directories absolute.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	dirs := map[string]*string{
		"bin_dir":      &cfg.BinDir,
		"prefix":       &cfg.Prefix,
		"cache_dir":    &cfg.CacheDir,
		"receipts_dir": &cfg.ReceiptsDir,
	}

	for key, dir := range dirs {
		if strings.TrimSpace(*dir) == "" {
			return fmt.Errorf("%s: %w", key, errDirRequired)
		}

		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		*dir = abs
	}

	if cfg.FormulaDir != "" {
		abs, err := filepath.Abs(cfg.FormulaDir)
		if err != nil {
			return fmt.Errorf("formula_dir: %w", err)
		}

		cfg.FormulaDir = abs
	}

	if cfg.RequireSignatures && cfg.Keyring == "" {
		return errKeyringRequired
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errBadLogLevel, cfg.LogLevel)
	}

	return nil
}

// KegDir returns the install directory of one package version.
func (c *Config) KegDir(name, version string) string {
	return filepath.Join(c.Prefix, name, version)
}

// EnsureDirs creates the working directories if they are missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.BinDir, c.Prefix, c.CacheDir, c.ReceiptsDir} {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return nil
}
