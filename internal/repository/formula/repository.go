package formula

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"

	"github.com/oshokin/formulary/formulae"
	"github.com/oshokin/formulary/internal/config"
	domain "github.com/oshokin/formulary/internal/domain/formula"
)

const schemaURL = "https://formulary.dev/schema/descriptor.json"

var (
	// ErrNotFound is returned when no descriptor matches the requested name or version.
	ErrNotFound = errors.New("formula not found")
	// ErrSchema wraps schema violations found while parsing a descriptor file.
	ErrSchema = errors.New("descriptor does not match schema")
	// ErrFilename is returned when a file name disagrees with the descriptor it holds.
	ErrFilename = errors.New("descriptor file name mismatch")
	// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported descriptor format")

	//go:embed schema.json
	schemaSource string

	descriptorSchema = jsonschema.MustCompileString(schemaURL, schemaSource)
)

// Repository is a read-only descriptor store.
type Repository struct {
	fsys fs.FS
}

// New creates a repository over the root of fsys.
func New(fsys fs.FS) *Repository {
	return &Repository{fsys: fsys}
}

// NewFromConfig uses cfg.FormulaDir when set and the built-in descriptors otherwise.
func NewFromConfig(cfg *config.Config) *Repository {
	if cfg.FormulaDir == "" {
		return New(formulae.FS)
	}

	return New(os.DirFS(cfg.FormulaDir))
}

// ParseRef splits "name" or "name@version".
func ParseRef(ref string) (name, version string) {
	name, version, _ = strings.Cut(ref, "@")

	return name, version
}

// Get returns the latest release of name.
// Deprecated releases are only returned when nothing else is available.
func (r *Repository) Get(name string) (*domain.Descriptor, error) {
	versions, err := r.Versions(name)
	if err != nil {
		return nil, err
	}

	latest := versions[len(versions)-1]

	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].Deprecated {
			return versions[i], nil
		}
	}

	return latest, nil
}

// GetVersion returns one specific release of name.
func (r *Repository) GetVersion(name, version string) (*domain.Descriptor, error) {
	if version == "" {
		return r.Get(name)
	}

	versions, err := r.Versions(name)
	if err != nil {
		return nil, err
	}

	for _, d := range versions {
		if d.Version == version {
			return d, nil
		}
	}

	return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, name, version)
}

// Versions returns every release of name in ascending version order.
func (r *Repository) Versions(name string) ([]*domain.Descriptor, error) {
	all, err := r.load(func(fileName string) bool { return fileName == name })
	if err != nil {
		return nil, err
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return all, nil
}

// List returns every descriptor in the store sorted by name, then version.
func (r *Repository) List() ([]*domain.Descriptor, error) {
	return r.load(func(string) bool { return true })
}

// Entry is one descriptor file found by Scan.
type Entry struct {
	// File is the file name inside the store.
	File string
	// Name is the package name taken from the file name.
	Name string
	// Descriptor is set when the file parsed.
	Descriptor *domain.Descriptor
	// Err is the parse failure otherwise.
	Err error
}

// Scan parses every descriptor file, keeping per-file failures instead of stopping at the first one.
func (r *Repository) Scan() ([]Entry, error) {
	return r.scan(func(string) bool { return true })
}

func (r *Repository) scan(match func(name string) bool) ([]Entry, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read formula directory: %w", err)
	}

	var result []Entry

	for _, entry := range entries {
		if entry.IsDir() || !isDescriptorFile(entry.Name()) {
			continue
		}

		name, _ := ParseRef(stem(entry.Name()))
		if !match(name) {
			continue
		}

		item := Entry{File: entry.Name(), Name: name}

		data, err := fs.ReadFile(r.fsys, entry.Name())
		if err != nil {
			item.Err = fmt.Errorf("read %s: %w", entry.Name(), err)
		} else {
			item.Descriptor, item.Err = Parse(entry.Name(), data)
		}

		result = append(result, item)
	}

	return result, nil
}

func (r *Repository) load(match func(name string) bool) ([]*domain.Descriptor, error) {
	entries, err := r.scan(match)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Descriptor, 0, len(entries))

	for _, entry := range entries {
		if entry.Err != nil {
			return nil, entry.Err
		}

		result = append(result, entry.Descriptor)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}

		return domain.CompareVersions(result[i].Version, result[j].Version) < 0
	})

	for i := 1; i < len(result); i++ {
		if result[i].Name == result[i-1].Name && result[i].Version == result[i-1].Version {
			return nil, fmt.Errorf("%w: %s is declared twice", ErrFilename, result[i].Ref())
		}
	}

	return result, nil
}

// Parse decodes a descriptor file. The file name decides the format and must be
// either <name>.<ext> or <name>@<version>.<ext>.
func Parse(fileName string, data []byte) (*domain.Descriptor, error) {
	raw, err := toJSON(fileName, data)
	if err != nil {
		return nil, err
	}

	var document any
	if err = json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("decode %s: %w", fileName, err)
	}

	if err = descriptorSchema.Validate(document); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchema, fileName, err)
	}

	var d domain.Descriptor

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()

	if err = decoder.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", fileName, err)
	}

	if err = d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}

	name, version := ParseRef(stem(fileName))
	if name != d.Name || (version != "" && version != d.Version) {
		return nil, fmt.Errorf("%w: %s holds %s", ErrFilename, fileName, d.Ref())
	}

	return &d, nil
}

// FileName returns the canonical YAML file name for a descriptor.
// The pinned form is used when pinned is true.
func FileName(d *domain.Descriptor, pinned bool) string {
	if pinned {
		return d.Ref() + ".yaml"
	}

	return d.Name + ".yaml"
}

func toJSON(fileName string, data []byte) ([]byte, error) {
	switch path.Ext(fileName) {
	case ".yaml", ".yml":
		raw, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", fileName, err)
		}

		return raw, nil
	case ".toml":
		var document map[string]any
		if err := toml.Unmarshal(data, &document); err != nil {
			return nil, fmt.Errorf("parse %s: %w", fileName, err)
		}

		raw, err := json.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", fileName, err)
		}

		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
	}
}

func isDescriptorFile(name string) bool {
	return slices.Contains([]string{".yaml", ".yml", ".toml"}, path.Ext(name))
}

func stem(fileName string) string {
	return strings.TrimSuffix(fileName, path.Ext(fileName))
}
