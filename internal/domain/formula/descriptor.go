package formula

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Install destinations.
const (
	DirBin    = "bin"
	DirPrefix = "prefix"
)

var (
	// ErrInvalidDescriptor wraps every consistency failure reported by Validate.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	// ErrNotSuperseding is returned when a newer descriptor does not properly replace an older one.
	ErrNotSuperseding = errors.New("descriptor does not supersede")

	namePattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*$`)
	sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

	archiveSuffixes = []string{".tar.gz", ".tgz", ".tar.zst", ".tar.xz", ".zip"}
)

// Descriptor is one release of one package.
type Descriptor struct {
	Name         string        `json:"name"                    yaml:"name"`
	Version      string        `json:"version"                 yaml:"version"`
	Description  string        `json:"desc,omitempty"          yaml:"desc,omitempty"`
	Homepage     string        `json:"homepage"                yaml:"homepage"`
	URL          string        `json:"url"                     yaml:"url"`
	SHA256       string        `json:"sha256"                  yaml:"sha256"`
	SignatureURL string        `json:"signature_url,omitempty" yaml:"signature_url,omitempty"`
	Resources    []Resource    `json:"resources,omitempty"     yaml:"resources,omitempty"`
	Install      []InstallRule `json:"install"                 yaml:"install"`
	Launchers    []Launcher    `json:"launchers,omitempty"     yaml:"launchers,omitempty"`
	Deprecated   bool          `json:"deprecated,omitempty"    yaml:"deprecated,omitempty"`
}

// Resource is an additional named artifact fetched alongside the main one.
type Resource struct {
	Name   string `json:"name"   yaml:"name"`
	URL    string `json:"url"    yaml:"url"`
	SHA256 string `json:"sha256" yaml:"sha256"`
}

// InstallRule maps a file produced by copying or extracting an artifact to its installed name.
type InstallRule struct {
	Source string `json:"source"           yaml:"source"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Dir    string `json:"dir,omitempty"    yaml:"dir,omitempty"`
}

// Launcher is a shell wrapper written to the bin directory that runs Command against an installed target.
type Launcher struct {
	Name    string   `json:"name"    yaml:"name"`
	Command []string `json:"command" yaml:"command"`
	Target  string   `json:"target"  yaml:"target"`
}

// Artifact is a downloadable file with its expected checksum.
type Artifact struct {
	Name   string
	URL    string
	SHA256 string
}

// Filename returns the artifact's file name as derived from its URL.
func (a Artifact) Filename() string {
	return ArtifactFilename(a.URL)
}

// IsArchive reports whether the artifact is unpacked rather than copied.
func (a Artifact) IsArchive() bool {
	return IsArchiveName(a.Filename())
}

// TargetName returns the installed name, defaulting to the source base name.
func (r InstallRule) TargetName() string {
	if r.Target != "" {
		return r.Target
	}

	return path.Base(r.Source)
}

// Destination returns DirBin unless the rule asks for the prefix.
func (r InstallRule) Destination() string {
	if r.Dir == "" {
		return DirBin
	}

	return r.Dir
}

// Ref returns name@version.
func (d *Descriptor) Ref() string {
	return d.Name + "@" + d.Version
}

// Artifacts returns the main artifact followed by the resources.
func (d *Descriptor) Artifacts() []Artifact {
	artifacts := make([]Artifact, 0, len(d.Resources)+1)
	artifacts = append(artifacts, Artifact{Name: d.Name, URL: d.URL, SHA256: d.SHA256})

	for _, r := range d.Resources {
		artifacts = append(artifacts, Artifact{Name: r.Name, URL: r.URL, SHA256: r.SHA256})
	}

	return artifacts
}

// Produces reports whether some artifact can yield the given install source.
// A plain artifact yields exactly its file name; an archive may yield any path.
func (d *Descriptor) Produces(source string) bool {
	for _, a := range d.Artifacts() {
		if a.IsArchive() || a.Filename() == source {
			return true
		}
	}

	return false
}

// Validate checks the descriptor for internal consistency.
//
//nolint:cyclop // A flat list of field checks reads better than helpers.
func (d *Descriptor) Validate() error {
	if !namePattern.MatchString(d.Name) {
		return invalid("name %q must match %s", d.Name, namePattern)
	}

	if strings.TrimSpace(d.Version) == "" {
		return invalid("version is required")
	}

	if err := checkURL("homepage", d.Homepage); err != nil {
		return err
	}

	if err := checkURL("url", d.URL); err != nil {
		return err
	}

	if !sha256Pattern.MatchString(d.SHA256) {
		return invalid("sha256 must be 64 lowercase hex characters, got %q", d.SHA256)
	}

	if d.SignatureURL != "" {
		if err := checkURL("signature_url", d.SignatureURL); err != nil {
			return err
		}
	}

	seen := map[string]struct{}{d.Name: {}}
	urls := map[string]struct{}{d.URL: {}}

	for i, r := range d.Resources {
		if !namePattern.MatchString(r.Name) {
			return invalid("resources[%d].name %q must match %s", i, r.Name, namePattern)
		}

		if _, dup := seen[r.Name]; dup {
			return invalid("resources[%d].name %q is not unique", i, r.Name)
		}

		seen[r.Name] = struct{}{}

		if err := checkURL(fmt.Sprintf("resources[%d].url", i), r.URL); err != nil {
			return err
		}

		// Artifacts share a cache entry per URL.
		if _, dup := urls[r.URL]; dup {
			return invalid("resources[%d].url %q is already fetched by another artifact", i, r.URL)
		}

		urls[r.URL] = struct{}{}

		if !sha256Pattern.MatchString(r.SHA256) {
			return invalid("resources[%d].sha256 must be 64 lowercase hex characters", i)
		}
	}

	return d.validateInstall()
}

func (d *Descriptor) validateInstall() error {
	if len(d.Install) == 0 {
		return invalid("at least one install rule is required")
	}

	targets := make(map[string]struct{}, len(d.Install))

	for i, rule := range d.Install {
		if rule.Source == "" || path.IsAbs(rule.Source) || hasDotDot(rule.Source) {
			return invalid("install[%d].source %q must be a relative path inside the artifact", i, rule.Source)
		}

		target := rule.TargetName()
		if !isPlainName(target) {
			return invalid("install[%d].target %q must be a plain file name", i, target)
		}

		switch rule.Destination() {
		case DirBin, DirPrefix:
		default:
			return invalid("install[%d].dir %q must be %q or %q", i, rule.Dir, DirBin, DirPrefix)
		}

		key := rule.Destination() + "/" + target
		if _, dup := targets[key]; dup {
			return invalid("install[%d] places %s twice", i, key)
		}

		targets[key] = struct{}{}
	}

	for i, l := range d.Launchers {
		if !isPlainName(l.Name) {
			return invalid("launchers[%d].name %q must be a plain file name", i, l.Name)
		}

		if len(l.Command) == 0 {
			return invalid("launchers[%d].command is required", i)
		}

		if !d.installs(l.Target) {
			return invalid("launchers[%d].target %q is not installed by any rule", i, l.Target)
		}

		if _, dup := targets[DirBin+"/"+l.Name]; dup {
			return invalid("launchers[%d].name %q collides with an installed binary", i, l.Name)
		}
	}

	return nil
}

// Supersedes verifies that d is a valid successor release of older.
func (d *Descriptor) Supersedes(older *Descriptor) error {
	if older == nil {
		return nil
	}

	if d.Name != older.Name {
		return fmt.Errorf("%w: %s is not a release of %s", ErrNotSuperseding, d.Name, older.Name)
	}

	if d.Version == older.Version {
		return fmt.Errorf("%w: %s repeats version %s", ErrNotSuperseding, d.Name, d.Version)
	}

	if d.SHA256 == older.SHA256 {
		return fmt.Errorf("%w: %s and %s declare the same checksum", ErrNotSuperseding, d.Ref(), older.Ref())
	}

	if ArtifactFilename(d.URL) == ArtifactFilename(older.URL) {
		return fmt.Errorf("%w: %s and %s declare the same artifact %s",
			ErrNotSuperseding, d.Ref(), older.Ref(), ArtifactFilename(d.URL))
	}

	return nil
}

func (d *Descriptor) installs(target string) bool {
	for _, rule := range d.Install {
		if rule.TargetName() == target {
			return true
		}
	}

	return false
}

// ArtifactFilename returns the last path segment of a URL.
func ArtifactFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return path.Base(rawURL)
	}

	return path.Base(u.Path)
}

// IsArchiveName reports whether a file name carries a supported archive suffix.
func IsArchiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	return false
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return invalid("%s %q must be an absolute URL", field, raw)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("%s %q must use http or https", field, raw)
	}

	return nil
}

func hasDotDot(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return true
		}
	}

	return false
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDescriptor, fmt.Sprintf(format, args...))
}
