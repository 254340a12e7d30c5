package auditor

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	domain "github.com/oshokin/formulary/internal/domain/formula"
)

// Severity ranks a finding.
type Severity int

// Severities, lowest first.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

var versionSegment = regexp.MustCompile(`^v?\d+(\.\d+)+$`)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Finding is one audit result.
type Finding struct {
	Severity Severity
	Field    string
	Message  string
}

// String formats the finding for humans.
func (f Finding) String() string {
	return fmt.Sprintf("%s: %s: %s", f.Severity, f.Field, f.Message)
}

// HasErrors reports whether any finding is an error.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}

	return false
}

// Audit lints one descriptor.
func Audit(d *domain.Descriptor) []Finding {
	var findings []Finding

	add := func(severity Severity, field, format string, args ...any) {
		findings = append(findings, Finding{
			Severity: severity,
			Field:    field,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if err := d.Validate(); err != nil {
		add(SeverityError, "descriptor", "%v", err)
	}

	if d.Description == "" {
		add(SeverityInfo, "desc", "description is empty")
	}

	if !strings.HasPrefix(d.Homepage, "https://") {
		add(SeverityWarning, "homepage", "%q should use https", d.Homepage)
	}

	if !strings.HasPrefix(d.URL, "https://") {
		add(SeverityWarning, "url", "%q should use https", d.URL)
	}

	for i, rule := range d.Install {
		if !d.Produces(rule.Source) {
			add(SeverityError, fmt.Sprintf("install[%d].source", i),
				"%q is not produced by any artifact (%s)", rule.Source, artifactNames(d))
		}
	}

	filename := domain.ArtifactFilename(d.URL)
	if d.Version != "" && !strings.Contains(filename, d.Version) {
		add(SeverityWarning, "url", "artifact %q does not mention version %s", filename, d.Version)
	}

	for _, segment := range versionSegments(d.URL) {
		if strings.TrimPrefix(segment, "v") != d.Version {
			add(SeverityWarning, "url", "path segment %q disagrees with version %s", segment, d.Version)
		}
	}

	if d.Deprecated {
		add(SeverityInfo, "deprecated", "%s is deprecated", d.Ref())
	}

	return findings
}

// AuditLineage checks that each release supersedes the previous one.
// versions must be in ascending order.
func AuditLineage(versions []*domain.Descriptor) []Finding {
	var findings []Finding

	for i := 1; i < len(versions); i++ {
		if err := versions[i].Supersedes(versions[i-1]); err != nil {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Field:    "lineage",
				Message:  err.Error(),
			})
		}
	}

	return findings
}

// versionSegments returns directory segments of the URL path that look like versions.
func versionSegments(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	var segments []string

	for _, segment := range strings.Split(path.Dir(u.Path), "/") {
		if versionSegment.MatchString(segment) {
			segments = append(segments, segment)
		}
	}

	return segments
}

func artifactNames(d *domain.Descriptor) string {
	artifacts := d.Artifacts()
	names := make([]string, 0, len(artifacts))

	for _, a := range artifacts {
		names = append(names, a.Filename())
	}

	return "artifacts: " + strings.Join(names, ", ")
}
