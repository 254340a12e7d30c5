package auditor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	domain "github.com/oshokin/formulary/internal/domain/formula"
	"github.com/oshokin/formulary/internal/fetch"
	"github.com/oshokin/formulary/internal/logger"
	"github.com/oshokin/formulary/internal/repository/formula"
	"github.com/oshokin/formulary/internal/service/common"
)

// ErrAuditFailed is returned when at least one error-severity finding exists.
var ErrAuditFailed = errors.New("audit failed")

// Options are inputs accepted by the auditor entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Names limits the audit; empty means every descriptor.
	Names []string
	// Online also downloads and verifies every artifact.
	Online bool
}

// Report groups findings by descriptor file.
type Report map[string][]Finding

// Files returns the report keys in sorted order.
func (r Report) Files() []string {
	return slices.Sorted(maps.Keys(r))
}

// Run audits descriptors from the configured store and logs the findings.
func Run(ctx context.Context, opts *Options) (Report, error) {
	ctx = logger.WithName(ctx, "auditor")

	if opts == nil {
		opts = new(Options)
	}

	cfg, err := common.LoadConfig(ctx, opts.ConfigPath, opts.LogLevel)
	if err != nil {
		return nil, err
	}

	var downloader *fetch.Downloader
	if opts.Online {
		downloader = fetch.NewFromConfig(cfg)
	}

	report, err := audit(ctx, formula.NewFromConfig(cfg), downloader, opts.Names)
	if err != nil {
		return nil, err
	}

	var failed []string

	for _, file := range report.Files() {
		findings := report[file]
		if HasErrors(findings) {
			failed = append(failed, file)
		}

		for _, f := range findings {
			kvs := []any{"file", file, "field", f.Field, "message", f.Message}

			switch f.Severity {
			case SeverityError:
				logger.ErrorKV(ctx, "Audit error", kvs...)
			case SeverityWarning:
				logger.WarnKV(ctx, "Audit warning", kvs...)
			default:
				logger.InfoKV(ctx, "Audit note", kvs...)
			}
		}
	}

	if len(failed) > 0 {
		return report, fmt.Errorf("%w: %s", ErrAuditFailed, strings.Join(failed, ", "))
	}

	logger.InfoKV(ctx, "Audit passed", "files", len(report))

	return report, nil
}

func audit(
	ctx context.Context,
	repo *formula.Repository,
	downloader *fetch.Downloader,
	names []string,
) (Report, error) {
	entries, err := repo.Scan()
	if err != nil {
		return nil, err
	}

	var (
		report  = make(Report, len(entries))
		lineage = make(map[string][]*domain.Descriptor)
		seen    = make(map[string]bool)
	)

	for _, entry := range entries {
		if len(names) > 0 && !slices.Contains(names, entry.Name) {
			continue
		}

		seen[entry.Name] = true

		if entry.Err != nil {
			report[entry.File] = []Finding{{Severity: SeverityError, Field: "file", Message: entry.Err.Error()}}

			continue
		}

		findings := Audit(entry.Descriptor)

		if downloader != nil {
			if _, fetchErr := downloader.FetchAll(ctx, entry.Descriptor.Artifacts()); fetchErr != nil {
				findings = append(findings, Finding{Severity: SeverityError, Field: "url", Message: fetchErr.Error()})
			}
		}

		report[entry.File] = findings
		lineage[entry.Descriptor.Name] = append(lineage[entry.Descriptor.Name], entry.Descriptor)
	}

	for _, name := range names {
		if !seen[name] {
			return nil, fmt.Errorf("%w: %s", formula.ErrNotFound, name)
		}
	}

	for name, versions := range lineage {
		slices.SortStableFunc(versions, func(a, b *domain.Descriptor) int {
			return domain.CompareVersions(a.Version, b.Version)
		})

		if findings := AuditLineage(versions); len(findings) > 0 {
			report[name+" (lineage)"] = findings
		}
	}

	return report, nil
}
