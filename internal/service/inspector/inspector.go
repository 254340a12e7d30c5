package inspector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/oshokin/formulary/internal/config"
	domain "github.com/oshokin/formulary/internal/domain/formula"
	"github.com/oshokin/formulary/internal/logger"
	"github.com/oshokin/formulary/internal/repository/formula"
	"github.com/oshokin/formulary/internal/repository/receipt"
	"github.com/oshokin/formulary/internal/service/common"
)

var errNameRequired = errors.New("package name must be provided")

// Options are inputs accepted by Info and List.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Name selects the descriptor for Info, optionally as name@version.
	Name string
	// Available makes List show every known descriptor instead of installed packages.
	Available bool
}

// Info writes a descriptor and its install state to w.
func Info(ctx context.Context, opts *Options, w io.Writer) error {
	ctx = logger.WithName(ctx, "inspector")

	if opts == nil || opts.Name == "" {
		return errNameRequired
	}

	cfg, err := common.LoadConfig(ctx, opts.ConfigPath, opts.LogLevel)
	if err != nil {
		return err
	}

	repo := formula.NewFromConfig(cfg)

	name, version := formula.ParseRef(opts.Name)

	d, err := repo.GetVersion(name, version)
	if err != nil {
		return err
	}

	versions, err := repo.Versions(name)
	if err != nil {
		return err
	}

	installed, err := receipt.NewFileRepository(cfg.ReceiptsDir).Load(ctx, name)
	if err != nil && !errors.Is(err, receipt.ErrNotFound) {
		return fmt.Errorf("load receipt: %w", err)
	}

	_, err = io.WriteString(w, RenderDescriptor(cfg, d, versions, installed)+"\n")

	return err
}

// List writes installed packages, or every descriptor when opts.Available is set.
func List(ctx context.Context, opts *Options, w io.Writer) error {
	ctx = logger.WithName(ctx, "inspector")

	if opts == nil {
		opts = new(Options)
	}

	cfg, err := common.LoadConfig(ctx, opts.ConfigPath, opts.LogLevel)
	if err != nil {
		return err
	}

	receipts, err := receipt.NewFileRepository(cfg.ReceiptsDir).List(ctx)
	if err != nil {
		return err
	}

	var output string

	if opts.Available {
		descriptors, listErr := formula.NewFromConfig(cfg).List()
		if listErr != nil {
			return listErr
		}

		output = RenderAvailable(descriptors, receipts)
	} else {
		output = RenderInstalled(receipts)
	}

	_, err = io.WriteString(w, output+"\n")

	return err
}

// RenderDescriptor formats one descriptor with its releases and install state.
func RenderDescriptor(
	cfg *config.Config,
	d *domain.Descriptor,
	versions []*domain.Descriptor,
	installed *domain.Receipt,
) string {
	var lines []string

	status := warnStyle.Render(circle + " not installed")
	if installed != nil {
		status = okStyle.Render(fmt.Sprintf("%s installed (%s)", check, installed.Version))
	}

	lines = append(lines, titleStyle.Render(d.Ref())+"  "+status)

	if d.Description != "" {
		lines = append(lines, d.Description)
	}

	lines = append(lines, mutedStyle.Render(d.Homepage))

	if d.Deprecated {
		lines = append(lines, warnStyle.Render("deprecated"))
	}

	lines = append(lines, headingStyle.Render("Artifacts"))
	for _, a := range d.Artifacts() {
		lines = append(lines,
			indentStyle.Render(a.Name+"  "+a.URL),
			indentStyle.Render(mutedStyle.Render("sha256:"+a.SHA256)))
	}

	lines = append(lines, headingStyle.Render("Install"))
	for _, rule := range d.Install {
		dest := path.Join(rule.Destination(), rule.TargetName())
		if rule.Destination() == domain.DirPrefix && cfg != nil {
			dest = path.Join(cfg.KegDir(d.Name, d.Version), rule.TargetName())
		}

		lines = append(lines, indentStyle.Render(fmt.Sprintf("%s %s %s", rule.Source, arrow, dest)))
	}

	if len(d.Launchers) > 0 {
		lines = append(lines, headingStyle.Render("Launchers"))
		for _, l := range d.Launchers {
			lines = append(lines, indentStyle.Render(
				fmt.Sprintf("%s %s %s %s", l.Name, arrow, strings.Join(l.Command, " "), l.Target)))
		}
	}

	available := make([]string, 0, len(versions))
	for _, v := range versions {
		available = append(available, v.Version)
	}

	lines = append(lines, headingStyle.Render("Versions"), indentStyle.Render(strings.Join(available, ", ")))

	if installed != nil {
		lines = append(lines, headingStyle.Render("Installed files"))
		for _, f := range installed.Files {
			lines = append(lines, indentStyle.Render(f))
		}

		by := ""
		if installed.InstalledBy != nil {
			by = fmt.Sprintf(" by %s@%s", installed.InstalledBy.Username, installed.InstalledBy.Hostname)
		}

		lines = append(lines, mutedStyle.Render(
			fmt.Sprintf("installed %s%s", installed.InstalledAt.Format("2006-01-02 15:04:05"), by)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderInstalled formats the installed packages.
func RenderInstalled(receipts []*domain.Receipt) string {
	if len(receipts) == 0 {
		return mutedStyle.Render("No packages installed")
	}

	lines := make([]string, 0, len(receipts))
	for _, r := range receipts {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			okStyle.Render(check),
			titleStyle.Render(r.Ref()),
			mutedStyle.Render(fmt.Sprintf("(%d files, %s)", len(r.Files), r.InstalledAt.Format("2006-01-02")))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderAvailable formats every known descriptor, marking the installed ones.
func RenderAvailable(descriptors []*domain.Descriptor, receipts []*domain.Receipt) string {
	if len(descriptors) == 0 {
		return mutedStyle.Render("No descriptors available")
	}

	installed := make(map[string]string, len(receipts))
	for _, r := range receipts {
		installed[r.Name] = r.Version
	}

	lines := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		marker := mutedStyle.Render(circle)
		if installed[d.Name] == d.Version {
			marker = okStyle.Render(check)
		}

		line := fmt.Sprintf("%s %s", marker, titleStyle.Render(d.Ref()))
		if d.Description != "" {
			line += "  " + mutedStyle.Render(d.Description)
		}

		lines = append(lines, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
