package auditor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/formulary/formulae"
	domain "github.com/oshokin/formulary/internal/domain/formula"
	"github.com/oshokin/formulary/internal/repository/formula"
)

const iriChecksum = "f441ca3c8992c4ed1e2c19c6b9080d22ad72fa056ab10dec0a4b7535833f1a47"

func builtinIRI(t *testing.T) *domain.Descriptor {
	t.Helper()

	d, err := formula.New(formulae.FS).Get("iri")
	require.NoError(t, err)

	return d
}

func TestAudit_ShippedIRI(t *testing.T) {
	t.Parallel()

	findings := Audit(builtinIRI(t))
	require.False(t, HasErrors(findings))
	require.Len(t, findings, 1)
	require.Equal(t, SeverityWarning, findings[0].Severity)
	require.Equal(t, "url", findings[0].Field)
	require.Contains(t, findings[0].Message, `"1.1.4.1"`)
}

func TestAudit_DraftSourceNotProduced(t *testing.T) {
	t.Parallel()

	d := builtinIRI(t)
	d.Install = []domain.InstallRule{{Source: "iri-1.1.4.1.jar"}}
	d.Launchers = nil

	findings := Audit(d)
	require.True(t, HasErrors(findings))

	var sources []Finding

	for _, f := range findings {
		if f.Field == "install[0].source" {
			sources = append(sources, f)
		}
	}

	require.Len(t, sources, 1)
	require.Contains(t, sources[0].Message, "iri-1.1.4.2.jar")
}

func TestAudit_Warnings(t *testing.T) {
	t.Parallel()

	d := &domain.Descriptor{
		Name:       "tool",
		Version:    "2.0",
		Homepage:   "http://example.com",
		URL:        "http://example.com/releases/v1.9/tool.bin",
		SHA256:     iriChecksum,
		Install:    []domain.InstallRule{{Source: "tool.bin"}},
		Deprecated: true,
	}

	findings := Audit(d)
	require.False(t, HasErrors(findings))

	var rendered []string
	for _, f := range findings {
		rendered = append(rendered, f.String())
	}

	joined := strings.Join(rendered, "\n")
	require.Contains(t, joined, "info: desc: description is empty")
	require.Contains(t, joined, "warning: homepage:")
	require.Contains(t, joined, `warning: url: artifact "tool.bin" does not mention version 2.0`)
	require.Contains(t, joined, `warning: url: path segment "v1.9" disagrees with version 2.0`)
	require.Contains(t, joined, "info: deprecated: tool@2.0 is deprecated")
}

func TestAudit_InvalidDescriptor(t *testing.T) {
	t.Parallel()

	d := builtinIRI(t)
	d.SHA256 = "abc"

	findings := Audit(d)
	require.True(t, HasErrors(findings))
	require.Equal(t, "descriptor", findings[0].Field)
}

func TestAuditLineage(t *testing.T) {
	t.Parallel()

	newer := builtinIRI(t)

	older := *newer
	older.Version = "1.1.4.1"
	older.URL = "https://github.com/iotaledger/iri/releases/download/1.1.4.1/iri-1.1.4.1.jar"
	older.SHA256 = strings.Repeat("0", 64)

	require.Empty(t, AuditLineage([]*domain.Descriptor{&older, newer}))

	sameChecksum := older
	sameChecksum.SHA256 = newer.SHA256

	findings := AuditLineage([]*domain.Descriptor{&sameChecksum, newer})
	require.Len(t, findings, 1)
	require.Equal(t, "lineage", findings[0].Field)
	require.Equal(t, "error", findings[0].Severity.String())
}

func writeConfig(t *testing.T, root, formulaDir string) string {
	t.Helper()

	path := filepath.Join(root, "formulary.yaml")
	contents := "bin_dir: " + filepath.Join(root, "bin") + "\n" +
		"prefix: " + filepath.Join(root, "Cellar") + "\n" +
		"cache_dir: " + filepath.Join(root, "cache") + "\n" +
		"receipts_dir: " + filepath.Join(root, "receipts") + "\n" +
		"formula_dir: " + formulaDir + "\n" +
		"log_level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestRun_Builtin(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	report, err := Run(context.Background(), &Options{ConfigPath: writeConfig(t, root, "")})
	require.NoError(t, err)
	require.Contains(t, report, "iri.yaml")

	_, err = Run(context.Background(), &Options{ConfigPath: writeConfig(t, root, ""), Names: []string{"nope"}})
	require.ErrorIs(t, err, formula.ErrNotFound)
}

func TestRun_FailsOnErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	formulaDir := filepath.Join(root, "formulae")
	require.NoError(t, os.MkdirAll(formulaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(formulaDir, "broken.yaml"), []byte("name: broken\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(formulaDir, "alpha.yaml"), []byte("name: alpha\n"), 0o600))

	report, err := Run(context.Background(), &Options{ConfigPath: writeConfig(t, root, formulaDir)})
	require.ErrorIs(t, err, ErrAuditFailed)
	require.ErrorContains(t, err, "alpha.yaml, broken.yaml")
	require.Equal(t, []string{"alpha.yaml", "broken.yaml"}, report.Files())
	require.True(t, HasErrors(report["broken.yaml"]))
}

func TestRun_Online(t *testing.T) {
	t.Parallel()

	payload := []byte("served bytes")
	sum := sha256.Sum256(payload)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	root := t.TempDir()
	formulaDir := filepath.Join(root, "formulae")
	require.NoError(t, os.MkdirAll(formulaDir, 0o755))

	descriptor := func(name, checksum string) string {
		return "name: " + name + "\nversion: \"1.0\"\ndesc: test\nhomepage: https://example.com\n" +
			"url: " + srv.URL + "/" + name + "-1.0.bin\nsha256: " + checksum + "\n" +
			"install:\n  - source: " + name + "-1.0.bin\n"
	}

	require.NoError(t, os.WriteFile(filepath.Join(formulaDir, "good.yaml"),
		[]byte(descriptor("good", hex.EncodeToString(sum[:]))), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(formulaDir, "bad.yaml"),
		[]byte(descriptor("bad", strings.Repeat("0", 64))), 0o600))

	configPath := writeConfig(t, root, formulaDir)

	_, err := Run(context.Background(), &Options{ConfigPath: configPath, Names: []string{"good"}, Online: true})
	require.NoError(t, err)

	report, err := Run(context.Background(), &Options{ConfigPath: configPath, Names: []string{"bad"}, Online: true})
	require.ErrorIs(t, err, ErrAuditFailed)
	require.True(t, HasErrors(report["bad.yaml"]))
}
