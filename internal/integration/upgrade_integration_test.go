package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/formulary/internal/repository/receipt"
	"github.com/oshokin/formulary/internal/service/auditor"
	"github.com/oshokin/formulary/internal/service/common"
	"github.com/oshokin/formulary/internal/service/installer"
	"github.com/oshokin/formulary/internal/service/uninstaller"
)

func toolDescriptor(baseURL, version string, body []byte) string {
	return fmt.Sprintf(`name: tool
version: "%[1]s"
desc: Example tool
homepage: https://example.com/tool
url: %[2]s/releases/%[1]s/tool-%[1]s.jar
sha256: %[3]s
install:
  - source: tool-%[1]s.jar
    dir: prefix
launchers:
  - name: tool
    command: [java, -jar]
    target: tool-%[1]s.jar
`, version, baseURL, sha256Hex(body))
}

// TestUpgrade_ReplacesOlderRelease installs a pinned older release, upgrades to the latest and
// checks that the older keg is gone while the launcher points at the new jar.
func TestUpgrade_ReplacesOlderRelease(t *testing.T) {
	t.Parallel()

	s := newSandbox(t)
	older, newer := []byte("tool 1.9"), []byte("tool 2.0")
	srv := serveArtifacts(t, map[string][]byte{
		"/releases/1.9/tool-1.9.jar": older,
		"/releases/2.0/tool-2.0.jar": newer,
	})

	s.writeFormula(t, "tool@1.9.yaml", toolDescriptor(srv.URL, "1.9", older))
	s.writeFormula(t, "tool.yaml", toolDescriptor(srv.URL, "2.0", newer))

	ctx := context.Background()

	_, err := auditor.Run(ctx, &auditor.Options{ConfigPath: s.configPath, Names: []string{"tool"}})
	require.NoError(t, err)

	require.NoError(t, installer.Run(ctx, &installer.Options{ConfigPath: s.configPath, Name: "tool@1.9"}))
	require.Equal(t, sha256Hex(older), fileSHA256(t, filepath.Join(s.prefix, "tool", "1.9", "tool-1.9.jar")))

	require.NoError(t, installer.Upgrade(ctx, &installer.Options{ConfigPath: s.configPath, Name: "tool"}))

	newJar := filepath.Join(s.prefix, "tool", "2.0", "tool-2.0.jar")
	require.Equal(t, sha256Hex(newer), fileSHA256(t, newJar))
	require.Equal(t, []string{"2.0"}, dirEntries(t, filepath.Join(s.prefix, "tool")))
	require.Equal(t, []string{"tool"}, dirEntries(t, s.binDir))

	r, err := receipt.NewFileRepository(s.receiptsDir).Load(ctx, "tool")
	require.NoError(t, err)
	require.Equal(t, "2.0", r.Version)
	require.True(t, r.Owns(newJar))

	// Already on the latest release.
	require.NoError(t, installer.Upgrade(ctx, &installer.Options{ConfigPath: s.configPath, Name: "tool"}))

	require.NoError(t, uninstaller.Run(ctx, &uninstaller.Options{ConfigPath: s.configPath, Name: "tool"}))
	require.Empty(t, dirEntries(t, s.prefix))
	require.Empty(t, dirEntries(t, s.binDir))

	err = installer.Upgrade(ctx, &installer.Options{ConfigPath: s.configPath, Name: "tool"})
	require.ErrorIs(t, err, common.ErrNotInstalled)
}

// TestInstall_RefusesDowngradeWithoutForce keeps the newer release when an older one is
// requested, and downgrades only when forced.
func TestInstall_RefusesDowngradeWithoutForce(t *testing.T) {
	t.Parallel()

	s := newSandbox(t)
	older, newer := []byte("tool 1.9"), []byte("tool 2.0")
	srv := serveArtifacts(t, map[string][]byte{
		"/releases/1.9/tool-1.9.jar": older,
		"/releases/2.0/tool-2.0.jar": newer,
	})

	s.writeFormula(t, "tool@1.9.yaml", toolDescriptor(srv.URL, "1.9", older))
	s.writeFormula(t, "tool.yaml", toolDescriptor(srv.URL, "2.0", newer))

	ctx := context.Background()
	receipts := receipt.NewFileRepository(s.receiptsDir)

	require.NoError(t, installer.Run(ctx, &installer.Options{ConfigPath: s.configPath, Name: "tool"}))
	require.NoError(t, installer.Run(ctx, &installer.Options{ConfigPath: s.configPath, Name: "tool@1.9"}))

	r, err := receipts.Load(ctx, "tool")
	require.NoError(t, err)
	require.Equal(t, "2.0", r.Version)
	require.Equal(t, []string{"2.0"}, dirEntries(t, filepath.Join(s.prefix, "tool")))
	require.Equal(t, sha256Hex(newer), fileSHA256(t, filepath.Join(s.prefix, "tool", "2.0", "tool-2.0.jar")))

	require.NoError(t, installer.Run(ctx, &installer.Options{ConfigPath: s.configPath, Name: "tool@1.9", Force: true}))

	r, err = receipts.Load(ctx, "tool")
	require.NoError(t, err)
	require.Equal(t, "1.9", r.Version)
	require.Equal(t, []string{"1.9"}, dirEntries(t, filepath.Join(s.prefix, "tool")))
}

// TestUpgrade_MismatchKeepsInstalledRelease leaves the installed release untouched when the
// newer artifact fails verification.
func TestUpgrade_MismatchKeepsInstalledRelease(t *testing.T) {
	t.Parallel()

	s := newSandbox(t)
	older := []byte("tool 1.9")
	srv := serveArtifacts(t, map[string][]byte{
		"/releases/1.9/tool-1.9.jar": older,
		"/releases/2.0/tool-2.0.jar": []byte("tampered"),
	})

	s.writeFormula(t, "tool@1.9.yaml", toolDescriptor(srv.URL, "1.9", older))
	s.writeFormula(t, "tool.yaml", toolDescriptor(srv.URL, "2.0", []byte("tool 2.0")))

	ctx := context.Background()
	require.NoError(t, installer.Run(ctx, &installer.Options{ConfigPath: s.configPath, Name: "tool", Version: "1.9"}))

	before := fileSHA256(t, filepath.Join(s.binDir, "tool"))

	err := installer.Upgrade(ctx, &installer.Options{ConfigPath: s.configPath, Name: "tool"})
	require.Error(t, err)

	require.Equal(t, before, fileSHA256(t, filepath.Join(s.binDir, "tool")))
	require.Equal(t, []string{"1.9"}, dirEntries(t, filepath.Join(s.prefix, "tool")))

	r, err := receipt.NewFileRepository(s.receiptsDir).Load(ctx, "tool")
	require.NoError(t, err)
	require.Equal(t, "1.9", r.Version)
}
