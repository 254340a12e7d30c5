package uninstaller

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/formulary/internal/domain/formula"
	"github.com/oshokin/formulary/internal/repository/receipt"
	"github.com/oshokin/formulary/internal/service/common"
)

func writeConfig(t *testing.T, root string) string {
	t.Helper()

	path := filepath.Join(root, "formulary.yaml")
	contents := "bin_dir: " + filepath.Join(root, "bin") + "\n" +
		"prefix: " + filepath.Join(root, "Cellar") + "\n" +
		"cache_dir: " + filepath.Join(root, "cache") + "\n" +
		"receipts_dir: " + filepath.Join(root, "receipts") + "\n" +
		"log_level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestRun_RemovesFilesAndReceipt(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	configPath := writeConfig(t, root)

	jar := filepath.Join(root, "bin", "iri-1.1.4.2.jar")
	kegFile := filepath.Join(root, "Cellar", "iri", "1.1.4.2", "README")

	for _, path := range []string{jar, kegFile} {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	}

	d := &domain.Descriptor{Name: "iri", Version: "1.1.4.2"}
	receipts := receipt.NewFileRepository(filepath.Join(root, "receipts"))
	require.NoError(t, receipts.Save(context.Background(), domain.NewReceipt(d, nil, []string{jar, kegFile})))

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath, Name: "iri@1.1.4.2"}))

	require.NoFileExists(t, jar)
	require.NoDirExists(t, filepath.Join(root, "Cellar", "iri"))
	require.DirExists(t, filepath.Join(root, "bin"))

	_, err := receipts.Load(context.Background(), "iri")
	require.ErrorIs(t, err, receipt.ErrNotFound)
}

func TestRun_NotInstalled(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t, t.TempDir())

	err := Run(context.Background(), &Options{ConfigPath: configPath, Name: "iri"})
	require.ErrorIs(t, err, common.ErrNotInstalled)

	require.Error(t, Run(context.Background(), &Options{ConfigPath: configPath}))
}
