//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "formulary.yaml")
	contents := "bin_dir: " + filepath.Join(dir, "bin") + "\n" +
		"prefix: " + filepath.Join(dir, "Cellar") + "\n" +
		"cache_dir: " + filepath.Join(dir, "cache") + "\n" +
		"receipts_dir: " + filepath.Join(dir, "receipts") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfig(context.Background(), path, "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "bin"), cfg.BinDir)
	require.Equal(t, filepath.Join(dir, "cache", MarkerFilename), MarkerPath(cfg))

	_, err = LoadConfig(context.Background(), path, "loud")
	require.Error(t, err)

	_, err = LoadConfig(context.Background(), filepath.Join(dir, "missing.yaml"), "")
	require.Error(t, err)
}
