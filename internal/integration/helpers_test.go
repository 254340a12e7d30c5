package integration

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/formulary/formulae"
)

// sandbox is one isolated formulary installation.
type sandbox struct {
	root        string
	configPath  string
	formulaDir  string
	binDir      string
	prefix      string
	cacheDir    string
	receiptsDir string
}

func newSandbox(t *testing.T) *sandbox {
	t.Helper()

	root := t.TempDir()
	s := &sandbox{
		root:        root,
		configPath:  filepath.Join(root, "formulary.yaml"),
		formulaDir:  filepath.Join(root, "formulae"),
		binDir:      filepath.Join(root, "bin"),
		prefix:      filepath.Join(root, "Cellar"),
		cacheDir:    filepath.Join(root, "cache"),
		receiptsDir: filepath.Join(root, "receipts"),
	}

	require.NoError(t, os.MkdirAll(s.formulaDir, 0o755))

	contents := "bin_dir: " + s.binDir + "\n" +
		"prefix: " + s.prefix + "\n" +
		"cache_dir: " + s.cacheDir + "\n" +
		"receipts_dir: " + s.receiptsDir + "\n" +
		"formula_dir: " + s.formulaDir + "\n" +
		"parallelism: 2\n" +
		"timeout: 30s\n" +
		"log_level: error\n"
	require.NoError(t, os.WriteFile(s.configPath, []byte(contents), 0o600))

	return s
}

func (s *sandbox) writeFormula(t *testing.T, fileName, contents string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(s.formulaDir, fileName), []byte(contents), 0o600))
}

// shippedIRI returns the built-in iri descriptor with its URL host moved to baseURL.
func shippedIRI(t *testing.T, baseURL string) string {
	t.Helper()

	data, err := formulae.FS.ReadFile("iri.yaml")
	require.NoError(t, err)

	return strings.ReplaceAll(string(data), "https://github.com/iotaledger/iri/releases", baseURL+"/iotaledger/iri/releases")
}

// artifactServer serves fixed bodies by path and counts requests.
type artifactServer struct {
	*httptest.Server
	requests atomic.Int64
}

func serveArtifacts(t *testing.T, files map[string][]byte) *artifactServer {
	t.Helper()

	srv := new(artifactServer)
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.requests.Add(1)

		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write(body)
	}))

	t.Cleanup(srv.Close)

	return srv
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

func fileSHA256(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return sha256Hex(data)
}

// dirEntries lists names in dir, treating a missing directory as empty.
func dirEntries(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}

	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}
