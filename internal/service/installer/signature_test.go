package installer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/formulary/internal/repository/receipt"
	"github.com/oshokin/formulary/internal/signature"
)

// writeKeyring creates a throwaway signing key and stores its armored public part in the env.
func writeKeyring(t *testing.T, e *env) (*openpgp.Entity, string) {
	t.Helper()

	entity, err := openpgp.NewEntity("formulary test", "", "test@example.com", nil)
	require.NoError(t, err)

	var pub bytes.Buffer

	w, err := armor.Encode(&pub, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	path := filepath.Join(e.root, "keyring.asc")
	require.NoError(t, os.WriteFile(path, pub.Bytes(), 0o600))

	return entity, path
}

func detachSign(t *testing.T, entity *openpgp.Entity, payload []byte) []byte {
	t.Helper()

	var sig bytes.Buffer

	require.NoError(t, openpgp.ArmoredDetachSign(&sig, entity, bytes.NewReader(payload), nil))

	return sig.Bytes()
}

func signedFormula(baseURL string, data []byte) string {
	return `name: signed
version: "1.0"
homepage: https://example.com/signed
url: ` + baseURL + `/signed-1.0.bin
sha256: ` + sum(data) + `
signature_url: ` + baseURL + `/signed-1.0.bin.asc
install:
  - source: signed-1.0.bin
`
}

func TestRun_SignatureVerified(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	entity, keyring := writeKeyring(t, e)
	e.appendConfig(t, "require_signatures: true\nkeyring: "+keyring+"\n")

	data := []byte("signed payload")
	srv := serve(t, map[string][]byte{
		"/signed-1.0.bin":     data,
		"/signed-1.0.bin.asc": detachSign(t, entity, data),
	})
	e.writeFormula(t, "signed.yaml", signedFormula(srv.URL, data))

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: e.configPath, Name: "signed"}))

	installed, err := os.ReadFile(filepath.Join(e.binDir, "signed-1.0.bin"))
	require.NoError(t, err)
	require.Equal(t, data, installed)

	r, err := receipt.NewFileRepository(filepath.Join(e.root, "receipts")).Load(context.Background(), "signed")
	require.NoError(t, err)
	require.Equal(t, "1.0", r.Version)
}

func TestRun_BadSignaturePlacesNothing(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	entity, keyring := writeKeyring(t, e)
	e.appendConfig(t, "keyring: "+keyring+"\n")

	data := []byte("signed payload")
	srv := serve(t, map[string][]byte{
		"/signed-1.0.bin":     data,
		"/signed-1.0.bin.asc": detachSign(t, entity, []byte("other payload")),
	})
	e.writeFormula(t, "signed.yaml", signedFormula(srv.URL, data))

	err := Run(context.Background(), &Options{ConfigPath: e.configPath, Name: "signed"})
	require.ErrorIs(t, err, signature.ErrBadSignature)

	require.NoDirExists(t, e.binDir)

	entries, err := os.ReadDir(filepath.Join(e.root, "receipts"))
	if !os.IsNotExist(err) {
		require.NoError(t, err)
		require.Empty(t, entries)
	}
}

// TestRun_SignatureSkippedWithoutKeyring installs without fetching the signature,
// which the server does not even serve.
func TestRun_SignatureSkippedWithoutKeyring(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	data := []byte("signed payload")
	srv := serve(t, map[string][]byte{"/signed-1.0.bin": data})
	e.writeFormula(t, "signed.yaml", signedFormula(srv.URL, data))

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: e.configPath, Name: "signed"}))
	require.FileExists(t, filepath.Join(e.binDir, "signed-1.0.bin"))
}
