package signature

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/require"
)

// newSigner creates a throwaway key and returns it with its armored public keyring.
func newSigner(t *testing.T) (*openpgp.Entity, []byte) {
	t.Helper()

	entity, err := openpgp.NewEntity("formulary test", "", "test@example.com", nil)
	require.NoError(t, err)

	var pub bytes.Buffer

	w, err := armor.Encode(&pub, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	return entity, pub.Bytes()
}

func sign(t *testing.T, entity *openpgp.Entity, payload string) []byte {
	t.Helper()

	var sig bytes.Buffer

	require.NoError(t, openpgp.ArmoredDetachSign(&sig, entity, strings.NewReader(payload), nil))

	return sig.Bytes()
}

// TestVerify accepts a matching signature and rejects tampered content or foreign keys.
func TestVerify(t *testing.T) {
	t.Parallel()

	entity, keyring := newSigner(t)

	v, err := NewVerifier(keyring)
	require.NoError(t, err)

	sig := sign(t, entity, "iri jar")

	keyID, err := v.Verify(strings.NewReader("iri jar"), sig)
	require.NoError(t, err)
	require.Equal(t, entity.PrimaryKey.KeyIdString(), keyID)

	_, err = v.Verify(strings.NewReader("tampered"), sig)
	require.ErrorIs(t, err, ErrBadSignature)

	stranger, _ := newSigner(t)
	_, err = v.Verify(strings.NewReader("iri jar"), sign(t, stranger, "iri jar"))
	require.ErrorIs(t, err, ErrBadSignature)
}

// TestNewVerifier_Garbage rejects input that is not a keyring.
func TestNewVerifier_Garbage(t *testing.T) {
	t.Parallel()

	_, err := NewVerifier([]byte("not a key"))
	require.Error(t, err)
}
