// Package signature checks OpenPGP detached signatures of artifacts.
package signature

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
)

var (
	// ErrBadSignature is returned when a signature does not match the artifact or keyring.
	ErrBadSignature = errors.New("signature verification failed")
	// ErrEmptyKeyring is returned when the keyring holds no usable keys.
	ErrEmptyKeyring = errors.New("keyring has no keys")
)

// Verifier checks detached signatures against a fixed keyring.
type Verifier struct {
	keyring openpgp.EntityList
}

// LoadKeyring reads an ASCII-armored public keyring from path.
func LoadKeyring(path string) (*Verifier, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}

	return NewVerifier(data)
}

// NewVerifier parses an ASCII-armored public keyring.
func NewVerifier(armoredKeyring []byte) (*Verifier, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armoredKeyring))
	if err != nil {
		return nil, fmt.Errorf("parse keyring: %w", err)
	}

	if len(keyring) == 0 {
		return nil, ErrEmptyKeyring
	}

	return &Verifier{keyring: keyring}, nil
}

// Verify checks an armored detached signature over signed and returns the signer's primary key ID.
func (v *Verifier) Verify(signed io.Reader, armoredSignature []byte) (string, error) {
	signer, err := openpgp.CheckArmoredDetachedSignature(v.keyring, signed, bytes.NewReader(armoredSignature), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	return signer.PrimaryKey.KeyIdString(), nil
}

// VerifyFile checks the signature over the file at path.
func (v *Verifier) VerifyFile(path string, armoredSignature []byte) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	return v.Verify(f, armoredSignature)
}
