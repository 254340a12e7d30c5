// Package checksum computes and verifies SHA-256 digests of artifacts.
package checksum

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	// Registers SHA-256 for go-digest and crypto.SHA256.Available.
	_ "crypto/sha256"
)

// Hash is the algorithm descriptors declare checksums in.
const Hash = crypto.SHA256

var (
	// ErrMismatch is returned when content does not hash to the declared value.
	ErrMismatch = errors.New("checksum mismatch")
	// ErrMalformed is returned for a declared value that is not a SHA-256 hex string.
	ErrMalformed = errors.New("malformed sha256 checksum")
)

// MismatchError carries both digests of a failed verification.
type MismatchError struct {
	Expected digest.Digest
	Actual   digest.Digest
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", ErrMismatch, e.Expected.Encoded(), e.Actual.Encoded())
}

// Unwrap lets errors.Is match ErrMismatch.
func (e *MismatchError) Unwrap() error {
	return ErrMismatch
}

// Parse turns a declared hex checksum into a SHA-256 digest.
func Parse(hexValue string) (digest.Digest, error) {
	d := digest.NewDigestFromEncoded(digest.SHA256, hexValue)
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrMalformed, hexValue, err)
	}

	return d, nil
}

// Reader hashes everything read from r.
func Reader(r io.Reader) (digest.Digest, error) {
	d, err := digest.SHA256.FromReader(r)
	if err != nil {
		return "", fmt.Errorf("calculate checksum: %w", err)
	}

	return d, nil
}

// File hashes the file at path.
func File(path string) (digest.Digest, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	return Reader(f)
}

// Verify reads r to the end and compares its digest with the expected hex checksum.
func Verify(r io.Reader, expected string) error {
	want, err := Parse(expected)
	if err != nil {
		return err
	}

	verifier := want.Verifier()
	tee := io.TeeReader(r, verifier)

	got, err := Reader(tee)
	if err != nil {
		return err
	}

	if !verifier.Verified() {
		return &MismatchError{Expected: want, Actual: got}
	}

	return nil
}

// VerifyFile checks the file at path against the expected hex checksum.
func VerifyFile(path string, expected string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}

	defer func() {
		_ = f.Close()
	}()

	return Verify(f, expected)
}

// Compare checks an already computed digest against the expected hex checksum.
func Compare(actual digest.Digest, expected string) error {
	want, err := Parse(expected)
	if err != nil {
		return err
	}

	if actual != want {
		return &MismatchError{Expected: want, Actual: actual}
	}

	return nil
}

// Bytes returns the raw checksum bytes of a declared hex value.
func Bytes(expected string) ([]byte, error) {
	d, err := Parse(expected)
	if err != nil {
		return nil, err
	}

	return hex.DecodeString(d.Encoded())
}
