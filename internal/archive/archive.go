// Package archive unpacks downloaded artifacts into a staging directory.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"go.trai.ch/zerr"

	"github.com/oshokin/formulary/internal/domain/formula"
)

// ErrUnsafePath is returned for archive entries that would land outside the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination")

const (
	dirMode  os.FileMode = 0o755
	fileMode os.FileMode = 0o644
)

// IsArchive reports whether name is unpacked by Extract rather than copied.
func IsArchive(name string) bool {
	return formula.IsArchiveName(name)
}

// Extract unpacks src into dest. name decides the format; a file that is
// not a known archive is copied to dest under name.
func Extract(src, dest, name string) error {
	if err := os.MkdirAll(dest, dirMode); err != nil {
		return zerr.Wrap(err, "failed to create staging directory")
	}

	lower := strings.ToLower(name)

	var err error

	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		err = withFile(src, func(f *os.File) error {
			zr, gzErr := gzip.NewReader(f)
			if gzErr != nil {
				return gzErr
			}

			defer func() {
				_ = zr.Close()
			}()

			return untar(zr, dest)
		})
	case strings.HasSuffix(lower, ".tar.zst"):
		err = withFile(src, func(f *os.File) error {
			zr, zstErr := zstd.NewReader(f)
			if zstErr != nil {
				return zstErr
			}

			defer zr.Close()

			return untar(zr, dest)
		})
	case strings.HasSuffix(lower, ".tar.xz"):
		err = withFile(src, func(f *os.File) error {
			xr, xzErr := xz.NewReader(f)
			if xzErr != nil {
				return xzErr
			}

			return untar(xr, dest)
		})
	case strings.HasSuffix(lower, ".zip"):
		err = unzip(src, dest)
	default:
		err = copyFile(src, filepath.Join(dest, filepath.Base(name)), fileMode)
	}

	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to extract artifact"), "artifact", name)
	}

	return nil
}

func withFile(path string, fn func(f *os.File) error) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}

	defer func() {
		_ = f.Close()
	}()

	return fn(f)
}

func untar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, dirMode); err != nil {
				return err
			}
		case tar.TypeReg:
			if err = writeFile(target, tr, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			// Links and devices are not installable sources.
		}
	}
}

func unzip(src, dest string) error {
	zr, err := zip.OpenReader(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = zr.Close()
	}()

	for _, entry := range zr.File {
		target, err := safeJoin(dest, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err = os.MkdirAll(target, dirMode); err != nil {
				return err
			}

			continue
		}

		if !entry.Mode().IsRegular() {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return err
		}

		err = writeFile(target, rc, entry.Mode().Perm())
		_ = rc.Close()

		if err != nil {
			return err
		}
	}

	return nil
}

func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))

	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	return target, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = fileMode
	}

	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return err
	}

	out, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, r); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}

func copyFile(src, target string, mode os.FileMode) error {
	return withFile(src, func(f *os.File) error {
		return writeFile(target, f, mode)
	})
}
