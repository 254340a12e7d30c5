package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/formulary/internal/checksum"
	"github.com/oshokin/formulary/internal/config"
	domain "github.com/oshokin/formulary/internal/domain/formula"
	"github.com/oshokin/formulary/internal/logger"
)

// DefaultFileMode is applied to every placed file.
const DefaultFileMode os.FileMode = 0o755

// placement is one file written by a transaction.
type placement struct {
	// path is the installed file.
	path string
	// backup holds the previous contents until commit.
	backup string
	// created is true when nothing existed at path before the run.
	created bool
}

// transaction tracks placed files so a failed run can restore the previous state.
type transaction struct {
	placed []placement
}

func newTransaction() *transaction {
	return &transaction{}
}

// placeFile applies src to dest. A non-empty sha256 is re-checked by go-update before the swap.
func (tx *transaction) placeFile(ctx context.Context, src, dest, sha256 string) error {
	f, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	var sum []byte

	if sha256 != "" {
		if sum, err = checksum.Bytes(sha256); err != nil {
			return err
		}
	}

	return tx.apply(ctx, f, dest, sum)
}

// placeBytes applies generated content such as a launcher script.
func (tx *transaction) placeBytes(ctx context.Context, data []byte, dest string) error {
	return tx.apply(ctx, bytes.NewReader(data), dest, nil)
}

func (tx *transaction) apply(ctx context.Context, r io.Reader, dest string, sum []byte) error {
	logger.DebugKV(ctx, "Applying file", "path", dest)

	if err := os.MkdirAll(filepath.Dir(dest), config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}

	created := false

	// go-update swaps an existing target, so a placeholder is created for new files.
	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		placeholder, createErr := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, DefaultFileMode)
		if createErr != nil {
			return fmt.Errorf("create %s: %w", dest, createErr)
		}

		_ = placeholder.Close()
		created = true
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", dest, err)
	}

	p := placement{
		path:    dest,
		backup:  filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".formulary-old"),
		created: created,
	}

	err := goupdate.Apply(r, goupdate.Options{
		TargetPath:  dest,
		TargetMode:  DefaultFileMode,
		Checksum:    sum,
		Hash:        checksum.Hash,
		OldSavePath: p.backup,
	})
	if err != nil {
		tx.restore(ctx, p)

		return fmt.Errorf("apply %s: %w", dest, err)
	}

	tx.placed = append(tx.placed, p)

	return nil
}

// rollback restores every placed file in reverse order.
func (tx *transaction) rollback(ctx context.Context) {
	logger.WarnKV(ctx, "Rolling back placed files", "count", len(tx.placed))

	for i := len(tx.placed) - 1; i >= 0; i-- {
		tx.restore(ctx, tx.placed[i])
	}

	tx.placed = nil
}

// commit drops the backups of replaced files.
func (tx *transaction) commit(ctx context.Context) {
	for _, p := range tx.placed {
		if err := os.Remove(p.backup); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove backup", "path", p.backup, "error", err)
		}
	}

	tx.placed = nil
}

func (tx *transaction) restore(ctx context.Context, p placement) {
	if p.created {
		_ = os.Remove(p.path)
		_ = os.Remove(p.backup)

		return
	}

	if _, err := os.Stat(p.backup); err != nil {
		return
	}

	if err := os.Rename(p.backup, p.path); err != nil {
		logger.ErrorKV(ctx, "Unable to restore file", "path", p.path, "backup", p.backup, "error", err)
	}
}

// launcherScript renders a POSIX shell wrapper that runs the launcher command against target.
func launcherScript(l domain.Launcher, target string) []byte {
	var b strings.Builder

	b.WriteString("#!/bin/sh\nexec")

	for _, arg := range l.Command {
		b.WriteString(" " + shellQuote(arg))
	}

	b.WriteString(" " + shellQuote(target) + " \"$@\"\n")

	return []byte(b.String())
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
