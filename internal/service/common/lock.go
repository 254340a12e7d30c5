//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/oshokin/formulary/internal/config"
	"github.com/oshokin/formulary/internal/logger"
)

const (
	// MarkerFilename marks that a mutating run is in progress.
	MarkerFilename = "formulary.lock"

	// DefaultMarkerLifetime is the period after which a marker that stopped being refreshed is reclaimed.
	DefaultMarkerLifetime = 30 * time.Second
)

// ErrAlreadyRunning is returned when another run holds the marker.
var ErrAlreadyRunning = errors.New("another formulary run is in progress")

// Lock is a held marker file. It is refreshed in the background until Release.
type Lock struct {
	path string
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// AcquireLock creates the marker at path. A marker whose modification time is
// older than lifetime belongs to a dead run and is removed first.
func AcquireLock(ctx context.Context, path string, lifetime time.Duration) (*Lock, error) {
	if lifetime <= 0 {
		lifetime = DefaultMarkerLifetime
	}

	logger.Debug(ctx, "Checking for the presence of a run marker")

	if err := os.MkdirAll(filepath.Dir(path), config.DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create marker directory: %w", err)
	}

	if fileInfo, err := os.Stat(path); err == nil {
		if time.Since(fileInfo.ModTime()) <= lifetime {
			return nil, fmt.Errorf("%w: marker %s", ErrAlreadyRunning, path)
		}

		logger.Info(ctx, "The run marker is too old, reclaiming it")

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale marker: %w", err)
		}
	}

	marker, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: marker %s", ErrAlreadyRunning, path)
		}

		return nil, fmt.Errorf("create marker: %w", err)
	}

	_, err = marker.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := marker.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)

		return nil, fmt.Errorf("write marker: %w", err)
	}

	lock := &Lock{
		path: path,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go lock.refresh(lifetime / 3)

	return lock, nil
}

// Release stops refreshing and removes the marker. It is safe to call more than once.
func (l *Lock) Release() {
	if l == nil {
		return
	}

	l.once.Do(func() {
		close(l.stop)
		<-l.done

		_ = os.Remove(l.path)
	})
}

func (l *Lock) refresh(interval time.Duration) {
	defer close(l.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			_ = os.Chtimes(l.path, now, now)
		}
	}
}
