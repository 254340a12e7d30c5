//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/formulary/internal/logger"
)

// ErrInUse is returned when installed files are executing and removal was not forced.
var ErrInUse = errors.New("files are in use by running processes")

// processLister is swapped in tests.
var processLister = ps.Processes

// RunningProcesses returns processes, other than this one, whose executable
// name matches the base name of one of paths.
func RunningProcesses(paths []string) ([]ps.Process, error) {
	names := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		names[filepath.Base(p)] = struct{}{}
	}

	processList, err := processLister()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	var running []ps.Process

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if _, found := names[process.Executable()]; found {
			running = append(running, process)
		}
	}

	return running, nil
}

// TerminateProcesses kills every process in the list.
func TerminateProcesses(processes []ps.Process) error {
	for _, process := range processes {
		runningProcess, err := os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return fmt.Errorf("kill %s (pid %d): %w", process.Executable(), process.Pid(), err)
		}
	}

	return nil
}

// EnsureNotRunning fails with ErrInUse when any of paths is running.
// With force the processes are killed instead.
func EnsureNotRunning(ctx context.Context, paths []string, force bool) error {
	running, err := RunningProcesses(paths)
	if err != nil {
		return err
	}

	if len(running) == 0 {
		return nil
	}

	described := make([]string, 0, len(running))
	for _, process := range running {
		described = append(described, fmt.Sprintf("%s (pid %d)", process.Executable(), process.Pid()))
	}

	sort.Strings(described)

	if !force {
		return fmt.Errorf("%w: %s", ErrInUse, strings.Join(described, ", "))
	}

	logger.WarnKV(ctx, "Terminating running processes", "processes", described)

	return TerminateProcesses(running)
}
