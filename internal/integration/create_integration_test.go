package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/formulary/internal/service/auditor"
	"github.com/oshokin/formulary/internal/service/installer"
	"github.com/oshokin/formulary/internal/service/packager"
)

// TestCreate_ThenInstall authors a descriptor from a served artifact, audits it online and installs it.
func TestCreate_ThenInstall(t *testing.T) {
	t.Parallel()

	s := newSandbox(t)
	body := []byte("#!/bin/sh\necho hello\n")
	srv := serveArtifacts(t, map[string][]byte{"/downloads/hello-0.3.1": body})

	ctx := context.Background()

	path, err := packager.Run(ctx, &packager.Options{
		ConfigPath:  s.configPath,
		Description: "Says hello",
		Homepage:    "https://example.com/hello",
		URL:         srv.URL + "/downloads/hello-0.3.1",
		Target:      "hello",
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.formulaDir, "hello.yaml"), path)

	_, err = auditor.Run(ctx, &auditor.Options{ConfigPath: s.configPath, Online: true})
	require.NoError(t, err)

	require.NoError(t, installer.Run(ctx, &installer.Options{ConfigPath: s.configPath, Name: "hello"}))
	require.Equal(t, sha256Hex(body), fileSHA256(t, filepath.Join(s.binDir, "hello")))
}
