// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poremaps/poremaps-setup/internal/pkg/openmpi"
	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
)

func execute(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsExist(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"install", "check", "version-url"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestVersionURL(t *testing.T) {
	tests := []struct {
		args     []string
		expected string
	}{
		{
			args:     []string{"version-url"},
			expected: "https://download.open-mpi.org/release/open-mpi/v5.0/openmpi-5.0.9.tar.gz",
		},
		{
			args:     []string{"version-url", "5.10.0"},
			expected: "https://download.open-mpi.org/release/open-mpi/v5.10/openmpi-5.10.0.tar.gz",
		},
		{
			args:     []string{"version-url", "--release-url", "http://localhost:8080/ompi/", "4.1.6"},
			expected: "http://localhost:8080/ompi/v4.1/openmpi-4.1.6.tar.gz",
		},
		{
			args:     []string{"version-url", "--openmpi-version", "4.1.6"},
			expected: "https://download.open-mpi.org/release/open-mpi/v4.1/openmpi-4.1.6.tar.gz",
		},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected+"\n", out)
		})
	}
}

func TestVersionURLInvalid(t *testing.T) {
	_, err := execute(t, "version-url", "5.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, setuperr.ErrInvalidVersion))
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "poremaps-setup.conf")
	content := "# Mirror of the OpenMPI releases\n" +
		"openmpi_release_url = http://mirror.local/open-mpi\n" +
		"openmpi_version = 4.1.5\n"
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	out, err := execute(t, "version-url", "--config", configFile)
	require.NoError(t, err)
	assert.Equal(t, "http://mirror.local/open-mpi/v4.1/openmpi-4.1.5.tar.gz\n", out)

	// Flags set on the command line take precedence over the file
	out, err = execute(t, "version-url", "--config", configFile, "--openmpi-version", "4.1.6")
	require.NoError(t, err)
	assert.Equal(t, "http://mirror.local/open-mpi/v4.1/openmpi-4.1.6.tar.gz\n", out)

	_, err = execute(t, "version-url", "--config", filepath.Join(dir, "missing.conf"))
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	compiler, launcher := openmpi.GetToolchainPaths(filepath.Join(dir, "OpenMPI"), "5.0.9")
	require.NoError(t, os.MkdirAll(filepath.Dir(compiler), 0755))
	require.NoError(t, os.WriteFile(compiler, []byte("#!/bin/sh\n"), 0755))
	require.NoError(t, os.WriteFile(launcher, []byte("#!/bin/sh\n"), 0755))

	out, err := execute(t, "check", compiler, launcher)
	require.NoError(t, err)
	assert.Equal(t, compiler+" "+launcher+"\n", out)

	// The paths are derived from the configuration
	out, err = execute(t, "check", "--base-dir", dir, "--get-openmpi=true")
	require.NoError(t, err)
	assert.Equal(t, compiler+" "+launcher+"\n", out)

	_, err = execute(t, "check", compiler)
	assert.Error(t, err)

	_, err = execute(t, "check", compiler, filepath.Join(dir, "mpirun"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, setuperr.ErrExecutableMissing))

	require.NoError(t, os.Chmod(launcher, 0644))
	_, err = execute(t, "check", compiler, launcher)
	require.Error(t, err)
	assert.True(t, errors.Is(err, setuperr.ErrNotExecutable))
}

func TestInstallInvalidConfiguration(t *testing.T) {
	dir := t.TempDir()
	bashrc := filepath.Join(dir, ".bashrc")

	_, err := execute(t, "install", "--base-dir", dir, "--bashrc", bashrc, "--build-failure", "sometimes", "--verbose=false")
	require.Error(t, err)
	assert.NoFileExists(t, bashrc)
	assert.FileExists(t, filepath.Join(dir, "poremaps-setup.log"))
}
