// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package poremaps

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
)

const testMakefile = "CLINKER=mpicxx\n\nall:\n\t@echo $(CLINKER) > linker.txt\n"

func requireTools(t *testing.T) {
	for _, bin := range []string{"git", "make"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s is not available, skipping test", bin)
		}
	}
}

func git(t *testing.T, dir string, args ...string) {
	args = append([]string{"-c", "user.name=poremaps", "-c", "user.email=poremaps@example.org"}, args...)
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", args, out)
}

// createRepo creates a Git repository that looks like poremaps and returns its URL
func createRepo(t *testing.T, makefileContent string) string {
	repo := filepath.Join(t.TempDir(), "poremaps.git")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "src", "makefile"), []byte(makefileContent), 0644))
	git(t, repo, "init", "-q")
	git(t, repo, "add", ".")
	git(t, repo, "commit", "-q", "-m", "initial import")
	return "file://" + repo
}

func createToolchain(t *testing.T) (string, string) {
	dir := t.TempDir()
	compiler := filepath.Join(dir, "mpiCC")
	launcher := filepath.Join(dir, "mpirun")
	require.NoError(t, os.WriteFile(compiler, []byte("#!/bin/sh\n"), 0755))
	require.NoError(t, os.WriteFile(launcher, []byte("#!/bin/sh\n"), 0755))
	return compiler, launcher
}

func TestBuild(t *testing.T) {
	requireTools(t)

	compiler, launcher := createToolchain(t)
	req := Request{
		Compiler:  compiler,
		Launcher:  launcher,
		TargetDir: filepath.Join(t.TempDir(), "poremaps_Krach2025"),
		RepoURL:   createRepo(t, testMakefile),
		LinkerVar: "CLINKER",
	}

	report, err := Build(context.Background(), &req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(req.TargetDir, "poremaps", "src"), report.SrcDir)
	assert.Equal(t, []string{"CLINKER"}, report.Makefile.Set)
	require.NoError(t, report.Build.Err)

	data, err := os.ReadFile(filepath.Join(report.SrcDir, "linker.txt"))
	require.NoError(t, err)
	assert.Equal(t, compiler+"\n", string(data))

	// A second run updates the existing checkout instead of cloning it again
	report, err = Build(context.Background(), &req)
	require.NoError(t, err)
	assert.Contains(t, report.Checkout.Cmd, "pull")
}

func TestBuildMakeFailureIsReported(t *testing.T) {
	requireTools(t)

	compiler, launcher := createToolchain(t)
	req := Request{
		Compiler:  compiler,
		Launcher:  launcher,
		TargetDir: t.TempDir(),
		RepoURL:   createRepo(t, "CLINKER=mpicxx\n\nall:\n\t@exit 2\n"),
		LinkerVar: "CLINKER",
	}

	report, err := Build(context.Background(), &req)
	require.NoError(t, err)
	assert.True(t, report.Build.Failed())
}

func TestBuildMissingLinkerVariable(t *testing.T) {
	requireTools(t)

	compiler, launcher := createToolchain(t)
	content := "CC=mpicc\n\nall:\n\t@true\n"
	req := Request{
		Compiler:  compiler,
		Launcher:  launcher,
		TargetDir: t.TempDir(),
		RepoURL:   createRepo(t, content),
		LinkerVar: "CLINKER",
	}

	report, err := Build(context.Background(), &req)
	require.NoError(t, err)
	assert.Equal(t, []string{"CLINKER"}, report.Makefile.Missing)

	data, err := os.ReadFile(filepath.Join(report.SrcDir, "makefile"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestBuildInvalidToolchain(t *testing.T) {
	compiler, launcher := createToolchain(t)
	require.NoError(t, os.Chmod(launcher, 0644))
	target := filepath.Join(t.TempDir(), "poremaps")

	tests := []struct {
		name     string
		compiler string
		launcher string
		expected error
	}{
		{name: "missing compiler", compiler: filepath.Join(target, "mpiCC"), launcher: launcher, expected: setuperr.ErrExecutableMissing},
		{name: "launcher not executable", compiler: compiler, launcher: launcher, expected: setuperr.ErrNotExecutable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Compiler: tt.compiler, Launcher: tt.launcher, TargetDir: target, RepoURL: "https://example.org/poremaps.git", LinkerVar: "CLINKER"}
			_, err := Build(context.Background(), &req)
			assert.True(t, errors.Is(err, tt.expected), "unexpected error: %v", err)
			assert.NoDirExists(t, target)
		})
	}
}

func TestBuildCloneFailure(t *testing.T) {
	requireTools(t)

	compiler, launcher := createToolchain(t)
	req := Request{
		Compiler:  compiler,
		Launcher:  launcher,
		TargetDir: t.TempDir(),
		RepoURL:   "file://" + filepath.Join(t.TempDir(), "missing.git"),
		LinkerVar: "CLINKER",
	}

	_, err := Build(context.Background(), &req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, setuperr.ErrClone))
}
