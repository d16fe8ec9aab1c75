// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package provisioner

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poremaps/poremaps-setup/internal/pkg/manifest"
	"github.com/poremaps/poremaps-setup/internal/pkg/openmpi"
	"github.com/poremaps/poremaps-setup/internal/pkg/poremaps"
	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
	"github.com/poremaps/poremaps-setup/internal/pkg/shexec"
	"github.com/poremaps/poremaps-setup/internal/pkg/sys"
)

// fakeBuild records the requests it gets instead of compiling poremaps
type fakeBuild struct {
	requests []poremaps.Request
	report   poremaps.Report
	err      error
}

func (f *fakeBuild) build(ctx context.Context, req *poremaps.Request) (poremaps.Report, error) {
	f.requests = append(f.requests, *req)
	return f.report, f.err
}

func newConfig(t *testing.T) *sys.Config {
	base := t.TempDir()
	cfg := sys.Default(base)
	cfg.Bashrc = filepath.Join(base, ".bashrc")
	cfg.Verbose = false
	return &cfg
}

func readLines(t *testing.T, path string) string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunSystemToolchain(t *testing.T) {
	cfg := newConfig(t)
	cfg.GetOpenMPI = false
	fb := fakeBuild{}
	p := Provisioner{Cfg: cfg, Out: io.Discard, Build: fb.build}

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, fb.requests, 1)
	req := fb.requests[0]
	assert.Equal(t, "/usr/bin/mpiCC", req.Compiler)
	assert.Equal(t, "/usr/bin/mpirun", req.Launcher)
	assert.Equal(t, cfg.PoremapsSrcDir(), req.TargetDir)
	assert.Equal(t, sys.DefaultPoremapsGitURL, req.RepoURL)
	assert.Equal(t, "CLINKER", req.LinkerVar)

	assert.Equal(t, "source /poremaps/venv/poremaps/bin/activate\n", readLines(t, cfg.Bashrc))
	assert.Equal(t, []string{"source /poremaps/venv/poremaps/bin/activate"}, report.EnvLines)
	assert.DirExists(t, cfg.OpenMPISrcDir())
	assert.DirExists(t, cfg.PoremapsSrcDir())
}

func TestRunFallbackToSystem(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := newConfig(t)
	cfg.ReleaseURL = srv.URL
	fb := fakeBuild{}
	p := Provisioner{Cfg: cfg, Out: io.Discard, Build: fb.build}

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Toolchain.FromSource)
	assert.Equal(t, "5.0.9", report.Toolchain.Version)
	require.Len(t, fb.requests, 1)
	assert.Equal(t, sys.DefaultMPICompiler, fb.requests[0].Compiler)

	// The source build was requested but did not happen: only the activation line
	assert.Equal(t, "source /poremaps/venv/poremaps/bin/activate\n", readLines(t, cfg.Bashrc))
}

func TestRunSourceToolchain(t *testing.T) {
	cfg := newConfig(t)
	compiler, launcher := openmpi.GetToolchainPaths(cfg.OpenMPISrcDir(), cfg.OpenMPIVersion)
	acquire := func(ctx context.Context, req *openmpi.Request) (openmpi.Toolchain, error) {
		assert.True(t, req.SourceBuild)
		assert.Equal(t, 4, req.MakeJobs)
		return openmpi.Toolchain{Compiler: compiler, Launcher: launcher, Version: req.Version, FromSource: true}, nil
	}
	fb := fakeBuild{}
	p := Provisioner{Cfg: cfg, Out: io.Discard, Acquire: acquire, Build: fb.build}

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, fb.requests, 1)
	assert.Equal(t, compiler, fb.requests[0].Compiler)
	assert.Len(t, report.EnvLines, 3)

	installDir := openmpi.GetInstallDir(cfg.OpenMPISrcDir(), "5.0.9")
	expected := "source /poremaps/venv/poremaps/bin/activate\n" +
		"export PATH=" + installDir + "/bin:$PATH\n" +
		"export LD_LIBRARY_PATH=" + installDir + "/lib:$LD_LIBRARY_PATH\n"
	assert.Equal(t, expected, readLines(t, cfg.Bashrc))
}

func TestRunBuildFailurePolicy(t *testing.T) {
	failed := shexec.Result{Cmd: "make -j4", ExitCode: 2, Err: errors.Mark(errors.New("exit status 2"), setuperr.ErrCommand)}
	acquire := func(ctx context.Context, req *openmpi.Request) (openmpi.Toolchain, error) {
		tc := openmpi.SystemToolchain(req.Version)
		tc.Steps = []shexec.Result{failed}
		return tc, nil
	}

	tests := []struct {
		policy      string
		expectError bool
	}{
		{policy: sys.PolicyIgnore, expectError: false},
		{policy: sys.PolicyFatal, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			cfg := newConfig(t)
			cfg.BuildFailure = tt.policy
			fb := fakeBuild{report: poremaps.Report{Build: failed}}
			p := Provisioner{Cfg: cfg, Out: io.Discard, Acquire: acquire, Build: fb.build}

			report, err := p.Run(context.Background())
			if tt.expectError {
				require.Error(t, err)
				assert.Empty(t, fb.requests)
				assert.NoFileExists(t, cfg.Bashrc)
				return
			}
			require.NoError(t, err)
			warnings := strings.Join(report.Warnings, "\n")
			assert.Contains(t, warnings, "OpenMPI build failed")
			assert.Contains(t, warnings, "failed to compile poremaps")
			assert.FileExists(t, cfg.Bashrc)
		})
	}
}

func TestRunInvalidToolchain(t *testing.T) {
	cfg := newConfig(t)
	missing := filepath.Join(cfg.BaseDir, "bin", "mpiCC")
	acquire := func(ctx context.Context, req *openmpi.Request) (openmpi.Toolchain, error) {
		return openmpi.Toolchain{Compiler: missing, Launcher: missing, Version: req.Version, FromSource: true}, nil
	}
	p := Provisioner{Cfg: cfg, Out: io.Discard, Acquire: acquire}

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, setuperr.ErrExecutableMissing))
	assert.NoFileExists(t, cfg.Bashrc)
}

func TestRunBashrcFailureIsWarning(t *testing.T) {
	cfg := newConfig(t)
	cfg.GetOpenMPI = false
	cfg.Bashrc = filepath.Join(cfg.BaseDir, "missing", ".bashrc")
	fb := fakeBuild{}
	p := Provisioner{Cfg: cfg, Out: io.Discard, Build: fb.build}

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[len(report.Warnings)-1], cfg.Bashrc)
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := newConfig(t)
	cfg.BuildFailure = "sometimes"
	p := Provisioner{Cfg: cfg, Out: io.Discard}
	_, err := p.Run(context.Background())
	assert.Error(t, err)
}

func TestCheckToolchain(t *testing.T) {
	dir := t.TempDir()
	compiler, launcher := openmpi.GetToolchainPaths(dir, "5.0.9")
	require.NoError(t, os.MkdirAll(filepath.Dir(compiler), 0755))
	require.NoError(t, os.WriteFile(compiler, []byte("mpiCC"), 0755))
	require.NoError(t, os.WriteFile(launcher, []byte("mpirun"), 0755))

	// No manifest yet
	assert.NoError(t, CheckToolchain(compiler, launcher))

	manifestPath := filepath.Join(openmpi.GetInstallDir(dir, "5.0.9"), manifest.FileName)
	require.NoError(t, manifest.Create(manifestPath, manifest.HashFiles([]string{compiler, launcher})))
	assert.NoError(t, CheckToolchain(compiler, launcher))

	require.NoError(t, os.WriteFile(launcher, []byte("something else"), 0755))
	assert.Error(t, CheckToolchain(compiler, launcher))

	require.NoError(t, os.Chmod(launcher, 0644))
	assert.True(t, errors.Is(CheckToolchain(compiler, launcher), setuperr.ErrNotExecutable))
}
