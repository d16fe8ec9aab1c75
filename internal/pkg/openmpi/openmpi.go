// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

/*
 * openmpi is a package that provides the OpenMPI toolchain used to compile poremaps, either
 * built from a release tarball or the one installed on the system.
 */
package openmpi

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"

	"github.com/poremaps/poremaps-setup/internal/pkg/autotools"
	"github.com/poremaps/poremaps-setup/internal/pkg/buildenv"
	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
	"github.com/poremaps/poremaps-setup/internal/pkg/shexec"
	"github.com/poremaps/poremaps-setup/internal/pkg/sys"
)

const (
	// ID is the identifier of the OpenMPI implementation
	ID = "openmpi"

	// CompilerName is the name of the C++ compiler wrapper
	CompilerName = "mpiCC"

	// LauncherName is the name of the launcher
	LauncherName = "mpirun"

	configLog  = "ompi_config.log"
	buildLog   = "ompi_build.log"
	installLog = "ompi_install.log"
)

// Toolchain is the compiler/launcher pair used to compile and run poremaps
type Toolchain struct {
	// Compiler is the path to mpiCC
	Compiler string

	// Launcher is the path to mpirun
	Launcher string

	// Version is the requested version of OpenMPI. It is a label only when
	// the toolchain comes from the system.
	Version string

	// FromSource specifies whether the toolchain was built from a release tarball
	FromSource bool

	// InstallDir is the prefix the toolchain was installed in, empty for the system's toolchain
	InstallDir string

	// Steps are the results of the configure, build and install commands
	Steps []shexec.Result
}

// SystemToolchain returns the toolchain installed on the system
func SystemToolchain(version string) Toolchain {
	return Toolchain{
		Compiler: sys.DefaultMPICompiler,
		Launcher: sys.DefaultMPIRun,
		Version:  version,
	}
}

// ParseVersion checks that a version is of the form X.Y.Z
func ParseVersion(version string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(version)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%q is not of the form X.Y.Z", version), setuperr.ErrInvalidVersion)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return nil, errors.Mark(errors.Newf("%q is not of the form X.Y.Z", version), setuperr.ErrInvalidVersion)
	}
	return v, nil
}

// GetURL returns the URL of the release tarball of a version of OpenMPI,
// e.g., <baseURL>/v5.0/openmpi-5.0.9.tar.gz
func GetURL(baseURL string, version string) (string, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return "", err
	}
	if baseURL == "" {
		baseURL = sys.DefaultReleaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return fmt.Sprintf("%s/v%d.%d/openmpi-%s.tar.gz", baseURL, v.Major(), v.Minor(), version), nil
}

// GetSrcDir returns the directory of the OpenMPI sources once extracted in srcDir
func GetSrcDir(srcDir string, version string) string {
	return filepath.Join(srcDir, ID+"-"+version)
}

// GetInstallDir returns the directory where OpenMPI is built and installed
func GetInstallDir(srcDir string, version string) string {
	return filepath.Join(GetSrcDir(srcDir, version), "build")
}

// GetToolchainPaths returns the path to the compiler and launcher of a source build
func GetToolchainPaths(srcDir string, version string) (string, string) {
	binDir := filepath.Join(GetInstallDir(srcDir, version), "bin")
	return filepath.Join(binDir, CompilerName), filepath.Join(binDir, LauncherName)
}

// Configure runs configure from the build directory with the install directory as prefix
func Configure(ctx context.Context, env *buildenv.Info, extraArgs []string) shexec.Result {
	var ac autotools.Config

	ac.Install = env.InstallDir
	ac.Source = env.SrcDir
	ac.Build = env.InstallDir
	ac.ExtraConfigureArgs = extraArgs
	ac.Verbose = env.Verbose
	ac.LogFile = filepath.Join(env.InstallDir, configLog)

	res := autotools.Configure(ctx, &ac)
	if res.Err != nil {
		res.Err = errors.Wrap(res.Err, "unable to run configure")
	}
	return res
}
