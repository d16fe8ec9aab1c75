// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package openmpi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/gvallee/go_util/pkg/util"
	log "github.com/sirupsen/logrus"

	"github.com/poremaps/poremaps-setup/internal/pkg/buildenv"
	"github.com/poremaps/poremaps-setup/internal/pkg/manifest"
	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
	"github.com/poremaps/poremaps-setup/internal/pkg/sys"
)

// Request describes how the toolchain must be acquired
type Request struct {
	// SourceBuild specifies whether OpenMPI is built from source
	SourceBuild bool

	// SrcDir is the directory where the tarball is extracted
	SrcDir string

	// Version is the version of OpenMPI, X.Y.Z
	Version string

	// ReleaseURL is the base URL of the release tarballs
	ReleaseURL string

	// MakeJobs is the number of parallel jobs used to compile OpenMPI
	MakeJobs int

	// Verbose makes the output of the build commands appear on the terminal
	Verbose bool

	// FallbackOn lists the failures that make us use the system's OpenMPI
	FallbackOn []setuperr.Kind

	// Client is the HTTP client used for the download
	Client *http.Client

	// Out is where progress messages are displayed, os.Stdout when nil
	Out io.Writer
}

func (r *Request) fallsBackOn(k setuperr.Kind) bool {
	for _, f := range r.FallbackOn {
		if f == k {
			return true
		}
	}
	return false
}

func (r *Request) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

func systemWarning(w io.Writer) {
	color.New(color.FgYellow).Fprintf(w, "### Using the system's OpenMPI version.\n### It is advised to install your own version.\n### See %s for available versions.\n", sys.OpenMPIReleasePage)
}

// Acquire returns the toolchain to use. When a source build is requested,
// OpenMPI is downloaded, extracted, configured, compiled and installed. A
// failure to get the sources whose kind is part of req.FallbackOn makes us
// use the system's toolchain instead; the partially extracted tree is left
// as is. Failures of configure/make do not trigger the fallback, they are
// reported in Toolchain.Steps and the returned paths may not exist.
func Acquire(ctx context.Context, req *Request) (Toolchain, error) {
	if !req.SourceBuild {
		systemWarning(req.out())
		return SystemToolchain(req.Version), nil
	}

	url, err := GetURL(req.ReleaseURL, req.Version)
	if err != nil {
		return Toolchain{}, err
	}

	env, err := getSources(ctx, req, url)
	if err != nil {
		kind := setuperr.KindOf(err)
		if kind == "" || !req.fallsBackOn(kind) {
			return Toolchain{}, errors.Wrapf(err, "failed to get OpenMPI %s", req.Version)
		}
		log.Warnf("failed to get OpenMPI %s (%s failure): %s", req.Version, kind, err)
		color.New(color.FgYellow).Fprintf(req.out(), "### ERROR: %s\n", err)
		systemWarning(req.out())
		return SystemToolchain(req.Version), nil
	}

	return build(ctx, req, env), nil
}

// getSources downloads and extracts the tarball and prepares the build directory
func getSources(ctx context.Context, req *Request, url string) (*buildenv.Info, error) {
	env := &buildenv.Info{
		BuildDir:   req.SrcDir,
		InstallDir: GetInstallDir(req.SrcDir, req.Version),
		MakeJobs:   req.MakeJobs,
		Verbose:    req.Verbose,
		Client:     req.Client,
	}

	err := os.MkdirAll(req.SrcDir, 0755)
	if err != nil {
		return nil, setuperr.Filesystem(errors.Wrapf(err, "failed to create %s", req.SrcDir))
	}

	// The tarball is extracted while being downloaded
	fmt.Fprintf(req.out(), "### DOWNLOADING & EXTRACTING OpenMPI %s ###\n", req.Version)
	p := buildenv.SoftwarePackage{Name: ID + "-" + req.Version, URL: url}
	err = env.Get(ctx, &p)
	if err != nil {
		return nil, err
	}

	env.SrcDir = GetSrcDir(req.SrcDir, req.Version)
	if !util.PathExists(env.SrcDir) {
		return nil, setuperr.Filesystem(errors.Newf("%s does not exist after extracting %s", env.SrcDir, url))
	}

	err = env.Init()
	if err != nil {
		return nil, err
	}

	return env, nil
}

// build configures, compiles and installs OpenMPI
func build(ctx context.Context, req *Request, env *buildenv.Info) Toolchain {
	tc := Toolchain{
		Version:    req.Version,
		FromSource: true,
		InstallDir: env.InstallDir,
	}
	tc.Compiler, tc.Launcher = GetToolchainPaths(req.SrcDir, req.Version)

	fmt.Fprintf(req.out(), "### CONFIGURING OpenMPI ###\n")
	res := Configure(ctx, env, nil)
	tc.Steps = append(tc.Steps, res)
	if res.Err != nil {
		log.Warnf("configure failed: %s", res.Err)
	}

	fmt.Fprintf(req.out(), "### BUILDING & INSTALLING OpenMPI ###\n")
	res = env.RunMake(ctx, env.InstallDir, "", filepath.Join(env.InstallDir, buildLog))
	tc.Steps = append(tc.Steps, res)
	if res.Err != nil {
		log.Warnf("build failed: %s", res.Err)
	}

	installEnv := *env
	installEnv.MakeJobs = 0
	res = installEnv.RunMake(ctx, env.InstallDir, "install", filepath.Join(env.InstallDir, installLog))
	tc.Steps = append(tc.Steps, res)
	if res.Err != nil {
		log.Warnf("install failed: %s", res.Err)
	}

	if util.FileExists(tc.Compiler) && util.FileExists(tc.Launcher) {
		manifestPath := filepath.Join(env.InstallDir, manifest.FileName)
		err := manifest.Create(manifestPath, manifest.HashFiles([]string{tc.Compiler, tc.Launcher}))
		if err != nil {
			// This is not a fatal error, we just log it
			log.Printf("failed to create the manifest for OpenMPI %s: %s", req.Version, err)
		}
	}

	return tc
}

// Failed returns the first failed step of a source build, nil if all succeeded
func (tc *Toolchain) Failed() error {
	for _, s := range tc.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}
