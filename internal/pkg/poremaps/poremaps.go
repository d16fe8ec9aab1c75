// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

/*
 * poremaps is a package that gets the poremaps sources and compiles them with a given
 * MPI toolchain.
 */
package poremaps

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/poremaps/poremaps-setup/internal/pkg/buildenv"
	"github.com/poremaps/poremaps-setup/internal/pkg/checker"
	"github.com/poremaps/poremaps-setup/internal/pkg/makefile"
	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
	"github.com/poremaps/poremaps-setup/internal/pkg/shexec"
)

const (
	// BuildDirName is the directory of the repository where the makefile is
	BuildDirName = "src"

	// MakefileName is the name of the makefile of poremaps
	MakefileName = "makefile"
)

// Request gathers what is needed to compile poremaps
type Request struct {
	// Compiler is the MPI compiler used to link poremaps
	Compiler string

	// Launcher is the MPI launcher used to run poremaps
	Launcher string

	// TargetDir is the directory where the repository is cloned
	TargetDir string

	// RepoURL is the URL of the poremaps repository
	RepoURL string

	// LinkerVar is the makefile variable set to Compiler
	LinkerVar string

	// Vars are extra makefile variables to set
	Vars map[string]string

	// Verbose makes the output of git and make appear on the terminal
	Verbose bool
}

// Report gathers the results of the steps of the compilation
type Report struct {
	// SrcDir is the directory where make was executed
	SrcDir string

	// Checkout is the result of the git clone/pull command
	Checkout shexec.Result

	// Makefile is the result of the makefile update
	Makefile makefile.Result

	// Build is the result of the make command
	Build shexec.Result
}

// Build gets poremaps and compiles it with the toolchain. Invalid toolchain
// paths and checkout failures are returned as errors; the result of make is
// only reported.
func Build(ctx context.Context, req *Request) (Report, error) {
	var report Report

	for _, p := range []string{req.Compiler, req.Launcher} {
		err := checker.ValidateExecutable(p)
		if err != nil {
			return report, err
		}
	}

	if req.RepoURL == "" || req.TargetDir == "" || req.LinkerVar == "" {
		return report, errors.New("invalid parameter(s)")
	}

	env := buildenv.Info{
		BuildDir: req.TargetDir,
		Verbose:  req.Verbose,
	}
	err := os.MkdirAll(req.TargetDir, 0755)
	if err != nil {
		return report, setuperr.Filesystem(errors.Wrapf(err, "failed to create %s", req.TargetDir))
	}

	report.Checkout = env.GitCheckout(ctx, &buildenv.SoftwarePackage{Name: "poremaps", URL: req.RepoURL})
	if report.Checkout.Err != nil {
		return report, errors.Wrapf(report.Checkout.Err, "cloning %s failed", req.RepoURL)
	}

	report.SrcDir = filepath.Join(env.SrcDir, BuildDirName)
	vars := map[string]string{}
	for k, v := range req.Vars {
		vars[k] = v
	}
	vars[req.LinkerVar] = req.Compiler

	// Replace the compiler in the makefile
	report.Makefile, err = makefile.SetVariables(filepath.Join(report.SrcDir, MakefileName), vars)
	if err != nil {
		return report, errors.Wrap(err, "failed to update the makefile")
	}

	log.Printf("- Compiling poremaps in %s...", report.SrcDir)
	report.Build = env.RunMake(ctx, report.SrcDir, "", "")
	if report.Build.Err != nil {
		log.Warnf("failed to compile poremaps: %s", report.Build.Err)
	}

	return report, nil
}
