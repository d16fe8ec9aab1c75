// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

/*
 * provisioner is a package that runs the installation of poremaps: acquisition of the OpenMPI
 * toolchain, compilation of poremaps and registration of the environment in the shell startup
 * file. All the steps use absolute paths, the current directory is never changed.
 */
package provisioner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/poremaps/poremaps-setup/internal/pkg/checker"
	"github.com/poremaps/poremaps-setup/internal/pkg/manifest"
	"github.com/poremaps/poremaps-setup/internal/pkg/openmpi"
	"github.com/poremaps/poremaps-setup/internal/pkg/poremaps"
	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
	"github.com/poremaps/poremaps-setup/internal/pkg/shellrc"
	"github.com/poremaps/poremaps-setup/internal/pkg/sys"
)

// AcquireFn is the function prototype to get the MPI toolchain
type AcquireFn func(context.Context, *openmpi.Request) (openmpi.Toolchain, error)

// BuildFn is the function prototype to compile poremaps
type BuildFn func(context.Context, *poremaps.Request) (poremaps.Report, error)

// Provisioner gathers all the data needed to run an installation
type Provisioner struct {
	// Cfg is the configuration of the installation
	Cfg *sys.Config

	// Out is where progress messages are displayed, os.Stdout when nil
	Out io.Writer

	// Client is the HTTP client used to download OpenMPI
	Client *http.Client

	// Acquire is the function to call to get the toolchain, openmpi.Acquire when nil
	Acquire AcquireFn

	// Build is the function to call to compile poremaps, poremaps.Build when nil
	Build BuildFn
}

// Report gathers the outcome of an installation
type Report struct {
	// Toolchain is the toolchain poremaps was compiled with
	Toolchain openmpi.Toolchain

	// Poremaps is the report of the compilation of poremaps
	Poremaps poremaps.Report

	// EnvLines are the lines added to the shell startup file
	EnvLines []string

	// Warnings are the non-fatal failures of the installation
	Warnings []string
}

func (p *Provisioner) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stdout
}

func (p *Provisioner) warn(report *Report, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Warn(msg)
	color.New(color.FgYellow).Fprintf(p.out(), "### WARNING: %s\n", msg)
	report.Warnings = append(report.Warnings, msg)
}

func (p *Provisioner) displayConfig() {
	cfg := p.Cfg
	log.Println("Base directory:", cfg.BaseDir)
	if cfg.ConfigFile != "" {
		log.Println("Configuration file:", cfg.ConfigFile)
	}
	log.Println("Build OpenMPI from source:", cfg.GetOpenMPI)
	log.Println("OpenMPI version:", cfg.OpenMPIVersion)
	log.Println("Verbose:", cfg.Verbose)
	log.Println("Test mode:", cfg.Test)
	log.Println("poremaps repository:", cfg.GitURL)
	log.Println("Shell startup file:", cfg.Bashrc)
	log.Println("Build failure policy:", cfg.BuildFailure)
}

// Run executes the installation. Invalid toolchains and checkout failures
// are returned as errors; failures to compile and to update the startup file
// are warnings unless the build failure policy is fatal.
func (p *Provisioner) Run(ctx context.Context) (Report, error) {
	var report Report
	cfg := p.Cfg

	err := cfg.Validate()
	if err != nil {
		return report, errors.Wrap(err, "invalid configuration")
	}
	p.displayConfig()

	for _, dir := range []string{cfg.OpenMPISrcDir(), cfg.PoremapsSrcDir()} {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return report, setuperr.Filesystem(errors.Wrapf(err, "failed to create %s", dir))
		}
	}

	missing := checker.CheckPrereqBinaries(cfg.GetOpenMPI)
	if len(missing) > 0 {
		p.warn(&report, "missing prerequisite(s): %s", strings.Join(missing, ", "))
	}

	acquire := p.Acquire
	if acquire == nil {
		acquire = openmpi.Acquire
	}
	report.Toolchain, err = acquire(ctx, &openmpi.Request{
		SourceBuild: cfg.GetOpenMPI,
		SrcDir:      cfg.OpenMPISrcDir(),
		Version:     cfg.OpenMPIVersion,
		ReleaseURL:  cfg.ReleaseURL,
		MakeJobs:    cfg.MakeJobs,
		Verbose:     cfg.Verbose,
		FallbackOn:  cfg.FallbackOn,
		Client:      p.Client,
		Out:         p.out(),
	})
	if err != nil {
		return report, errors.Wrap(err, "failed to get the OpenMPI toolchain")
	}
	if stepErr := report.Toolchain.Failed(); stepErr != nil {
		if cfg.BuildFailure == sys.PolicyFatal {
			return report, errors.Wrap(stepErr, "failed to build OpenMPI")
		}
		p.warn(&report, "OpenMPI build failed, see the logs in %s: %s", report.Toolchain.InstallDir, stepErr)
	}
	fmt.Fprintln(p.out(), report.Toolchain.Compiler, report.Toolchain.Launcher)

	build := p.Build
	if build == nil {
		build = poremaps.Build
	}
	report.Poremaps, err = build(ctx, &poremaps.Request{
		Compiler:  report.Toolchain.Compiler,
		Launcher:  report.Toolchain.Launcher,
		TargetDir: cfg.PoremapsSrcDir(),
		RepoURL:   cfg.GitURL,
		LinkerVar: cfg.LinkerVariable,
		Vars:      cfg.MakefileVars,
		Verbose:   cfg.Verbose,
	})
	if err != nil {
		return report, errors.Wrap(err, "failed to install poremaps")
	}
	if len(report.Poremaps.Makefile.Missing) > 0 {
		p.warn(&report, "no assignment of %s in the poremaps makefile", strings.Join(report.Poremaps.Makefile.Missing, ", "))
	}
	if report.Poremaps.Build.Failed() {
		if cfg.BuildFailure == sys.PolicyFatal {
			return report, errors.Wrap(report.Poremaps.Build.Err, "failed to compile poremaps")
		}
		p.warn(&report, "failed to compile poremaps: %s", report.Poremaps.Build.Err)
	}

	report.EnvLines, err = shellrc.Register(cfg.Bashrc, report.Toolchain.Launcher, cfg.OpenMPISrcDir(), report.Toolchain.Version, cfg.GetOpenMPI, cfg.VenvActivate)
	if err != nil {
		p.warn(&report, "failed to update %s: %s", cfg.Bashrc, err)
	}

	return report, nil
}

// CheckToolchain validates a toolchain and, for toolchains built by us, the
// hashes recorded in its install manifest
func CheckToolchain(compiler string, launcher string) error {
	for _, path := range []string{compiler, launcher} {
		err := checker.ValidateExecutable(path)
		if err != nil {
			return err
		}
	}

	manifestPath := filepath.Join(filepath.Dir(filepath.Dir(compiler)), manifest.FileName)
	err := manifest.Check(manifestPath)
	if err != nil {
		return errors.Wrapf(err, "toolchain does not match %s", manifestPath)
	}

	return nil
}
