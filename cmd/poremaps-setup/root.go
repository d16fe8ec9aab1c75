// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gvallee/kv/pkg/kv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/poremaps/poremaps-setup/internal/pkg/sys"
)

// flagKeys maps the command line flags to the keys of the configuration file
var flagKeys = map[string]string{
	"get-openmpi":     sys.GetOpenMPIKey,
	"verbose":         sys.VerboseKey,
	"test":            sys.TestKey,
	"git-url":         sys.GitURLKey,
	"openmpi-version": sys.VersionKey,
	"release-url":     sys.ReleaseURLKey,
	"jobs":            sys.MakeJobsKey,
	"linker-variable": sys.LinkerVariableKey,
	"bashrc":          sys.BashrcKey,
	"venv-activate":   sys.VenvActivateKey,
	"base-dir":        sys.BaseDirKey,
	"build-failure":   sys.BuildFailureKey,
	"fallback-on":     sys.FallbackOnKey,
}

// options are the values of the flags shared by all the commands
type options struct {
	configFile string
	makeVars   map[string]string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	installCmd := newInstallCmd(opts)
	rootCmd := &cobra.Command{
		Use:           "poremaps-setup",
		Short:         "Install poremaps and the OpenMPI toolchain it is compiled with",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          installCmd.RunE,
	}

	defaults := sys.Default("")
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to a key/value configuration file")
	flags.Bool("get-openmpi", defaults.GetOpenMPI, "Build OpenMPI from source instead of using the system's installation")
	flags.BoolP("verbose", "v", defaults.Verbose, "Display the output of the commands and the logs")
	flags.Bool("test", defaults.Test, "Enable the test mode of poremaps")
	flags.String("git-url", defaults.GitURL, "URL of the poremaps repository")
	flags.String("openmpi-version", defaults.OpenMPIVersion, "Version of OpenMPI to build (X.Y.Z)")
	flags.String("release-url", defaults.ReleaseURL, "Base URL of the OpenMPI release archives")
	flags.IntP("jobs", "j", defaults.MakeJobs, "Number of make jobs used to compile OpenMPI")
	flags.String("linker-variable", defaults.LinkerVariable, "Makefile variable set to the MPI compiler")
	flags.StringToStringVar(&opts.makeVars, "makevar", nil, "Additional makefile variables to set (NAME=value)")
	flags.String("bashrc", defaults.Bashrc, "Shell startup file to update")
	flags.String("venv-activate", defaults.VenvActivate, "Activation script of the poremaps virtual environment")
	flags.String("base-dir", "", "Directory where OpenMPI and poremaps are built (current directory by default)")
	flags.String("build-failure", defaults.BuildFailure, "Policy for failing builds: ignore or fatal")
	flags.String("fallback-on", kindList(defaults), "Acquisition failures falling back to the system's OpenMPI (network, archive, filesystem)")

	rootCmd.AddCommand(installCmd, newCheckCmd(opts), newVersionURLCmd(opts))

	return rootCmd
}

func kindList(cfg sys.Config) string {
	var kinds []string
	for _, k := range cfg.FallbackOn {
		kinds = append(kinds, string(k))
	}
	return strings.Join(kinds, ",")
}

// loadConfig builds the configuration: defaults, then the configuration file,
// then the flags explicitly set on the command line
func loadConfig(flags *pflag.FlagSet, opts *options) (sys.Config, error) {
	baseDir, err := os.Getwd()
	if err != nil {
		return sys.Config{}, errors.Wrap(err, "cannot detect current directory")
	}
	cfg := sys.Default(baseDir)

	if opts.configFile != "" {
		err := sys.Load(opts.configFile, &cfg)
		if err != nil {
			return cfg, err
		}
	}

	err = sys.Apply(changedFlags(flags), &cfg)
	if err != nil {
		return cfg, errors.Wrap(err, "invalid command line")
	}
	cfg.BaseDir, err = filepath.Abs(cfg.BaseDir)
	if err != nil {
		return cfg, errors.Wrapf(err, "invalid base directory %s", cfg.BaseDir)
	}
	if cfg.MakefileVars == nil {
		cfg.MakefileVars = map[string]string{}
	}
	for name, value := range opts.makeVars {
		cfg.MakefileVars[name] = value
	}

	return cfg, nil
}

// changedFlags returns the flags set on the command line as configuration entries
func changedFlags(flags *pflag.FlagSet) []kv.KV {
	var kvs []kv.KV

	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		kvs = append(kvs, kv.KV{Key: key, Value: f.Value.String()})
	})

	return kvs
}
