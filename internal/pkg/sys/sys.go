// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sys

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gvallee/kv/pkg/kv"

	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
)

const (
	// DefaultMPICompiler is the path to the compiler wrapper of the system's OpenMPI
	DefaultMPICompiler = "/usr/bin/mpiCC"

	// DefaultMPIRun is the path to the launcher of the system's OpenMPI
	DefaultMPIRun = "/usr/bin/mpirun"

	// DefaultOpenMPIVersion is the version of OpenMPI built from source by default
	DefaultOpenMPIVersion = "5.0.9"

	// DefaultReleaseURL is the base URL of the OpenMPI release archives
	DefaultReleaseURL = "https://download.open-mpi.org/release/open-mpi"

	// DefaultPoremapsGitURL is the repository of poremaps; we use https to clone
	DefaultPoremapsGitURL = "https://git.rwth-aachen.de/david.krach/poremaps.git"

	// DefaultMakeJobs is the degree of parallelism used when compiling OpenMPI
	DefaultMakeJobs = 4

	// DefaultLinkerVariable is the makefile variable pointing at the MPI compiler
	DefaultLinkerVariable = "CLINKER"

	// DefaultBashrc is the shell startup file updated at the end of the installation
	DefaultBashrc = "/poremaps/.bashrc"

	// DefaultVenvActivate is the activation script of the poremaps virtual environment
	DefaultVenvActivate = "/poremaps/venv/poremaps/bin/activate"

	// OpenMPISrcDirName is the name of the directory where OpenMPI is downloaded and built
	OpenMPISrcDirName = "OpenMPI"

	// PoremapsSrcDirName is the name of the directory where poremaps is cloned
	PoremapsSrcDirName = "poremaps_Krach2025"

	// LogFileName is the name of the log file created in the base directory
	LogFileName = "poremaps-setup.log"

	// OpenMPIReleasePage is where users can find the available versions of OpenMPI
	OpenMPIReleasePage = "https://www.open-mpi.org/software/ompi/v5.0/"
)

// Failure policies for the steps of the installation whose failure used to be ignored
const (
	// PolicyIgnore logs the failure and carries on
	PolicyIgnore = "ignore"

	// PolicyFatal aborts the installation
	PolicyFatal = "fatal"
)

// Keys of the configuration file
const (
	GetOpenMPIKey     = "get_openmpi"
	VerboseKey        = "verbose"
	TestKey           = "poremaps_test"
	GitURLKey         = "poremaps_git_url"
	VersionKey        = "openmpi_version"
	ReleaseURLKey     = "openmpi_release_url"
	MakeJobsKey       = "make_jobs"
	LinkerVariableKey = "linker_variable"
	BashrcKey         = "bashrc"
	VenvActivateKey   = "venv_activate"
	BaseDirKey        = "base_dir"
	BuildFailureKey   = "build_failure"
	FallbackOnKey     = "fallback_on"
)

// Config captures all the settings of an installation
type Config struct {
	GetOpenMPI     bool              // Build OpenMPI from source rather than using the system's one
	Verbose        bool              // Show the output of the build commands instead of saving it to log files
	Test           bool              // Test mode, reported but not used by the installation itself
	GitURL         string            // URL of the poremaps repository
	OpenMPIVersion string            // Version of OpenMPI to build, X.Y.Z
	ReleaseURL     string            // Base URL of the OpenMPI releases
	MakeJobs       int               // Number of parallel jobs when compiling OpenMPI
	LinkerVariable string            // Makefile variable set to the MPI compiler
	MakefileVars   map[string]string // Extra makefile variables to set (makevar.<NAME> keys)
	Bashrc         string            // Shell startup file to update
	VenvActivate   string            // Activation script of the virtual environment
	BaseDir        string            // Directory where the working directories are created
	BuildFailure   string            // Policy for failing configure/make steps
	FallbackOn     []setuperr.Kind   // Acquisition failures that fall back to the system's OpenMPI
	ConfigFile     string            // Configuration file the settings were loaded from, if any
}

// Default returns the default configuration, rooted in baseDir
func Default(baseDir string) Config {
	return Config{
		GetOpenMPI:     true,
		Verbose:        true,
		Test:           true,
		GitURL:         DefaultPoremapsGitURL,
		OpenMPIVersion: DefaultOpenMPIVersion,
		ReleaseURL:     DefaultReleaseURL,
		MakeJobs:       DefaultMakeJobs,
		LinkerVariable: DefaultLinkerVariable,
		MakefileVars:   map[string]string{},
		Bashrc:         DefaultBashrc,
		VenvActivate:   DefaultVenvActivate,
		BaseDir:        baseDir,
		BuildFailure:   PolicyIgnore,
		FallbackOn:     []setuperr.Kind{setuperr.KindNetwork, setuperr.KindArchive, setuperr.KindFilesystem},
	}
}

// OpenMPISrcDir returns the absolute path to the directory where OpenMPI is built
func (c *Config) OpenMPISrcDir() string {
	return filepath.Join(c.BaseDir, OpenMPISrcDirName)
}

// PoremapsSrcDir returns the absolute path to the directory where poremaps is cloned
func (c *Config) PoremapsSrcDir() string {
	return filepath.Join(c.BaseDir, PoremapsSrcDirName)
}

// LogFile returns the path to the log file of the installation
func (c *Config) LogFile() string {
	return filepath.Join(c.BaseDir, LogFileName)
}

// Validate checks that the configuration can be used
func (c *Config) Validate() error {
	if c.BaseDir == "" || !filepath.IsAbs(c.BaseDir) {
		return errors.Newf("base directory must be an absolute path, got %q", c.BaseDir)
	}
	if c.GitURL == "" {
		return errors.New("undefined poremaps repository URL")
	}
	if c.MakeJobs < 1 {
		return errors.Newf("invalid number of make jobs: %d", c.MakeJobs)
	}
	if c.LinkerVariable == "" {
		return errors.New("undefined linker variable")
	}
	if c.Bashrc == "" {
		return errors.New("undefined shell startup file")
	}
	if c.BuildFailure != PolicyIgnore && c.BuildFailure != PolicyFatal {
		return errors.Newf("invalid build failure policy %q, must be %q or %q", c.BuildFailure, PolicyIgnore, PolicyFatal)
	}
	return nil
}

// Load reads a key/value configuration file and applies its content on top of cfg
func Load(path string, cfg *Config) error {
	kvs, err := kv.LoadKeyValueConfig(path)
	if err != nil {
		return errors.Wrapf(err, "unable to parse %s", path)
	}

	err = Apply(kvs, cfg)
	if err != nil {
		return errors.Wrapf(err, "invalid configuration in %s", path)
	}
	cfg.ConfigFile = path

	return nil
}

// Apply sets the configuration from a set of key/value pairs
func Apply(kvs []kv.KV, cfg *Config) error {
	var err error

	for _, e := range kvs {
		switch e.Key {
		case GetOpenMPIKey:
			cfg.GetOpenMPI, err = strconv.ParseBool(e.Value)
		case VerboseKey:
			cfg.Verbose, err = strconv.ParseBool(e.Value)
		case TestKey:
			cfg.Test, err = strconv.ParseBool(e.Value)
		case GitURLKey:
			cfg.GitURL = e.Value
		case VersionKey:
			cfg.OpenMPIVersion = e.Value
		case ReleaseURLKey:
			cfg.ReleaseURL = strings.TrimSuffix(e.Value, "/")
		case MakeJobsKey:
			cfg.MakeJobs, err = strconv.Atoi(e.Value)
		case LinkerVariableKey:
			cfg.LinkerVariable = e.Value
		case BashrcKey:
			cfg.Bashrc = e.Value
		case VenvActivateKey:
			cfg.VenvActivate = e.Value
		case BaseDirKey:
			cfg.BaseDir = e.Value
		case BuildFailureKey:
			cfg.BuildFailure = e.Value
		case FallbackOnKey:
			cfg.FallbackOn, err = setuperr.ParseKinds(e.Value)
		default:
			if strings.HasPrefix(e.Key, "makevar.") {
				if cfg.MakefileVars == nil {
					cfg.MakefileVars = map[string]string{}
				}
				cfg.MakefileVars[strings.TrimPrefix(e.Key, "makevar.")] = e.Value
				continue
			}
			return errors.Newf("unknown key %q", e.Key)
		}
		if err != nil {
			return errors.Wrapf(err, "invalid value for %s", e.Key)
		}
	}

	return nil
}
