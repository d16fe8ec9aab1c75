// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package shellrc registers the poremaps environment in a shell startup file.
// Lines are only ever appended: running the installation twice duplicates them.
package shellrc

import (
	"os"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/poremaps/poremaps-setup/internal/pkg/buildenv"
	"github.com/poremaps/poremaps-setup/internal/pkg/openmpi"
	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
	"github.com/poremaps/poremaps-setup/internal/pkg/sys"
)

// Lines returns the lines to add to the startup file. The OpenMPI paths are
// only exported when a source build was requested and the launcher is not the
// system's one.
func Lines(launcher string, ompiSrcDir string, version string, sourceBuild bool, venvActivate string) []string {
	lines := []string{"source " + venvActivate}

	if sourceBuild && launcher != sys.DefaultMPIRun {
		env := buildenv.Info{InstallDir: openmpi.GetInstallDir(ompiSrcDir, version)}
		lines = append(lines,
			"export PATH="+env.GetEnvPath()+":$PATH",
			"export LD_LIBRARY_PATH="+env.GetEnvLDPath()+":$LD_LIBRARY_PATH",
		)
	}

	return lines
}

// Append adds lines at the end of file, creating it if needed
func Append(file string, lines []string) error {
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return setuperr.Filesystem(errors.Wrapf(err, "failed to open %s", file))
	}

	for _, l := range lines {
		_, err = f.WriteString(l + "\n")
		if err != nil {
			f.Close()
			return setuperr.Filesystem(errors.Wrapf(err, "failed to write to %s", file))
		}
	}

	err = f.Close()
	if err != nil {
		return setuperr.Filesystem(errors.Wrapf(err, "failed to close %s", file))
	}
	return nil
}

// Register appends the environment of the installation to the startup file
// and returns the lines that were meant to be added
func Register(file string, launcher string, ompiSrcDir string, version string, sourceBuild bool, venvActivate string) ([]string, error) {
	lines := Lines(launcher, ompiSrcDir, version, sourceBuild, venvActivate)
	for _, l := range lines {
		log.Printf("* Adding to %s: %s", file, l)
	}
	return lines, Append(file, lines)
}
