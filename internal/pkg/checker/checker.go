// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package checker

import (
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
)

var (
	// prereqBinaries are the tools needed to get and compile poremaps
	prereqBinaries = []string{"git", "make"}

	// sourceBuildBinaries are the extra tools needed to compile OpenMPI
	sourceBuildBinaries = []string{"gcc", "g++"}
)

// ValidateExecutable checks that path exists and can be executed by the current user. It does not
// check that the binary actually works.
func ValidateExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err == nil {
			err = errors.Newf("%s is a directory", path)
		}
		return errors.Mark(errors.Wrapf(err, "%s does not exist", path), setuperr.ErrExecutableMissing)
	}

	err = unix.Access(path, unix.X_OK)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s is not executable", path), setuperr.ErrNotExecutable)
	}

	return nil
}

// CheckPrereqBinaries looks for the binaries required by the installation and
// returns the ones that cannot be found
func CheckPrereqBinaries(sourceBuild bool) []string {
	binaries := append([]string{}, prereqBinaries...)
	if sourceBuild {
		binaries = append(binaries, sourceBuildBinaries...)
	}

	var missing []string
	for _, b := range binaries {
		_, err := exec.LookPath(b)
		if err != nil {
			log.Printf("* Checking for %s\tfail", b)
			missing = append(missing, b)
			continue
		}
		log.Printf("* Checking for %s\tpass", b)
	}
	return missing
}
