// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package util

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// Constants defining the format of a tarball
const (
	// FormatBZ2 represents a bz2 file
	FormatBZ2 = "bz2"

	// FormatGZ represents a GZ file
	FormatGZ = "gz"

	// FormatTAR represents a simple TAR file
	FormatTAR = "tar"
)

// DetectTarballFormat returns the format of a tarball based on its name, an
// empty string if the file does not look like a tarball
func DetectTarballFormat(filepath string) string {
	switch {
	case strings.HasSuffix(filepath, ".bz2"):
		return FormatBZ2
	case strings.HasSuffix(filepath, ".gz"), strings.HasSuffix(filepath, ".tgz"):
		return FormatGZ
	case strings.HasSuffix(filepath, ".tar"):
		return FormatTAR
	}

	return ""
}

// CopyFile copies a regular file
func CopyFile(src string, dst string) error {
	log.Printf("* Copying %s to %s", src, dst)
	// Check that the source file is valid
	srcStat, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "cannot access file %s", src)
	}

	if !srcStat.Mode().IsRegular() {
		return errors.Newf("invalid source file %s: not a regular file", src)
	}

	s, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer s.Close()

	d, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer d.Close()

	_, err = io.Copy(d, s)
	if err != nil {
		return errors.Wrapf(err, "unable to copy file from %s to %s", src, dst)
	}

	// Check whether the copy succeeded by comparing the sizes of the two files
	dstStat, err := d.Stat()
	if err != nil {
		return errors.Wrapf(err, "unable to get stat for %s", d.Name())
	}
	if srcStat.Size() != dstStat.Size() {
		return errors.Newf("file copy failed, size is %d instead of %d", dstStat.Size(), srcStat.Size())
	}

	return nil
}
