// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gvallee/go_util/pkg/util"
	log "github.com/sirupsen/logrus"
)

// FileName is the name of the manifest created in an install directory
const FileName = "install.MANIFEST"

func getFileHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	hasher := sha256.New()
	_, err = io.Copy(hasher, f)
	if err != nil {
		return ""
	}

	return hex.EncodeToString(hasher.Sum(nil))
}

// HashFiles returns the hash for a list of files (absolute path)
func HashFiles(files []string) []string {
	var hashData []string

	for _, file := range files {
		hash := getFileHash(file)
		hashData = append(hashData, file+": "+hash)
	}

	return hashData
}

// Create a new manifest; an existing manifest is replaced
func Create(filepath string, entries []string) error {
	if util.FileExists(filepath) {
		err := os.Remove(filepath)
		if err != nil {
			return errors.Wrapf(err, "failed to remove previous manifest %s", filepath)
		}
	}

	f, err := os.Create(filepath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath)
	}
	defer f.Close()

	_, err = f.WriteString(strings.Join(entries, "\n") + "\n")
	if err != nil {
		return errors.Wrapf(err, "failed to write to %s", filepath)
	}

	err = os.Chmod(filepath, 0444)
	if err != nil {
		return errors.Wrap(err, "failed to set manifest to read only")
	}

	return nil
}

// Check parses a given manifest and checks that all the hashes it records
// match the current files. A missing manifest is not an error.
func Check(path string) error {
	if !util.FileExists(path) {
		log.Printf("%s does not exist, skipping...", path)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read manifest %s", path)
	}

	for _, line := range strings.Split(string(data), "\n") {
		tokens := strings.Split(line, ": ")
		if len(tokens) != 2 {
			continue
		}
		file := tokens[0]
		recordedHash := tokens[1]
		actualHash := getFileHash(file)
		if actualHash != recordedHash {
			return errors.Newf("hashes differ for %s (record: %s; actual: %s)", file, recordedHash, actualHash)
		}
	}

	return nil
}
