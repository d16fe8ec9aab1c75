// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package setuperr defines the kinds of errors the installer knows how to
// react to. Errors are tagged with errors.Mark and tested with errors.Is.
package setuperr

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNetwork is the kind of errors happening while fetching data from a remote server
	ErrNetwork = errors.New("network failure")

	// ErrArchive is the kind of errors happening while decoding or extracting an archive
	ErrArchive = errors.New("archive failure")

	// ErrFilesystem is the kind of errors happening while creating or writing local files
	ErrFilesystem = errors.New("filesystem failure")

	// ErrInvalidVersion is returned when a version string is not of the form X.Y.Z
	ErrInvalidVersion = errors.New("invalid version")

	// ErrExecutableMissing is returned when a required executable does not exist
	ErrExecutableMissing = errors.New("executable does not exist")

	// ErrNotExecutable is returned when a required executable exists but cannot be executed
	ErrNotExecutable = errors.New("file is not executable")

	// ErrClone is returned when the checkout of a repository fails
	ErrClone = errors.New("repository checkout failed")

	// ErrCommand is returned when an external command exits with a non-zero status
	ErrCommand = errors.New("command failed")
)

// Kind is the name of an error kind as used in configuration files
type Kind string

const (
	// KindNetwork is the name of ErrNetwork
	KindNetwork Kind = "network"
	// KindArchive is the name of ErrArchive
	KindArchive Kind = "archive"
	// KindFilesystem is the name of ErrFilesystem
	KindFilesystem Kind = "filesystem"
)

var kinds = map[Kind]error{
	KindNetwork:    ErrNetwork,
	KindArchive:    ErrArchive,
	KindFilesystem: ErrFilesystem,
}

// Network marks err as a network failure
func Network(err error) error {
	return errors.Mark(err, ErrNetwork)
}

// Archive marks err as an archive failure
func Archive(err error) error {
	return errors.Mark(err, ErrArchive)
}

// Filesystem marks err as a filesystem failure
func Filesystem(err error) error {
	return errors.Mark(err, ErrFilesystem)
}

// KindOf returns the acquisition kind of an error, an empty string if the
// error does not belong to any of them
func KindOf(err error) Kind {
	for _, k := range []Kind{KindNetwork, KindArchive, KindFilesystem} {
		if errors.Is(err, kinds[k]) {
			return k
		}
	}
	return ""
}

// ParseKinds parses a comma-separated list of kinds, e.g., "network,archive"
func ParseKinds(list string) ([]Kind, error) {
	var res []Kind
	for _, tok := range strings.Split(list, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, ok := kinds[Kind(tok)]; !ok {
			return nil, errors.Newf("unknown error kind %q", tok)
		}
		res = append(res, Kind(tok))
	}
	return res, nil
}
