// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package util

import (
	"path"
	"strings"
)

// Constants defining the URL types
const (
	// UnsupportedURLType is a constant for a type of URL that we do not support yet
	UnsupportedURLType = ""

	// FileURL is a constant for a file-based URL
	FileURL = "file"

	// HttpURL is a constant for a HTTP-based URL
	HttpURL = "http"

	// GitURL is a constant for a Git repository URL
	GitURL = "git"
)

// DetectURLType detects the type of the URL that is passed in.
func DetectURLType(url string) string {
	if strings.HasPrefix(url, "file://") {
		return FileURL
	}

	if strings.HasSuffix(url, ".git") || strings.HasPrefix(url, "git@") {
		return GitURL
	}

	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return HttpURL
	}

	// Unsupported type
	return UnsupportedURLType
}

// FilePathFromURL returns the local path of a file:// URL
func FilePathFromURL(url string) string {
	return strings.TrimPrefix(url, "file://")
}

// RepoName returns the name of the directory created when cloning a Git repository
func RepoName(url string) string {
	name := path.Base(strings.TrimSuffix(url, "/"))
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".git")
}
