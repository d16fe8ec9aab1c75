// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package openmpi

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
)

func TestGetURL(t *testing.T) {
	tests := []struct {
		version     string
		baseURL     string
		expectedURL string
	}{
		{
			version:     "5.0.9",
			expectedURL: "https://download.open-mpi.org/release/open-mpi/v5.0/openmpi-5.0.9.tar.gz",
		},
		{
			version:     "4.1.6",
			baseURL:     "https://mirror.example.org/open-mpi/",
			expectedURL: "https://mirror.example.org/open-mpi/v4.1/openmpi-4.1.6.tar.gz",
		},
		{
			// A two digit minor version used to end up in a v5.1 directory
			version:     "5.10.0",
			expectedURL: "https://download.open-mpi.org/release/open-mpi/v5.10/openmpi-5.10.0.tar.gz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			url, err := GetURL(tt.baseURL, tt.version)
			if err != nil {
				t.Fatalf("GetURL() failed: %s", err)
			}
			if url != tt.expectedURL {
				t.Fatalf("URL for %s is %s instead of %s", tt.version, url, tt.expectedURL)
			}
		})
	}
}

func TestGetURLInvalidVersion(t *testing.T) {
	for _, version := range []string{"", "5", "5.0", "v5.0.9", "5.0.9rc1", "5.0.0-rc1", "5.x.9"} {
		t.Run(version, func(t *testing.T) {
			_, err := GetURL("", version)
			if !errors.Is(err, setuperr.ErrInvalidVersion) {
				t.Fatalf("%q was accepted: %v", version, err)
			}
		})
	}
}

func TestGetToolchainPaths(t *testing.T) {
	compiler, launcher := GetToolchainPaths("/work/OpenMPI", "5.0.9")
	if compiler != "/work/OpenMPI/openmpi-5.0.9/build/bin/mpiCC" {
		t.Fatalf("invalid compiler path: %s", compiler)
	}
	if launcher != "/work/OpenMPI/openmpi-5.0.9/build/bin/mpirun" {
		t.Fatalf("invalid launcher path: %s", launcher)
	}
	if GetInstallDir("/work/OpenMPI", "5.0.9") != "/work/OpenMPI/openmpi-5.0.9/build" {
		t.Fatalf("invalid install directory: %s", GetInstallDir("/work/OpenMPI", "5.0.9"))
	}
}
