// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/poremaps/poremaps-setup/internal/pkg/openmpi"
	"github.com/poremaps/poremaps-setup/internal/pkg/provisioner"
	"github.com/poremaps/poremaps-setup/internal/pkg/sys"
)

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check [COMPILER LAUNCHER]",
		Short: "Validate an MPI toolchain",
		Long: "Validate an MPI toolchain: both executables must exist and be executable, and match " +
			"the install manifest when OpenMPI was built from source. Without arguments, the " +
			"toolchain resulting from the configuration is checked.",
		Args: cobra.MatchAll(cobra.MaximumNArgs(2), func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return errors.New("both the compiler and the launcher are required")
			}
			return nil
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			var compiler, launcher string
			if len(args) == 2 {
				compiler, launcher = args[0], args[1]
			} else {
				cfg, err := loadConfig(cmd.Flags(), opts)
				if err != nil {
					return err
				}
				compiler, launcher = sys.DefaultMPICompiler, sys.DefaultMPIRun
				if cfg.GetOpenMPI {
					compiler, launcher = openmpi.GetToolchainPaths(cfg.OpenMPISrcDir(), cfg.OpenMPIVersion)
				}
			}

			err := provisioner.CheckToolchain(compiler, launcher)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), compiler, launcher)
			return nil
		},
	}
}
