// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/poremaps/poremaps-setup/internal/pkg/openmpi"
)

func newVersionURLCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version-url [VERSION]",
		Short: "Print the URL of the OpenMPI release archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			version := cfg.OpenMPIVersion
			if len(args) == 1 {
				version = args[0]
			}

			url, err := openmpi.GetURL(cfg.ReleaseURL, version)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
