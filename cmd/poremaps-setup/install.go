// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/poremaps/poremaps-setup/internal/pkg/provisioner"
	"github.com/poremaps/poremaps-setup/internal/pkg/sys"
)

func newInstallCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Get OpenMPI, compile poremaps and update the shell startup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}

			closeLog, err := initLogging(&cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeLog()

			p := provisioner.Provisioner{Cfg: &cfg, Out: cmd.OutOrStdout()}
			report, err := p.Run(cmd.Context())
			if err != nil {
				log.Errorf("installation failed: %s", err)
				return err
			}

			log.Printf("* poremaps compiled with %s (OpenMPI %s, from source: %t)", report.Toolchain.Compiler, report.Toolchain.Version, report.Toolchain.FromSource)
			for _, l := range report.EnvLines {
				log.Printf("* added to %s: %s", cfg.Bashrc, l)
			}
			if len(report.Warnings) > 0 {
				log.Printf("* installation completed with %d warning(s)", len(report.Warnings))
			}
			return nil
		},
	}
}

// initLogging sends the logs to the log file of the installation. Log messages
// both appear on the terminal and in the log file when the verbose option is used.
func initLogging(cfg *sys.Config, stdout io.Writer) (func(), error) {
	err := os.MkdirAll(cfg.BaseDir, 0755)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", cfg.BaseDir)
	}

	logFile, err := os.OpenFile(cfg.LogFile(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create log file")
	}

	if cfg.Verbose {
		log.SetOutput(io.MultiWriter(stdout, logFile))
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetOutput(logFile)
		log.SetLevel(log.InfoLevel)
	}
	log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})

	return func() {
		log.SetOutput(os.Stderr)
		logFile.Close()
	}, nil
}
