// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package autotools

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/gvallee/go_util/pkg/util"
	log "github.com/sirupsen/logrus"

	"github.com/poremaps/poremaps-setup/internal/pkg/shexec"
)

// Config represents the configuration of the autotools-compliant software to configure/compile/install
type Config struct {
	// Install is the path to the directory where the software should be installed
	Install string

	// Source is the path to the directory where the source code is
	Source string

	// Build is the directory from which configure is executed, Source when empty
	Build string

	// ExtraConfigureArgs is a set of string that are passed to configure
	ExtraConfigureArgs []string

	// LogFile receives the output of configure when not in verbose mode
	LogFile string

	// Verbose makes the output of configure appear on the terminal
	Verbose bool
}

// Configure handles the classic configure commands
func Configure(ctx context.Context, cfg *Config) shexec.Result {
	var res shexec.Result

	configurePath := filepath.Join(cfg.Source, "configure")
	if !util.FileExists(configurePath) {
		res.Err = errors.Newf("%s does not exist, skipping the configuration step", configurePath)
		return res
	}

	execDir := cfg.Build
	if execDir == "" {
		execDir = cfg.Source
	}

	var cmdArgs []string
	if cfg.Install != "" {
		cmdArgs = append(cmdArgs, "--prefix="+cfg.Install)
	}
	if len(cfg.ExtraConfigureArgs) > 0 {
		cmdArgs = append(cmdArgs, cfg.ExtraConfigureArgs...)
	}

	log.Printf("-> Running 'configure': %s %s", configurePath, cmdArgs)
	cmd := shexec.Cmd{
		BinPath: configurePath,
		CmdArgs: cmdArgs,
		ExecDir: execDir,
		LogFile: cfg.LogFile,
		Verbose: cfg.Verbose,
	}
	return cmd.Run(ctx)
}
