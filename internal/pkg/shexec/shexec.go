// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package shexec

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
)

// Result represents the result of the execution of a command
type Result struct {
	// Cmd is the command line that was executed
	Cmd string
	// Dir is the directory from which the command was executed
	Dir string
	// ExitCode is the exit status of the command, -1 if the command could not be started
	ExitCode int
	// Err is the Go error associated to the command execution
	Err error
	// Stdout is the messages that were displayed on stdout during the execution of the command
	Stdout string
	// Stderr is the messages that were displayed on stderr during the execution of the command
	Stderr string
	// LogFile is the file where the output of the command was saved, if any
	LogFile string
}

// Failed checks whether the command did not complete successfully
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Cmd represents a command to be executed
type Cmd struct {
	// BinPath is the path to the binary to execute
	BinPath string

	// CmdArgs is a slice of string representing the command's arguments
	CmdArgs []string

	// ExecDir is the directory where to execute the command
	ExecDir string

	// LogFile is the file receiving the output of the command when not in verbose mode
	LogFile string

	// Verbose makes the output of the command appear on stdout/stderr
	Verbose bool

	// Stdout is where the output is displayed in verbose mode, os.Stdout by default
	Stdout io.Writer

	// Stderr is where errors are displayed in verbose mode, os.Stderr by default
	Stderr io.Writer
}

// CommandLine returns the string representation of the command
func (c *Cmd) CommandLine() string {
	return strings.TrimSpace(c.BinPath + " " + strings.Join(c.CmdArgs, " "))
}

// Run executes the command and returns its result. Run blocks until the
// command terminates or ctx is done.
func (c *Cmd) Run(ctx context.Context) Result {
	res := Result{
		Cmd:      c.CommandLine(),
		Dir:      c.ExecDir,
		ExitCode: -1,
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.BinPath, c.CmdArgs...)
	cmd.Dir = c.ExecDir

	var outWriters, errWriters []io.Writer
	outWriters = append(outWriters, &stdout)
	errWriters = append(errWriters, &stderr)
	if c.Verbose {
		outWriters = append(outWriters, writerOr(c.Stdout, os.Stdout))
		errWriters = append(errWriters, writerOr(c.Stderr, os.Stderr))
	} else if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			res.Err = setuperr.Filesystem(errors.Wrapf(err, "failed to create log file %s", c.LogFile))
			return res
		}
		defer f.Close()
		res.LogFile = c.LogFile
		outWriters = append(outWriters, f)
		errWriters = append(errWriters, f)
	}
	cmd.Stdout = io.MultiWriter(outWriters...)
	cmd.Stderr = io.MultiWriter(errWriters...)

	log.Printf("-> Running from %s: %s", c.ExecDir, res.Cmd)
	err := cmd.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		res.Err = errors.Mark(errors.Wrapf(err, "%s", res.Cmd), setuperr.ErrCommand)
		return res
	}

	return res
}

func writerOr(w io.Writer, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
