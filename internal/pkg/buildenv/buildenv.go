// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

/*
 * buildenv is a package that provides all the capabilities to deal with a build environment,
 * from defining where the software should be compiled and installed, to fetching the sources
 * and running the compilation and installation of software.
 */
package buildenv

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gvallee/go_util/pkg/util"
	log "github.com/sirupsen/logrus"

	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
	"github.com/poremaps/poremaps-setup/internal/pkg/shexec"
	fileutil "github.com/poremaps/poremaps-setup/internal/pkg/util/file"
)

// SoftwarePackage gathers all the information related to the software package to prepare in the build environment
type SoftwarePackage struct {
	// Name is the name with which the software package is recognized
	Name string

	// URL is the source of the software
	URL string
}

// Info gathers the details of the build environment
type Info struct {
	// SrcPath is the path to the fetched package, i.e., the tarball or the Git checkout
	SrcPath string

	// SrcDir is the directory where the source code is
	SrcDir string

	// BuildDir is the directory where the software is fetched and built
	BuildDir string

	// InstallDir is the directory where the software needs to be installed
	InstallDir string

	// MakeJobs is the number of parallel jobs passed to make, none when zero
	MakeJobs int

	// Verbose makes the output of the commands appear on the terminal
	Verbose bool

	// Client is the HTTP client used to download packages, http.DefaultClient when nil
	Client *http.Client
}

// Init ensures that the directories of the build environment exist
func (env *Info) Init() error {
	for _, dir := range []string{env.BuildDir, env.InstallDir} {
		if dir == "" || util.PathExists(dir) {
			continue
		}
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return setuperr.Filesystem(errors.Wrapf(err, "failed to create directory %s", dir))
		}
	}
	return nil
}

// Get is the function to get a given source code. Tarballs are extracted
// while being fetched.
func (env *Info) Get(ctx context.Context, p *SoftwarePackage) error {
	log.Printf("- Getting %s from %s...", p.Name, p.URL)

	// Sanity checks
	if p.URL == "" || env.BuildDir == "" {
		return errors.New("invalid parameter(s)")
	}

	switch fileutil.DetectURLType(p.URL) {
	case fileutil.FileURL:
		err := env.copyTarball(p)
		if err != nil {
			return errors.Wrap(err, "impossible to copy the tarball")
		}
	case fileutil.HttpURL:
		err := env.download(ctx, p)
		if err != nil {
			return errors.Wrapf(err, "impossible to download %s", p.Name)
		}
	case fileutil.GitURL:
		res := env.GitCheckout(ctx, p)
		if res.Err != nil {
			return errors.Wrapf(res.Err, "impossible to get Git repository %s", p.URL)
		}
	default:
		// The source cannot be reached with any protocol we know about
		return setuperr.Network(errors.Newf("impossible to detect URL type: %s", p.URL))
	}

	return nil
}

func (env *Info) copyTarball(p *SoftwarePackage) error {
	src := fileutil.FilePathFromURL(p.URL)
	format := fileutil.DetectTarballFormat(src)
	if format == "" {
		// A typical use case here is a single file that just needs to be compiled
		dst := filepath.Join(env.BuildDir, filepath.Base(src))
		err := fileutil.CopyFile(src, dst)
		if err != nil {
			return setuperr.Filesystem(errors.Wrapf(err, "cannot copy file %s to %s", src, dst))
		}
		env.SrcPath = dst
		env.SrcDir = env.BuildDir
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return setuperr.Filesystem(errors.Wrapf(err, "failed to open %s", src))
	}
	defer f.Close()

	env.SrcPath = src
	return env.Unpack(f, format)
}

func (env *Info) download(ctx context.Context, p *SoftwarePackage) error {
	log.Printf("- Downloading %s from %s...", p.Name, p.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return setuperr.Network(errors.Wrapf(err, "invalid request for %s", p.URL))
	}

	client := env.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return setuperr.Network(errors.Wrapf(err, "GET %s", p.URL))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return setuperr.Network(errors.Newf("GET %s: %s", p.URL, resp.Status))
	}

	format := fileutil.DetectTarballFormat(p.URL)
	if format == "" {
		// Fall back to the content type for URLs that do not end with the name of the tarball
		format = fileutil.FormatGZ
	}
	env.SrcPath = p.URL

	return env.Unpack(&networkReader{r: resp.Body}, format)
}

// GitCheckout clones a Git repository in the build directory, or updates
// the checkout when it already exists
func (env *Info) GitCheckout(ctx context.Context, p *SoftwarePackage) shexec.Result {
	var res shexec.Result

	gitBin, err := exec.LookPath("git")
	if err != nil {
		res.Err = errors.Mark(errors.Wrap(err, "failed to find git"), setuperr.ErrClone)
		return res
	}

	checkoutPath := filepath.Join(env.BuildDir, fileutil.RepoName(p.URL))
	var cmd shexec.Cmd
	cmd.BinPath = gitBin
	cmd.Verbose = env.Verbose
	if util.PathExists(checkoutPath) {
		log.Printf("* %s already exists, updating it", checkoutPath)
		cmd.CmdArgs = []string{"pull"}
		cmd.ExecDir = checkoutPath
	} else {
		cmd.CmdArgs = []string{"clone", p.URL}
		cmd.ExecDir = env.BuildDir
	}

	res = cmd.Run(ctx)
	if res.Err != nil {
		res.Err = errors.Mark(errors.Wrapf(res.Err, "stderr: %s", res.Stderr), setuperr.ErrClone)
		return res
	}

	// Both env.SrcPath and env.SrcDir are set to the directory checkout because:
	// - the value of SrcPath will make the code figure out that it is not necessary to unpack
	// - the value of SrcDir will point to where the code is for configuration/compilation/installation
	env.SrcPath = checkoutPath
	env.SrcDir = checkoutPath

	return res
}

// RunMake executes make from dir, adding the stage (e.g., install) when not empty
func (env *Info) RunMake(ctx context.Context, dir string, stage string, logFile string) shexec.Result {
	var res shexec.Result

	// Some sanity checks
	if dir == "" {
		res.Err = errors.New("invalid parameter(s)")
		return res
	}

	makeBin, err := exec.LookPath("make")
	if err != nil {
		res.Err = errors.Wrap(err, "failed to find make")
		return res
	}

	var args []string
	if env.MakeJobs > 0 {
		args = append(args, "-j"+strconv.Itoa(env.MakeJobs))
	}
	if stage != "" {
		args = append(args, stage)
	}

	cmd := shexec.Cmd{
		BinPath: makeBin,
		CmdArgs: args,
		ExecDir: dir,
		Verbose: env.Verbose,
		LogFile: logFile,
	}
	return cmd.Run(ctx)
}

// GetEnvPath returns the directory to add to the PATH environment variable
func (env *Info) GetEnvPath() string {
	return filepath.Join(env.InstallDir, "bin")
}

// GetEnvLDPath returns the directory to add to the LD_LIBRARY_PATH environment variable
func (env *Info) GetEnvLDPath() string {
	return filepath.Join(env.InstallDir, "lib")
}

// networkReader marks the errors of the underlying reader as network failures
// so that a truncated download is not mistaken for a corrupted archive
type networkReader struct {
	r io.Reader
}

func (n *networkReader) Read(p []byte) (int, error) {
	c, err := n.r.Read(p)
	if err != nil && err != io.EOF {
		err = setuperr.Network(errors.Wrap(err, "failed to read response body"))
	}
	return c, err
}
