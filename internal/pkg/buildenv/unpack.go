// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package buildenv

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/poremaps/poremaps-setup/internal/pkg/setuperr"
	fileutil "github.com/poremaps/poremaps-setup/internal/pkg/util/file"
)

// archiveErr classifies an error raised while reading an archive stream:
// errors coming from the network keep their kind, everything else is a
// corrupted archive.
func archiveErr(err error, msg string) error {
	err = errors.Wrap(err, msg)
	if errors.Is(err, setuperr.ErrNetwork) {
		return err
	}
	return setuperr.Archive(err)
}

// Unpack extracts a tarball read from r into the build directory. When all
// the entries share the same top directory, SrcDir is set to it.
func (env *Info) Unpack(r io.Reader, format string) error {
	log.Println("- Unpacking software...")

	// Sanity checks
	if env.BuildDir == "" {
		return errors.New("invalid parameter(s)")
	}

	switch format {
	case fileutil.FormatGZ:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return archiveErr(err, "failed to open gzip stream")
		}
		defer gz.Close()
		r = gz
	case fileutil.FormatBZ2:
		r = bzip2.NewReader(r)
	case fileutil.FormatTAR:
	default:
		return setuperr.Archive(errors.Newf("unsupported format: %q", format))
	}

	err := os.MkdirAll(env.BuildDir, 0755)
	if err != nil {
		return setuperr.Filesystem(errors.Wrapf(err, "failed to create directory %s", env.BuildDir))
	}
	root, err := filepath.EvalSymlinks(env.BuildDir)
	if err != nil {
		return setuperr.Filesystem(errors.Wrapf(err, "failed to resolve %s", env.BuildDir))
	}

	topDirs := map[string]bool{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return archiveErr(err, "failed to read tar stream")
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name, err := entryPath(env.BuildDir, hdr.Name)
		if err != nil {
			return err
		}
		if name == env.BuildDir {
			continue
		}
		rel, _ := filepath.Rel(env.BuildDir, name)
		topDirs[strings.Split(rel, string(filepath.Separator))[0]] = true

		err = extractEntry(tr, hdr, root, rel)
		if err != nil {
			return err
		}
	}

	env.SrcDir = env.BuildDir
	if len(topDirs) == 1 {
		for d := range topDirs {
			candidate := filepath.Join(env.BuildDir, d)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				env.SrcDir = candidate
			}
		}
	}

	return nil
}

// entryPath returns the path where an archive entry is extracted and rejects
// entries that would end up outside of dir
func entryPath(dir string, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", setuperr.Archive(errors.Newf("invalid entry %s: absolute path", name))
	}
	target := filepath.Join(dir, name)
	if target != dir && !strings.HasPrefix(target, dir+string(filepath.Separator)) {
		return "", setuperr.Archive(errors.Newf("invalid entry %s: outside of %s", name, dir))
	}
	return target, nil
}

// maxSymlinks bounds the number of symlinks followed while resolving a path
const maxSymlinks = 255

// resolveInside resolves rel under root, following the symlinks already
// extracted, and fails when the result is not under root. Components that do
// not exist yet are kept as is.
func resolveInside(root string, rel string) (string, error) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	var stack []string
	hops := 0

	for len(parts) > 0 {
		p := parts[0]
		parts = parts[1:]

		switch p {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", setuperr.Archive(errors.Newf("invalid entry %s: outside of %s", rel, root))
			}
			stack = stack[:len(stack)-1]
			continue
		}

		cur := filepath.Join(root, filepath.Join(stack...), p)
		info, err := os.Lstat(cur)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			stack = append(stack, p)
			continue
		}

		hops++
		if hops > maxSymlinks {
			return "", setuperr.Archive(errors.Newf("invalid entry %s: too many levels of symbolic links", rel))
		}
		link, err := os.Readlink(cur)
		if err != nil {
			return "", setuperr.Filesystem(errors.Wrapf(err, "failed to read symlink %s", cur))
		}
		if filepath.IsAbs(link) {
			return "", setuperr.Archive(errors.Newf("invalid entry %s: %s points to %s", rel, cur, link))
		}
		parts = append(strings.Split(filepath.ToSlash(link), "/"), parts...)
	}

	return filepath.Join(root, filepath.Join(stack...)), nil
}

// entryParent resolves and creates the directory an entry is extracted in
func entryParent(root string, rel string) (string, error) {
	parent, err := resolveInside(root, filepath.Dir(rel))
	if err != nil {
		return "", err
	}
	err = os.MkdirAll(parent, 0755)
	if err != nil {
		return "", setuperr.Filesystem(errors.Wrapf(err, "failed to create directory %s", parent))
	}
	return parent, nil
}

// removeLink removes target when it is a symlink so that it is replaced
// rather than followed
func removeLink(target string) {
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		os.Remove(target)
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, root string, rel string) error {
	mode := hdr.FileInfo().Mode().Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		target, err := resolveInside(root, rel)
		if err != nil {
			return err
		}
		err = os.MkdirAll(target, mode|0700)
		if err != nil {
			return setuperr.Filesystem(errors.Wrapf(err, "failed to create directory %s", target))
		}
	case tar.TypeReg, tar.TypeRegA:
		parent, err := entryParent(root, rel)
		if err != nil {
			return err
		}
		target := filepath.Join(parent, filepath.Base(rel))
		removeLink(target)
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
		if err != nil {
			return setuperr.Filesystem(errors.Wrapf(err, "failed to create %s", target))
		}
		_, err = io.Copy(&fsWriter{w: f}, tr)
		closeErr := f.Close()
		if err != nil {
			if errors.Is(err, setuperr.ErrFilesystem) {
				return errors.Wrapf(err, "failed to extract %s", target)
			}
			return archiveErr(err, "failed to extract "+target)
		}
		if closeErr != nil {
			return setuperr.Filesystem(errors.Wrapf(closeErr, "failed to close %s", target))
		}
		// Autotools compare timestamps, the ones from the archive must be preserved
		err = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
		if err != nil {
			return setuperr.Filesystem(errors.Wrapf(err, "failed to set timestamps of %s", target))
		}
	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) {
			return setuperr.Archive(errors.Newf("invalid symlink %s -> %s", hdr.Name, hdr.Linkname))
		}
		parent, err := entryParent(root, rel)
		if err != nil {
			return err
		}
		// The destination is resolved from where the link really is, without
		// cleaning it first: "a/.." depends on what "a" points to
		relParent, _ := filepath.Rel(root, parent)
		_, err = resolveInside(root, filepath.ToSlash(relParent)+"/"+filepath.ToSlash(hdr.Linkname))
		if err != nil {
			return errors.Wrapf(err, "invalid symlink %s -> %s", hdr.Name, hdr.Linkname)
		}
		target := filepath.Join(parent, filepath.Base(rel))
		os.Remove(target)
		err = os.Symlink(hdr.Linkname, target)
		if err != nil {
			return setuperr.Filesystem(errors.Wrapf(err, "failed to create symlink %s", target))
		}
	case tar.TypeLink:
		if filepath.IsAbs(hdr.Linkname) {
			return setuperr.Archive(errors.Newf("invalid link %s -> %s", hdr.Name, hdr.Linkname))
		}
		src, err := resolveInside(root, hdr.Linkname)
		if err != nil {
			return err
		}
		parent, err := entryParent(root, rel)
		if err != nil {
			return err
		}
		target := filepath.Join(parent, filepath.Base(rel))
		os.Remove(target)
		err = os.Link(src, target)
		if err != nil {
			return setuperr.Filesystem(errors.Wrapf(err, "failed to create link %s", target))
		}
	default:
		// pax headers, devices and fifos are not part of source tarballs
		log.Printf("* Skipping %s (type %c)", hdr.Name, hdr.Typeflag)
	}

	return nil
}

// fsWriter marks write errors as filesystem failures
type fsWriter struct {
	w io.Writer
}

func (f *fsWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		err = setuperr.Filesystem(err)
	}
	return n, err
}
