// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package makefile sets variable assignments in a makefile. Only the lines
// starting with the assignment of a given variable are rewritten, every other
// byte of the file is kept. Rewritten lines always use "=", whatever operator
// they had.
package makefile

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// Result gathers the outcome of an update
type Result struct {
	// Set are the variables whose assignment was rewritten
	Set []string

	// Missing are the variables without any assignment in the makefile
	Missing []string
}

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

func assignment(name string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `\s*[:?+]?=`)
}

// SetVariables rewrites the assignments of the given variables, e.g.,
// CLINKER=/usr/bin/mpiCC. A variable without assignment is reported in
// Result.Missing and the file is not modified for it.
func SetVariables(path string, vars map[string]string) (Result, error) {
	var res Result

	info, err := os.Stat(path)
	if err != nil {
		return res, errors.Wrapf(err, "cannot access %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return res, errors.Wrapf(err, "failed to read %s", path)
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		if !validName.MatchString(name) {
			return res, errors.Newf("invalid variable name %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	lines := strings.SplitAfter(string(data), "\n")
	for _, name := range names {
		re := assignment(name)
		found := false
		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			eol := ""
			switch {
			case strings.HasSuffix(line, "\r\n"):
				eol = "\r\n"
			case strings.HasSuffix(line, "\n"):
				eol = "\n"
			}
			lines[i] = name + "=" + vars[name] + eol
			found = true
		}
		if found {
			log.Printf("* Set %s=%s in %s", name, vars[name], path)
			res.Set = append(res.Set, name)
		} else {
			log.Warnf("no assignment of %s in %s, left unchanged", name, path)
			res.Missing = append(res.Missing, name)
		}
	}

	if len(res.Set) == 0 {
		return res, nil
	}

	err = os.WriteFile(path, []byte(strings.Join(lines, "")), info.Mode().Perm())
	if err != nil {
		return res, errors.Wrapf(err, "failed to write %s", path)
	}

	return res, nil
}
