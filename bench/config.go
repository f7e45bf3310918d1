// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bench implements the resumable benchmark loop: it sweeps one
// variable over a range of values, measures a strategy at each value,
// and appends one row of timings per repetition to a results table.
// Because the table is only appended to, an interrupted sweep resumes
// from the number of rows already present.
package bench

import (
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/errors"
)

// A Variable names the quantity that is swept.
type Variable string

const (
	// Size sweeps the number of files, scanned sequentially.
	Size Variable = "size"
	// SizeMT sweeps the number of files, scanned by the parallel
	// strategy with a constant number of workers.
	SizeMT Variable = "size_mt"
	// Threads sweeps the number of workers of the parallel
	// strategy over a constant number of files.
	Threads Variable = "threads"
)

// Variables lists the supported variables.
var Variables = []Variable{Size, SizeMT, Threads}

// Config configures a sweep.
type Config struct {
	// Step is the distance between swept values.
	Step int
	// Loops is the number of repetitions of the sweep.
	Loops int
	// Max is the largest swept value.
	Max int
	// Path is the dataset directory.
	Path string
	// Output is the directory in which the results table is written.
	Output string
	// Variable is the swept variable.
	Variable Variable
	// NThreads is the constant number of workers when sweeping
	// SizeMT.
	NThreads int
	// NFiles is the constant number of files when sweeping Threads.
	NFiles int
}

// Validate checks the configuration, returning an error of kind
// errors.Invalid describing the first problem found.
func (c Config) Validate() error {
	var known bool
	for _, v := range Variables {
		known = known || v == c.Variable
	}
	switch {
	case !known:
		return errors.E(errors.Invalid, fmt.Sprintf("bench: unknown variable %q; expected one of %v", c.Variable, Variables))
	case c.Step <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("bench: step must be positive, got %d", c.Step))
	case c.Loops < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("bench: loops must be non-negative, got %d", c.Loops))
	case c.Max < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("bench: max must be non-negative, got %d", c.Max))
	case c.Variable == SizeMT && c.NThreads < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("bench: negative thread count %d", c.NThreads))
	case c.Variable == Threads && c.NFiles < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("bench: negative file count %d", c.NFiles))
	case c.Output == "":
		return errors.E(errors.Invalid, "bench: no output directory")
	}
	return nil
}

// Values returns the swept values: 0, Step, 2*Step, ... up to and
// including the largest multiple of Step that does not exceed
// Max+Step-1.
func (c Config) Values() []int {
	var vals []int
	for v := 0; v < c.Max+c.Step; v += c.Step {
		vals = append(vals, v)
	}
	return vals
}

// Constant returns the value held constant during the sweep, if
// any.
func (c Config) Constant() (int, bool) {
	switch c.Variable {
	case SizeMT:
		return c.NThreads, true
	case Threads:
		return c.NFiles, true
	}
	return 0, false
}

// Parallel tells whether the sweep measures the parallel strategy.
func (c Config) Parallel() bool {
	return c.Variable != Size
}

// Args returns the file count and parallelism of the measurement at
// swept value v.
func (c Config) Args(v int) (nfiles, p int) {
	switch c.Variable {
	case SizeMT:
		return v, c.NThreads
	case Threads:
		return c.NFiles, v
	}
	return v, 0
}

// TablePath returns the path of the sweep's results table. The name
// encodes the sweep's parameters, so that sweeps with different
// parameters never share a table.
func (c Config) TablePath() string {
	var name string
	if k, ok := c.Constant(); ok {
		name = fmt.Sprintf("runtime_vs_%s_%d_%d_%d_%d.csv", c.Variable, k, c.Max, c.Step, c.Loops)
	} else {
		name = fmt.Sprintf("runtime_vs_%s_%d_%d_%d.csv", c.Variable, c.Max, c.Step, c.Loops)
	}
	return filepath.Join(c.Output, name)
}
