// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigscan/internal/synth"
)

func gen(args []string) error {
	var (
		flags   = flag.NewFlagSet("gen", flag.ExitOnError)
		path    = flags.String("path", "", "directory in which to write the dataset")
		nfiles  = flags.Int("nfiles", 32, "number of files")
		records = flags.Int("records", 100000, "average number of records per file")
		jitter  = flags.Float64("jitter", 0.2, "maximum relative deviation of a file's record count from -records")
		seed    = flags.Int64("seed", 1, "random seed")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: scanbench gen [flags]\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	switch {
	case *path == "":
		return errors.E(errors.Invalid, "gen: no output path given; set -path")
	case *nfiles < 0 || *records < 0:
		return errors.E(errors.Invalid, "gen: -nfiles and -records must be non-negative")
	case *jitter < 0 || *jitter > 1:
		return errors.E(errors.Invalid, "gen: -jitter must be in [0, 1]")
	}
	if local(*path) {
		if err := os.MkdirAll(*path, 0777); err != nil {
			return err
		}
	}
	counts := synth.Counts(rand.New(rand.NewSource(*seed)), *nfiles, *records, *jitter)
	paths, err := synth.WriteDataset(context.Background(), *path, counts, *seed)
	if err != nil {
		return err
	}
	var total int
	for _, n := range counts {
		total += n
	}
	log.Printf("gen: wrote %d records in %d files to %s", total, len(paths), *path)
	return nil
}
