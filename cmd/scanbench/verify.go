// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigscan/scan"
	"github.com/grailbio/bigscan/scanflags"
	"github.com/grailbio/bigscan/strategy"
)

func verify(fl *scanflags.Flags, args []string) error {
	var (
		flags           = flag.NewFlagSet("verify", flag.ExitOnError)
		path            = flags.String("path", "", "dataset directory (local or URL)")
		nfiles          = flags.Int("nfiles", 4, "number of files to scan")
		p               = flags.Int("p", 4, "degree of parallelism of the parallel strategies")
		fileGranularity = flags.Bool("file-granularity", false, "partition by whole files instead of record ranges")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: scanbench verify [flags]\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	switch {
	case *path == "":
		return errors.E(errors.Invalid, "verify: no dataset path given; set -path")
	case *nfiles < 0 || *p < 0:
		return errors.E(errors.Invalid, "verify: -nfiles and -p must be non-negative")
	}
	b := startMachines(fl)
	defer b.Shutdown()
	var top status.Status
	displayStatus(fl, &top, b)

	ctx := context.Background()
	strategies := []strategy.Strategy{
		strategy.Sequential{},
		strategy.Threaded{},
		strategy.Process{B: b, FileGranularity: *fileGranularity, Status: top.Group("workers")},
	}
	var (
		tw     = tabwriter.NewWriter(os.Stdout, 4, 4, 1, ' ', 0)
		want   scan.Digest
		failed []string
	)
	fmt.Fprintf(tw, "strategy\telapsed\tselected\tdigest\tstats\n")
	for i, s := range strategies {
		r, err := s.Run(ctx, *path, *nfiles, *p)
		if err != nil {
			return errors.E(err, fmt.Sprintf("verify: %s", s.Name()))
		}
		d := scan.DigestOf(r.Sample)
		if i == 0 {
			want = d
		} else if d != want {
			failed = append(failed, s.Name())
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.Name(), r.Elapsed, len(r.Sample), d, r.Stats)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return errors.E(errors.Integrity, fmt.Sprintf("verify: strategies %v disagree with %s", failed, strategies[0].Name()))
	}
	return nil
}
