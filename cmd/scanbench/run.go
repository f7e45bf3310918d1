// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigscan/bench"
	"github.com/grailbio/bigscan/internal/trace"
	"github.com/grailbio/bigscan/scanflags"
	"github.com/grailbio/bigscan/strategy"
	"github.com/prometheus/client_golang/prometheus"
)

func run(fl *scanflags.Flags, args []string) error {
	var (
		flags           = flag.NewFlagSet("run", flag.ExitOnError)
		step            = flags.Int("step", 4, "distance between swept values")
		loops           = flags.Int("loops", 20, "number of repetitions of the sweep")
		maxValue        = flags.Int("max", 128, "largest swept value")
		path            = flags.String("path", "", "dataset directory (local or URL)")
		output          = flags.String("output", "results", "directory for results tables")
		variable        = flags.String("variable", "size", "swept variable: size, size_mt, or threads")
		nthreads        = flags.Int("nthreads", 32, "number of workers when sweeping size_mt")
		nfiles          = flags.Int("nfiles", 128, "number of files when sweeping threads")
		parallel        = flags.String("parallel", "processes", "parallel strategy: threads or processes")
		fileGranularity = flags.Bool("file-granularity", false, "partition by whole files instead of record ranges")
		tracePath       = flags.String("trace", "", "write a Chrome trace of process workers to this path")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: scanbench run [flags]\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	config := bench.Config{
		Step:     *step,
		Loops:    *loops,
		Max:      *maxValue,
		Path:     *path,
		Output:   *output,
		Variable: bench.Variable(*variable),
		NThreads: *nthreads,
		NFiles:   *nfiles,
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Path == "" {
		return errors.E(errors.Invalid, "run: no dataset path given; set -path")
	}

	var (
		top   status.Status
		rec   *trace.Recorder
		loop  = &bench.Loop{Config: config, Sequential: strategy.Sequential{}}
		ctx   = context.Background()
		start = time.Now()
	)
	if *tracePath != "" {
		rec = trace.NewRecorder(start)
	}
	switch *parallel {
	case "threads":
		loop.Parallel = strategy.Threaded{}
		displayStatus(fl, &top, nil)
	case "processes":
		b := startMachines(fl)
		defer b.Shutdown()
		loop.Parallel = strategy.Process{
			B:               b,
			FileGranularity: *fileGranularity,
			Trace:           rec,
			Status:          top.Group("workers"),
		}
		displayStatus(fl, &top, b)
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("run: unknown parallel strategy %q; expected threads or processes", *parallel))
	}
	loop.Status = top.Group("bench")
	loop.Metrics = bench.NewMetrics(prometheus.DefaultRegisterer)

	err := loop.Run(ctx)
	log.Printf("run: %s after %s", loop.State(), time.Since(start))
	if rec != nil {
		if terr := writeTrace(ctx, *tracePath, rec); terr != nil {
			log.Error.Printf("run: %v", terr)
		}
	}
	return err
}
