// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package strategy implements the execution strategies under
// measurement. Each strategy runs the same scan over the first nfiles
// data files of a dataset with some degree of parallelism p, and
// reports the wall-clock time of the part of the work it is
// responsible for.
//
// Every strategy treats nfiles == 0 as an empty measurement: it
// returns immediately with zero elapsed time and an empty sample,
// without accessing storage.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigscan/catalog"
	"github.com/grailbio/bigscan/partition"
	"github.com/grailbio/bigscan/scan"
	"github.com/grailbio/bigscan/stats"
)

// Result is the outcome of a single strategy run.
type Result struct {
	// Sample holds the projected values of all selected records.
	Sample scan.Sample
	// Elapsed is the measured wall-clock time.
	Elapsed time.Duration
	// Stats holds the scan counters accumulated during the run.
	Stats stats.Values
}

// A Strategy runs the scan over a dataset.
type Strategy interface {
	// Name returns the strategy's name as it appears in results and
	// metrics.
	Name() string
	// Run scans the first nfiles data files in dir with parallelism
	// p. Strategies that cannot run in parallel ignore p; strategies
	// that can treat p == 0 as a request to run sequentially.
	Run(ctx context.Context, dir string, nfiles, p int) (Result, error)
}

// Measure runs s and returns its elapsed time.
func Measure(ctx context.Context, s Strategy, dir string, nfiles, p int) (time.Duration, error) {
	if nfiles < 0 || p < 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("strategy: invalid nfiles %d or parallelism %d", nfiles, p))
	}
	r, err := s.Run(ctx, dir, nfiles, p)
	if err != nil {
		return 0, err
	}
	log.Debug.Printf("strategy %s: nfiles=%d p=%d: %s (%s)", s.Name(), nfiles, p, r.Elapsed, r.Stats)
	return r.Elapsed, nil
}

// Sequential scans every record with a single scan worker in the
// calling goroutine. Opening the dataset is not measured.
type Sequential struct{}

// Name implements Strategy.
func (Sequential) Name() string { return "sequential" }

// Run implements Strategy.
func (Sequential) Run(ctx context.Context, dir string, nfiles, _ int) (Result, error) {
	if nfiles == 0 {
		return Result{}, nil
	}
	c, err := catalog.Open(ctx, dir, nfiles)
	if err != nil {
		return Result{}, err
	}
	defer closeCatalog(c)
	var (
		m     = stats.NewMap()
		start = time.Now()
		span  = partition.Ranges(c.Counts(), 1)[0]
	)
	sample, err := scan.Process(ctx, sources(c), span, m)
	if err != nil {
		return Result{}, err
	}
	return Result{Sample: sample, Elapsed: time.Since(start), Stats: m.Values()}, nil
}

// Threaded scans the dataset with a pool of p goroutines sharing the
// open sources. The pool partitions the work itself; the range
// partitioner is not used. Opening the dataset is not measured.
type Threaded struct {
	// ChunkRows overrides the engine's chunk size; see scan.Engine.
	ChunkRows int
}

// Name implements Strategy.
func (Threaded) Name() string { return "threads" }

// Run implements Strategy. If p is zero, Run delegates to
// Sequential.
func (t Threaded) Run(ctx context.Context, dir string, nfiles, p int) (Result, error) {
	if p == 0 {
		return Sequential{}.Run(ctx, dir, nfiles, p)
	}
	if nfiles == 0 {
		return Result{}, nil
	}
	c, err := catalog.Open(ctx, dir, nfiles)
	if err != nil {
		return Result{}, err
	}
	defer closeCatalog(c)
	var (
		m      = stats.NewMap()
		start  = time.Now()
		engine = scan.Engine{Threads: p, ChunkRows: t.ChunkRows}
	)
	sample, err := engine.Run(ctx, sources(c), m)
	if err != nil {
		return Result{}, err
	}
	return Result{Sample: sample, Elapsed: time.Since(start), Stats: m.Values()}, nil
}

func sources(c *catalog.Catalog) []scan.Source {
	srcs := make([]scan.Source, len(c.Sources))
	for i, src := range c.Sources {
		srcs[i] = src
	}
	return srcs
}

func closeCatalog(c *catalog.Catalog) {
	if err := c.Close(); err != nil {
		log.Error.Printf("strategy: close catalog: %v", err)
	}
}
