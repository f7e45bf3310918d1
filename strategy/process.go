// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigscan/catalog"
	"github.com/grailbio/bigscan/internal/trace"
	"github.com/grailbio/bigscan/partition"
	"github.com/grailbio/bigscan/scan"
	"github.com/grailbio/bigscan/stats"
	"golang.org/x/sync/errgroup"
)

func init() {
	gob.Register(&scanner{})
}

// A WorkerFailedError is returned by the process strategy when some
// worker did not deliver a complete result: the call failed, the
// reply was missing, or the reply did not cover its span.
type WorkerFailedError struct {
	// Want is the number of spans dispatched.
	Want int
	// Got is the number of complete replies received.
	Got int
	// Err is the underlying error, if any.
	Err error
}

func (e *WorkerFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("strategy: received %d of %d worker results", e.Got, e.Want)
	}
	return fmt.Sprintf("strategy: received %d of %d worker results: %v", e.Got, e.Want, e.Err)
}

// Unwrap returns the underlying error.
func (e *WorkerFailedError) Unwrap() error { return e.Err }

// Process partitions the dataset into p spans and scans each span in
// its own bigmachine machine. The measured time covers the whole
// pipeline: opening the catalog, partitioning, starting the machines,
// scanning and merging the workers' replies. Machines are stopped
// after each run.
type Process struct {
	// B is the bigmachine instance in which worker machines are
	// started.
	B *bigmachine.B
	// FileGranularity partitions by whole files instead of by
	// record ranges.
	FileGranularity bool
	// Trace, if not nil, records the time spent by each worker.
	Trace *trace.Recorder
	// Status, if not nil, reports the state of each worker.
	Status *status.Group

	// planned, if not nil, is called with the dataset's paths once the
	// plan is fixed and before any machine is started.
	planned func(paths []string)
}

// Name implements Strategy.
func (Process) Name() string { return "processes" }

// Run implements Strategy. If p is zero, Run delegates to
// Sequential.
func (s Process) Run(ctx context.Context, dir string, nfiles, p int) (Result, error) {
	if p == 0 {
		return Sequential{}.Run(ctx, dir, nfiles, p)
	}
	if nfiles == 0 {
		return Result{}, nil
	}
	if s.B == nil {
		return Result{}, errors.E(errors.Invalid, "strategy: process strategy requires a bigmachine instance")
	}
	start := time.Now()
	c, err := catalog.Open(ctx, dir, nfiles)
	if err != nil {
		return Result{}, err
	}
	var (
		counts = c.Counts()
		paths  = c.Paths()
		total  = c.Total()
		plan   partition.Plan
	)
	closeCatalog(c)
	if s.FileGranularity {
		plan = partition.Files(counts, p)
	} else {
		plan = partition.Ranges(counts, p)
	}
	if s.planned != nil {
		s.planned(paths)
	}
	machines, err := s.B.Start(ctx, len(plan), bigmachine.Services{"Scanner": &scanner{}})
	if err != nil {
		return Result{}, errors.E(err, "strategy: start machines")
	}
	defer func() {
		for _, m := range machines {
			m.Cancel()
		}
	}()
	spawned := time.Now()
	s.Trace.Span(0, "driver", "open+partition+start", start, spawned, map[string]interface{}{"spans": len(plan), "records": total})

	var (
		g       errgroup.Group
		replies = make(chan scanReply, len(plan))
	)
	for i := range plan {
		i, m := i, machines[i]
		g.Go(func() error {
			task := s.Status.Start()
			defer task.Done()
			task.Print("waiting for machine to boot")
			<-m.Wait(bigmachine.Running)
			if err := m.Err(); err != nil {
				task.Printf("failed to start: %v", err)
				return errors.E(err, fmt.Sprintf("strategy: machine %s", m.Addr))
			}
			task.Title(m.Addr)
			req := newScanRequest(i, plan[i], paths)
			task.Printf("scanning span %s", plan[i])
			var reply scanReply
			if err := m.Call(ctx, "Scanner.Scan", req, &reply); err != nil {
				task.Printf("failed: %v", err)
				return errors.E(err, fmt.Sprintf("strategy: span %d on %s", i, m.Addr))
			}
			args := map[string]interface{}{"records": reply.Records, "selected": len(reply.Values), "machine": m.Addr}
			if !plan[i].Empty() && plan[i].End.Offset > 0 {
				args["last"] = plan[i].Last().String()
			}
			s.Trace.Span(i+1, "scan", plan[i].String(), reply.Start, reply.End, args)
			replies <- reply
			return nil
		})
	}
	err = g.Wait()
	close(replies)
	sample, vals, got, cerr := collect(plan, counts, replies)
	if err == nil {
		err = cerr
	}
	if err != nil {
		log.Error.Printf("strategy %s: %v", s.Name(), err)
		return Result{}, &WorkerFailedError{Want: len(plan), Got: got, Err: err}
	}
	elapsed := time.Since(start)
	s.Trace.Span(0, "driver", "merge", spawned, time.Now(), nil)
	return Result{Sample: sample, Elapsed: elapsed, Stats: vals}, nil
}

// Collect merges the replies into a single sample. It verifies that
// there is exactly one reply per span in plan and that each reply
// covered its whole span. Collect returns the number of valid
// replies, and a non-nil error if any span is not accounted for.
func collect(plan partition.Plan, counts []int64, replies <-chan scanReply) (scan.Sample, stats.Values, int, error) {
	var (
		seen   = make([]bool, len(plan))
		sample scan.Sample
		vals   = make(stats.Values)
		got    int
		err    error
	)
	for r := range replies {
		switch {
		case r.Index < 0 || r.Index >= len(plan):
			err = errors.E(errors.Integrity, fmt.Sprintf("reply for unknown span %d", r.Index))
			continue
		case seen[r.Index]:
			err = errors.E(errors.Integrity, fmt.Sprintf("duplicate reply for span %d", r.Index))
			continue
		}
		seen[r.Index] = true
		if want := plan[r.Index].Len(counts); r.Records != want {
			err = errors.E(errors.Integrity,
				fmt.Sprintf("span %d %s: worker read %d records, want %d", r.Index, plan[r.Index], r.Records, want))
			continue
		}
		got++
		sample = append(sample, r.Values...)
		vals.Merge(r.Stats)
	}
	if err == nil && got < len(plan) {
		for i := range seen {
			if !seen[i] {
				err = errors.E(errors.Integrity, fmt.Sprintf("missing reply for span %d %s", i, plan[i]))
				break
			}
		}
	}
	return sample, vals, got, err
}

// ScanRequest describes a span of work for a scanner. The span is
// rebased onto Paths: source 0 of the span is Paths[0].
type scanRequest struct {
	Index int
	Paths []string
	Span  partition.Span
}

func newScanRequest(i int, span partition.Span, paths []string) scanRequest {
	req := scanRequest{Index: i}
	if span.Empty() {
		return req
	}
	first := span.Start.Source
	req.Paths = paths[first : span.End.Source+1]
	req.Span = partition.Span{
		Start: partition.Cursor{Source: 0, Offset: span.Start.Offset},
		End:   partition.Cursor{Source: span.End.Source - first, Offset: span.End.Offset},
	}
	return req
}

// ScanReply is a scanner's result for a single span. The worker
// owns its sample and hands it back by value.
type scanReply struct {
	Index      int
	Values     scan.Sample
	Records    int64
	Stats      stats.Values
	Start, End time.Time
}

// Scanner is the bigmachine service that scans spans of a dataset
// inside worker machines.
type scanner struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}
}

// Scan opens the files named in req, scans the request's span, and
// returns the selected values.
func (s *scanner) Scan(ctx context.Context, req scanRequest, reply *scanReply) error {
	reply.Index = req.Index
	reply.Start = time.Now()
	defer func() { reply.End = time.Now() }()
	if req.Span.Empty() {
		return nil
	}
	c, err := catalog.OpenPaths(ctx, req.Paths)
	if err != nil {
		return err
	}
	defer closeCatalog(c)
	m := stats.NewMap()
	sample, err := scan.Process(ctx, sources(c), req.Span, m)
	if err != nil {
		return err
	}
	reply.Values = sample
	reply.Stats = m.Values()
	reply.Records = reply.Stats["records"]
	return nil
}
