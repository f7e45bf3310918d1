// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bench

import (
	"context"
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigscan/catalog"
	"github.com/grailbio/bigscan/strategy"
)

// State is the state of a benchmark loop.
type State int

const (
	// NotStarted is the initial state.
	NotStarted State = iota
	// WarmingUp indicates that the loop is running its discarded
	// warm-up measurement.
	WarmingUp
	// Measuring indicates that the loop is running repetitions.
	Measuring
	// Done indicates that the table holds every repetition.
	Done
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case WarmingUp:
		return "warming up"
	case Measuring:
		return "measuring"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// A Loop runs a sweep to completion, resuming from whatever a previous
// run of the same sweep left in its results table.
type Loop struct {
	// Config is the sweep's configuration.
	Config Config
	// Sequential is the strategy measured when sweeping Size.
	Sequential strategy.Strategy
	// Parallel is the strategy measured when sweeping SizeMT or
	// Threads.
	Parallel strategy.Strategy
	// Status, if not nil, reports the loop's progress.
	Status *status.Group
	// Metrics, if not nil, exports each measurement.
	Metrics *Metrics

	state State
	rep   int
}

// State returns the loop's current state.
func (l *Loop) State() State { return l.state }

// Strategy returns the strategy measured by the loop.
func (l *Loop) Strategy() strategy.Strategy {
	if l.Config.Parallel() {
		return l.Parallel
	}
	return l.Sequential
}

func (l *Loop) setState(s State) {
	log.Debug.Printf("bench %s: %s -> %s", l.Config.Variable, l.state, s)
	l.state = s
}

// Run runs the loop until the results table holds Loops rows. The
// configuration, and the presence of the files the sweep reads, are
// validated before anything is written. Run may be
// called again after a failure, and continues where the table left
// off.
func (l *Loop) Run(ctx context.Context) error {
	cfg := l.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	s := l.Strategy()
	if s == nil {
		return errors.E(errors.Invalid, fmt.Sprintf("bench: no strategy for variable %s", cfg.Variable))
	}
	l.state = NotStarted
	values := cfg.Values()
	if err := checkDataset(ctx, cfg, values); err != nil {
		return err
	}
	table := NewTable(cfg.TablePath(), values)
	if err := table.Repair(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Output, 0777); err != nil {
		return errors.E(err, fmt.Sprintf("bench: create output directory %s", cfg.Output))
	}
	created, err := table.Create()
	if err != nil {
		return err
	}
	if created {
		log.Printf("bench: created results table %s", table.Path)
		if err := WriteRunInfo(RunInfoPath(table.Path), NewRunInfo(cfg, s.Name())); err != nil {
			return err
		}
	}
	rows, err := table.Rows()
	if err != nil {
		return err
	}
	if rows >= cfg.Loops {
		log.Printf("bench: %s already holds %d of %d repetitions", table.Path, rows, cfg.Loops)
		l.setState(Done)
		return nil
	}

	task := l.Status.Start(fmt.Sprintf("%s %s", s.Name(), cfg.Variable))
	defer task.Done()

	l.setState(WarmingUp)
	if len(values) > 1 {
		nfiles, p := cfg.Args(values[1])
		task.Printf("warming up at %s=%d", cfg.Variable, values[1])
		if _, err := strategy.Measure(ctx, s, cfg.Path, nfiles, p); err != nil {
			return errors.E(err, "bench: warm-up")
		}
	}

	l.setState(Measuring)
	for {
		rows, err := table.Rows()
		if err != nil {
			return err
		}
		l.rep = rows
		if rows >= cfg.Loops {
			break
		}
		row := make([]float64, len(values))
		for i, v := range values {
			if err := ctx.Err(); err != nil {
				return err
			}
			task.Printf("repetition %d/%d: %s=%d", rows+1, cfg.Loops, cfg.Variable, v)
			nfiles, p := cfg.Args(v)
			d, err := strategy.Measure(ctx, s, cfg.Path, nfiles, p)
			if err != nil {
				return errors.E(err, fmt.Sprintf("bench: repetition %d: %s=%d", rows+1, cfg.Variable, v))
			}
			l.Metrics.observe(s.Name(), cfg.Variable, v, d)
			row[i] = d.Seconds()
		}
		if err := table.Append(row); err != nil {
			return err
		}
		l.Metrics.repetition(s.Name(), cfg.Variable)
		log.Printf("bench: %s: repetition %d/%d complete", table.Path, rows+1, cfg.Loops)
	}
	l.setState(Done)
	task.Printf("done: %d repetitions", l.rep)
	return nil
}

// CheckDataset verifies that cfg.Path holds as many data files as the
// largest measurement of the sweep reads. Only the directory listing
// is consulted.
func checkDataset(ctx context.Context, cfg Config, values []int) error {
	var need int
	for _, v := range values {
		if nfiles, _ := cfg.Args(v); nfiles > need {
			need = nfiles
		}
	}
	if need == 0 {
		return nil
	}
	if cfg.Path == "" {
		return errors.E(errors.Invalid, fmt.Sprintf("bench: no dataset path; sweep reads up to %d files", need))
	}
	paths, err := catalog.List(ctx, cfg.Path)
	if err != nil {
		return err
	}
	if len(paths) < need {
		return errors.E(errors.NotExist,
			fmt.Sprintf("bench: dataset %s: sweep reads up to %d files, found %d", cfg.Path, need, len(paths)))
	}
	return nil
}
