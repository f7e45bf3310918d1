// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scan

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigscan/partition"
	"github.com/grailbio/bigscan/stats"
)

// A Sample is the set of projected values of the selected records.
// The order of values in a sample carries no meaning.
type Sample []float64

// A Source is a data file from which records can be read.
// Implementations must be safe for concurrent reads.
type Source interface {
	// Records returns the number of records in the source.
	Records() int64
	// Read returns the named columns for records [start, end).
	Read(columns []string, start, end int64) ([][]float64, error)
}

// Process reads the records covered by span from sources, applies
// the selection, and returns the projected values of the selected
// records. Span offsets index into sources. An empty span produces an
// empty sample.
//
// Process counts the records read ("records"), the records selected
// ("selected"), and the sources touched ("sources") in m.
func Process(ctx context.Context, sources []Source, span partition.Span, m *stats.Map) (Sample, error) {
	if span.Empty() {
		return nil, nil
	}
	if span.End.Source >= len(sources) {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("scan: span %s exceeds %d sources", span, len(sources)))
	}
	var sample Sample
	for i := span.Start.Source; i <= span.End.Source; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start, end := span.Range(i, sources[i].Records())
		var err error
		sample, err = processRange(sources[i], start, end, sample, m)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("scan: source %d", i))
		}
		m.Int("sources").Add(1)
	}
	return sample, nil
}

// ProcessRange appends to out the projected values of the selected
// records in [start, end) of src.
func processRange(src Source, start, end int64, out Sample, m *stats.Map) (Sample, error) {
	if start == end {
		return out, nil
	}
	cols, err := src.Read(Columns, start, end)
	if err != nil {
		return nil, err
	}
	n := int(end - start)
	rows := chunk(cols).Select(n, m)
	m.Int("records").Add(int64(n))
	m.Int("selected").Add(int64(rows.GetCardinality()))
	return chunk(cols).Project(rows, out), nil
}
