// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scan

import (
	"context"

	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bigscan/colfile"
	"github.com/grailbio/bigscan/stats"
)

// An Engine evaluates the selection over a set of sources using a
// bounded pool of goroutines. The engine partitions the work itself:
// each source is cut into chunks aligned to its storage blocks, and
// chunks are handed out to at most Threads concurrent workers.
type Engine struct {
	// Threads is the maximum number of chunks processed
	// concurrently. Values less than one are treated as one.
	Threads int
	// ChunkRows is the number of records per chunk. If zero, the
	// block size of each source is used when the source exposes
	// one, otherwise colfile.DefaultBlockRows.
	ChunkRows int
}

type task struct {
	source     int
	start, end int64
}

// Run evaluates the selection over every record of sources and
// returns the combined sample. If any chunk fails, Run returns the
// error and no sample.
func (e Engine) Run(ctx context.Context, sources []Source, m *stats.Map) (Sample, error) {
	var tasks []task
	for i, src := range sources {
		rows := int64(e.chunkRows(src))
		n := src.Records()
		for off := int64(0); off < n; off += rows {
			end := off + rows
			if end > n {
				end = n
			}
			tasks = append(tasks, task{i, off, end})
		}
		m.Int("sources").Add(1)
	}
	threads := e.Threads
	if threads < 1 {
		threads = 1
	}
	// Each chunk owns its result slot; they are concatenated in order
	// once all chunks are done.
	results := make([]Sample, len(tasks))
	err := traverse.Limit(threads).Each(len(tasks), func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := tasks[i]
		var err error
		results[i], err = processRange(sources[t.source], t.start, t.end, nil, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	var n int
	for _, r := range results {
		n += len(r)
	}
	sample := make(Sample, 0, n)
	for _, r := range results {
		sample = append(sample, r...)
	}
	return sample, nil
}

func (e Engine) chunkRows(src Source) int {
	if e.ChunkRows > 0 {
		return e.ChunkRows
	}
	if b, ok := src.(interface{ BlockRows() int }); ok && b.BlockRows() > 0 {
		return b.BlockRows()
	}
	return colfile.DefaultBlockRows
}
