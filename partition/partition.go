// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package partition splits a sequence of sources, each holding some
// number of records, into contiguous spans of work. Spans produced by
// a single call never overlap and, taken in order, cover every record
// of every source exactly once.
package partition

import (
	"fmt"
)

// A Cursor is a record position: the record at Offset within source
// Source.
type Cursor struct {
	Source int
	Offset int64
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d", c.Source, c.Offset)
}

// A Span is a contiguous range of records, beginning at Start and
// ending before End. Records of sources strictly between Start.Source
// and End.Source are included in full. End.Offset is exclusive:
// the last record of the span within End.Source is End.Offset-1.
type Span struct {
	Start, End Cursor
}

func (s Span) String() string {
	return fmt.Sprintf("[%s, %s)", s.Start, s.End)
}

// Empty tells whether the span contains no records.
func (s Span) Empty() bool {
	return s.Start == s.End
}

// Last returns the position of the last record in the span. Last is
// only meaningful for spans whose final source contributes at least
// one record.
func (s Span) Last() Cursor {
	return Cursor{s.End.Source, s.End.Offset - 1}
}

// Range returns the record range [start, end) of source i covered by
// the span, given the record count of that source. Range returns an
// empty range for sources outside of the span.
func (s Span) Range(i int, count int64) (start, end int64) {
	if s.Empty() || i < s.Start.Source || i > s.End.Source {
		return 0, 0
	}
	start, end = 0, count
	if i == s.Start.Source {
		start = s.Start.Offset
	}
	if i == s.End.Source {
		end = s.End.Offset
	}
	if end < start {
		end = start
	}
	return
}

// Len returns the number of records in the span, given the record
// counts of the partitioned sources.
func (s Span) Len(counts []int64) int64 {
	if s.Empty() {
		return 0
	}
	var n int64
	for i := s.Start.Source; i <= s.End.Source && i < len(counts); i++ {
		start, end := s.Range(i, counts[i])
		n += end - start
	}
	return n
}

// A Plan is an ordered set of spans produced by a single
// partitioning.
type Plan []Span

// Records returns the total number of records covered by the plan.
func (p Plan) Records(counts []int64) int64 {
	var n int64
	for _, s := range p {
		n += s.Len(counts)
	}
	return n
}

// Ranges partitions the records described by counts into n spans.
// Each span is given ceil(total/n) records, walking forward through
// the sources from where the previous span ended. If the final
// source runs out before a span's quota is met, the span is truncated
// at the end of the final source; spans that follow it are empty.
// Thus every span but the last nonempty one holds exactly the same
// number of records.
//
// If the sources hold no records, Ranges returns n empty spans.
// Ranges panics if n <= 0: callers should run sequentially instead.
func Ranges(counts []int64, n int) Plan {
	if n <= 0 {
		panic(fmt.Sprintf("partition.Ranges: invalid span count %d", n))
	}
	var total int64
	for _, c := range counts {
		if c < 0 {
			panic(fmt.Sprintf("partition.Ranges: negative record count %d", c))
		}
		total += c
	}
	size := (total + int64(n) - 1) / int64(n)
	var (
		plan = make(Plan, n)
		cur  Cursor
	)
	for i := range plan {
		end := advance(counts, cur, size)
		plan[i] = Span{Start: cur, End: end}
		cur = end
	}
	return plan
}

// Advance returns the cursor that lies need records past cur, clamped
// to the end of the final source.
func advance(counts []int64, cur Cursor, need int64) Cursor {
	if len(counts) == 0 {
		return cur
	}
	for {
		remain := counts[cur.Source] - cur.Offset
		switch {
		case need <= remain:
			return Cursor{cur.Source, cur.Offset + need}
		case cur.Source == len(counts)-1:
			return Cursor{cur.Source, counts[cur.Source]}
		}
		need -= remain
		cur = Cursor{cur.Source + 1, 0}
	}
}

// Files partitions whole sources into at most n spans. If there are
// fewer sources than n, one span is produced per source. Otherwise
// sources are distributed as evenly as possible by count, with the
// first len(counts)%n spans receiving one extra source. Records are
// not considered: spans may be arbitrarily unbalanced when sources
// differ in size.
func Files(counts []int64, n int) Plan {
	if n <= 0 {
		panic(fmt.Sprintf("partition.Files: invalid span count %d", n))
	}
	if n > len(counts) {
		n = len(counts)
	}
	var (
		plan = make(Plan, 0, n)
		cur  int
	)
	for i := 0; i < n; i++ {
		m := len(counts) / n
		if i < len(counts)%n {
			m++
		}
		last := cur + m - 1
		plan = append(plan, Span{
			Start: Cursor{cur, 0},
			End:   Cursor{last, counts[last]},
		})
		cur += m
	}
	return plan
}
