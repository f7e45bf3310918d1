// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bench

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/grailbio/base/errors"
)

// Quartiles summarizes the measurements of one swept value, in
// seconds.
type Quartiles struct {
	Value      string
	N          int
	Min, Max   float64
	Q1, Q2, Q3 float64
}

// Summarize reads the results table at path and returns the
// quartiles of each column. Columns without measurements are
// omitted.
func Summarize(path string) ([]Quartiles, error) {
	t := &Table{Path: path}
	rows, err := t.Seconds()
	if err != nil {
		return nil, err
	}
	var qs []Quartiles
	for j, value := range t.Header {
		col := make([]float64, len(rows))
		for i := range rows {
			col[i] = rows[i][j]
		}
		if len(col) == 0 {
			continue
		}
		sort.Float64s(col)
		q := Quartiles{Value: value, N: len(col), Min: col[0], Max: col[len(col)-1]}
		q.Q1, q.Q2, q.Q3 = quartiles(col)
		qs = append(qs, q)
	}
	if len(qs) == 0 && len(t.Header) > 0 {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("bench: table %s holds no measurements", path))
	}
	return qs, nil
}

// WriteSummary writes qs to w as a table.
func WriteSummary(w io.Writer, variable string, qs []Quartiles) error {
	tw := tabwriter.NewWriter(w, 4, 4, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\tn\tmin\tq1\tq2\tq3\tmax\t\n", variable)
	for _, q := range qs {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n",
			q.Value, q.N, q.Min, q.Q1, q.Q2, q.Q3, q.Max)
	}
	return tw.Flush()
}

// quartiles returns the quartiles of xs, using Tukey's method. q2 is the
// median of xs. q2 splits xs into two halves. q1 is the median of the lower
// half. q3 is the median of the upper half. If len(xs) is odd, q2 is included
// in the halves. xs must be sorted and non-empty.
func quartiles(xs []float64) (q1, q2, q3 float64) {
	mid := len(xs) / 2
	q2 = median(xs)
	q3 = xs[len(xs)-1]
	if len(xs) > 1 {
		q3 = median(xs[mid:])
	}
	right := mid
	if len(xs)%2 != 0 {
		right = mid + 1
	}
	q1 = median(xs[:right])
	return
}

func median(xs []float64) float64 {
	mid := len(xs) / 2
	if len(xs)%2 == 0 {
		return xs[mid-1]/2 + xs[mid]/2
	}
	return xs[mid]
}
