// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package synth generates synthetic candidate datasets. The generated
// distributions place a resonance peak inside the selection window so
// that a small, stable fraction of records is selected.
package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigscan/colfile"
	"github.com/grailbio/bigscan/scan"
)

const batchRows = 1 << 14

// Generate returns n synthetic records as columns indexed like
// scan.Columns.
func Generate(r *rand.Rand, n int) [][]float64 {
	cols := make([][]float64, len(scan.Columns))
	for i := range cols {
		cols[i] = make([]float64, n)
	}
	// charge, cosAlpha, vProb, lxy, lxyErr, ditrack_mass, vMass
	for i := 0; i < n; i++ {
		signal := r.Float64() < 0.3
		cols[0][i] = float64(r.Intn(3) - 1)
		cols[1][i] = 1 - math.Abs(r.NormFloat64()*0.01)
		cols[2][i] = r.Float64()
		cols[4][i] = 0.005 + 0.01*r.Float64()
		cols[3][i] = r.ExpFloat64() * 0.05
		if signal {
			cols[5][i] = 1.019 + r.NormFloat64()*0.003
			cols[6][i] = 5.367 + r.NormFloat64()*0.015
		} else {
			cols[5][i] = 0.99 + 0.06*r.Float64()
			cols[6][i] = 5.0 + 0.8*r.Float64()
		}
	}
	return cols
}

// Counts returns nfiles record counts around records, each varied
// uniformly by up to the fraction jitter.
func Counts(r *rand.Rand, nfiles, records int, jitter float64) []int {
	counts := make([]int, nfiles)
	for i := range counts {
		n := records
		if jitter > 0 {
			n += int(float64(records) * jitter * (2*r.Float64() - 1))
		}
		if n < 0 {
			n = 0
		}
		counts[i] = n
	}
	return counts
}

// Path returns the path of the i'th data file of a dataset in dir.
func Path(dir string, i int) string {
	return file.Join(dir, fmt.Sprintf("part-%04d%s", i, colfile.Ext))
}

// WriteDataset writes one data file per entry in counts to dir, the
// i'th file holding counts[i] records. The dataset is a deterministic
// function of seed. WriteDataset returns the paths written, in order.
func WriteDataset(ctx context.Context, dir string, counts []int, seed int64) ([]string, error) {
	r := rand.New(rand.NewSource(seed))
	paths := make([]string, len(counts))
	for i, n := range counts {
		paths[i] = Path(dir, i)
		if err := writeFile(ctx, paths[i], r, n); err != nil {
			return nil, errors.E(err, fmt.Sprintf("synth: write %s", paths[i]))
		}
		log.Debug.Printf("synth: wrote %d records to %s", n, paths[i])
	}
	return paths, nil
}

func writeFile(ctx context.Context, path string, r *rand.Rand, n int) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	w, err := colfile.NewWriter(f.Writer(ctx), scan.Columns, 0)
	if err != nil {
		return err
	}
	for n > 0 {
		m := n
		if m > batchRows {
			m = batchRows
		}
		if err := w.Append(Generate(r, m)); err != nil {
			return err
		}
		n -= m
	}
	return w.Close()
}
