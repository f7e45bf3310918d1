// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package scan implements the filtered column scan that is being
// measured: a fixed selection over B-meson candidate records, keeping
// the candidate mass of each selected record.
//
// The selection is evaluated one clause at a time over a bitmap of
// candidate row ids, so that each clause only inspects rows that
// survived the clauses before it.
package scan

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/grailbio/bigscan/stats"
)

// Column names of the candidate schema.
const (
	Charge      = "candidate_charge"
	CosAlpha    = "candidate_cosAlpha"
	VProb       = "candidate_vProb"
	Lxy         = "candidate_lxy"
	LxyErr      = "candidate_lxyErr"
	DitrackMass = "ditrack_mass"
	VMass       = "candidate_vMass"
)

// Columns lists every column read by the selection. The projected
// column, VMass, is last.
var Columns = []string{Charge, CosAlpha, VProb, Lxy, LxyErr, DitrackMass, VMass}

// Projected is the column whose values are kept for selected records.
const Projected = VMass

// Column indices into a chunk; must match Columns.
const (
	colCharge = iota
	colCosAlpha
	colVProb
	colLxy
	colLxyErr
	colDitrackMass
	colVMass
)

// A clause is one conjunct of the selection.
type clause struct {
	name string
	pass func(c chunk, i uint32) bool
}

// Chunk holds decoded columns, indexed like Columns.
type chunk [][]float64

// Selection is the fixed analysis cut. All clauses must pass for a
// record to be selected.
var selection = []clause{
	{"charge", func(c chunk, i uint32) bool {
		return c[colCharge][i] == 0
	}},
	{"cosAlpha", func(c chunk, i uint32) bool {
		return c[colCosAlpha][i] > 0.99
	}},
	{"vProb", func(c chunk, i uint32) bool {
		return c[colVProb][i] > 0.05
	}},
	{"significance", func(c chunk, i uint32) bool {
		return c[colLxy][i]/c[colLxyErr][i] > 3.0
	}},
	{"ditrackMass", func(c chunk, i uint32) bool {
		m := c[colDitrackMass][i]
		return m > 1.014 && m < 1.024
	}},
	{"vMass", func(c chunk, i uint32) bool {
		m := c[colVMass][i]
		return m > 5.33 && m < 5.40
	}},
}

// Select applies the selection to the first n rows of c and returns
// the ids of the rows that pass every clause. The number of rows
// passing each clause is added to the counter "pass.<clause>" in m.
func (c chunk) Select(n int, m *stats.Map) *roaring.Bitmap {
	rows := roaring.New()
	rows.AddRange(0, uint64(n))
	for _, cl := range selection {
		if rows.IsEmpty() {
			break
		}
		next := roaring.New()
		it := rows.Iterator()
		for it.HasNext() {
			if i := it.Next(); cl.pass(c, i) {
				next.Add(i)
			}
		}
		rows = next
		m.Int("pass." + cl.name).Add(int64(rows.GetCardinality()))
	}
	return rows
}

// Project appends the projected value of each selected row to out.
func (c chunk) Project(rows *roaring.Bitmap, out Sample) Sample {
	it := rows.Iterator()
	for it.HasNext() {
		out = append(out, c[colVMass][it.Next()])
	}
	return out
}

// Selected tells whether a single record, given as values indexed
// like Columns, passes the selection.
func Selected(record []float64) bool {
	c := make(chunk, len(record))
	for i, v := range record {
		c[i] = []float64{v}
	}
	return c.Select(1, nil).Contains(0)
}
