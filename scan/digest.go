// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scan

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// A Digest summarizes a sample as a multiset: two samples have equal
// digests (with high probability) exactly when they contain the same
// values with the same multiplicities, in any order. Digests of
// disjoint samples may be merged.
type Digest struct {
	Count int64
	Sum   uint64
}

// Add adds the value v to the digest.
func (d *Digest) Add(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	d.Count++
	d.Sum += murmur3.Sum64(b[:])
}

// AddAll adds every value in s to the digest.
func (d *Digest) AddAll(s Sample) {
	for _, v := range s {
		d.Add(v)
	}
}

// Merge adds the values summarized by e to d.
func (d *Digest) Merge(e Digest) {
	d.Count += e.Count
	d.Sum += e.Sum
}

func (d Digest) String() string {
	return fmt.Sprintf("%d/%016x", d.Count, d.Sum)
}

// DigestOf returns the digest of sample s.
func DigestOf(s Sample) Digest {
	var d Digest
	d.AddAll(s)
	return d
}
