// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package colfile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func fuzzColumns(fz *fuzz.Fuzzer, ncol, n int) [][]float64 {
	cols := make([][]float64, ncol)
	for i := range cols {
		cols[i] = make([]float64, n)
		for j := range cols[i] {
			var v int32
			fz.Fuzz(&v)
			cols[i][j] = float64(v) / 7
		}
	}
	return cols
}

func writeFile(t *testing.T, w *bytes.Buffer, columns []string, blockRows int, batches ...[][]float64) {
	t.Helper()
	wr, err := NewWriter(w, columns, blockRows)
	assert.NoError(t, err)
	for _, batch := range batches {
		assert.NoError(t, wr.Append(batch))
	}
	assert.NoError(t, wr.Close())
}

func TestReadRanges(t *testing.T) {
	fz := fuzz.NewWithSeed(12345)
	columns := []string{"a", "b", "c"}
	// Batches of uneven size so that blocks straddle batches.
	batches := [][][]float64{
		fuzzColumns(fz, 3, 10),
		fuzzColumns(fz, 3, 33),
		fuzzColumns(fz, 3, 1),
		fuzzColumns(fz, 3, 56),
	}
	all := make([][]float64, 3)
	for _, batch := range batches {
		for i := range all {
			all[i] = append(all[i], batch[i]...)
		}
	}
	var b bytes.Buffer
	writeFile(t, &b, columns, 16, batches...)
	r, err := NewReader(b.Bytes())
	assert.NoError(t, err)
	expect.EQ(t, r.Records(), int64(100))
	expect.EQ(t, r.BlockRows(), 16)
	expect.EQ(t, r.Columns(), columns)

	for _, c := range []struct{ start, end int64 }{
		{0, 100}, {0, 0}, {100, 100}, {0, 16}, {15, 17}, {16, 32}, {31, 99}, {99, 100}, {40, 41},
	} {
		got, err := r.Read([]string{"c", "a"}, c.start, c.end)
		assert.NoError(t, err)
		if got, want := len(got[0]), int(c.end-c.start); got != want {
			t.Errorf("[%d, %d): got %v values, want %v", c.start, c.end, got, want)
			continue
		}
		expect.EQ(t, got[0], all[2][c.start:c.end])
		expect.EQ(t, got[1], all[0][c.start:c.end])
	}
}

func TestReadErrors(t *testing.T) {
	var b bytes.Buffer
	writeFile(t, &b, []string{"x"}, 4, [][]float64{{1, 2, 3, 4, 5}})
	r, err := NewReader(b.Bytes())
	assert.NoError(t, err)
	if _, err := r.Read([]string{"x"}, 2, 6); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	if _, err := r.Read([]string{"y"}, 0, 1); !errors.Is(errors.NotExist, err) {
		t.Errorf("expected not exist error, got %v", err)
	}
	p := b.Bytes()
	p[len(p)-trailerSize-1] ^= 0xff
	if _, err := NewReader(p); !errors.Is(errors.Integrity, err) {
		t.Errorf("expected integrity error, got %v", err)
	}
	if _, err := NewReader(p[:4]); !errors.Is(errors.Integrity, err) {
		t.Errorf("expected integrity error, got %v", err)
	}
}

func TestWriterErrors(t *testing.T) {
	var b bytes.Buffer
	if _, err := NewWriter(&b, nil, 0); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	if _, err := NewWriter(&b, []string{"a", "a"}, 0); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	w, err := NewWriter(&b, []string{"a", "b"}, 0)
	assert.NoError(t, err)
	if err := w.Append([][]float64{{1}}); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	if err := w.Append([][]float64{{1}, {1, 2}}); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestEmptyFile(t *testing.T) {
	var b bytes.Buffer
	writeFile(t, &b, []string{"x", "y"}, 0)
	r, err := NewReader(b.Bytes())
	assert.NoError(t, err)
	expect.EQ(t, r.Records(), int64(0))
	cols, err := r.Read([]string{"y"}, 0, 0)
	assert.NoError(t, err)
	expect.EQ(t, len(cols[0]), 0)
}

func TestOpenFile(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "data"+Ext)
	var b bytes.Buffer
	writeFile(t, &b, []string{"x"}, 2, [][]float64{{1, 2, 3, 4, 5}})
	assert.NoError(t, os.WriteFile(path, b.Bytes(), 0644))

	r, err := Open(context.Background(), path)
	assert.NoError(t, err)
	defer r.Close()
	expect.EQ(t, r.Path(), path)
	cols, err := r.Read([]string{"x"}, 1, 4)
	assert.NoError(t, err)
	expect.EQ(t, cols[0], []float64{2, 3, 4})

	if _, err := Open(context.Background(), filepath.Join(dir, "missing"+Ext)); err == nil {
		t.Error("expected error")
	}
}
