// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package colfile

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/grailbio/base/compress/zstd"
	"github.com/grailbio/base/errors"
)

// A Writer writes a column file. Records are appended in column
// batches with Append; the file is complete only after Close.
type Writer struct {
	w      io.Writer
	off    uint64
	footer footer
	buf    [][]float64
	err    error
}

// NewWriter returns a Writer that writes a column file with the
// provided columns to w. If blockRows is zero, DefaultBlockRows is
// used.
func NewWriter(w io.Writer, columns []string, blockRows int) (*Writer, error) {
	if len(columns) == 0 {
		return nil, errors.E(errors.Invalid, "colfile: no columns")
	}
	if blockRows == 0 {
		blockRows = DefaultBlockRows
	}
	if blockRows < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("colfile: invalid block size %d", blockRows))
	}
	seen := make(map[string]bool)
	for _, name := range columns {
		if seen[name] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("colfile: duplicate column %s", name))
		}
		seen[name] = true
	}
	wr := &Writer{
		w: w,
		footer: footer{
			BlockRows: blockRows,
			Columns:   append([]string(nil), columns...),
			Blocks:    make([][]blockHandle, len(columns)),
		},
		buf: make([][]float64, len(columns)),
	}
	var hd [headerSize]byte
	order.PutUint32(hd[0:4], magic)
	order.PutUint32(hd[4:8], version)
	wr.write(hd[:])
	return wr, wr.err
}

// Append appends a batch of records. Cols must contain one slice per
// column, in the order given to NewWriter, and all slices must have
// the same length.
func (w *Writer) Append(cols [][]float64) error {
	if w.err != nil {
		return w.err
	}
	if len(cols) != len(w.buf) {
		return errors.E(errors.Invalid, fmt.Sprintf("colfile: got %d columns, want %d", len(cols), len(w.buf)))
	}
	n := len(cols[0])
	for i := range cols {
		if len(cols[i]) != n {
			return errors.E(errors.Invalid, "colfile: ragged column batch")
		}
		w.buf[i] = append(w.buf[i], cols[i]...)
	}
	w.footer.Records += int64(n)
	for len(w.buf[0]) >= w.footer.BlockRows && w.err == nil {
		w.flush(w.footer.BlockRows)
	}
	return w.err
}

// Close flushes buffered records and writes the file footer. Close
// does not close the underlying writer.
func (w *Writer) Close() error {
	if len(w.buf[0]) > 0 {
		w.flush(len(w.buf[0]))
	}
	if w.err != nil {
		return w.err
	}
	footerOff := w.off
	p := w.footer.marshal()
	w.write(p)
	var tr [trailerSize]byte
	putTrailer(tr[:], footerOff, p)
	w.write(tr[:])
	return w.err
}

// Flush writes the first n buffered values of each column as a block.
func (w *Writer) flush(n int) {
	raw := make([]byte, 8*n)
	for i := range w.buf {
		for j, v := range w.buf[i][:n] {
			order.PutUint64(raw[8*j:], math.Float64bits(v))
		}
		var b bytes.Buffer
		zw, err := zstd.NewWriter(&b)
		if err != nil {
			w.err = err
			return
		}
		if _, err := zw.Write(raw); err != nil {
			w.err = err
			return
		}
		if err := zw.Close(); err != nil {
			w.err = err
			return
		}
		w.footer.Blocks[i] = append(w.footer.Blocks[i], blockHandle{Offset: w.off, Length: uint64(b.Len())})
		w.write(b.Bytes())
		w.buf[i] = w.buf[i][n:]
	}
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	var n int
	n, w.err = w.w.Write(p)
	w.off += uint64(n)
}
