// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package colfile

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"io/ioutil"
	"math"
	"strings"

	"github.com/grailbio/base/compress/zstd"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"golang.org/x/exp/mmap"
)

// A Reader provides random access to the records of a column file.
// Readers are immutable once opened; Read may be called concurrently.
type Reader struct {
	path   string
	r      io.ReaderAt
	closer io.Closer
	footer footer
	index  map[string]int
}

// Open opens the column file at the provided path. Local files are
// memory mapped; other paths (e.g., s3://bucket/key) are read in full
// through package github.com/grailbio/base/file.
func Open(ctx context.Context, path string) (*Reader, error) {
	var (
		r    = &Reader{path: path}
		size int64
	)
	if strings.Contains(path, "://") {
		p, err := readAll(ctx, path)
		if err != nil {
			return nil, err
		}
		r.r = bytes.NewReader(p)
		size = int64(len(p))
	} else {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("colfile: open %s", path))
		}
		r.r, r.closer = m, m
		size = int64(m.Len())
	}
	if err := r.init(size); err != nil {
		if r.closer != nil {
			r.closer.Close()
		}
		return nil, errors.E(err, fmt.Sprintf("colfile: %s", path))
	}
	return r, nil
}

// NewReader returns a Reader for the column file stored in p.
func NewReader(p []byte) (*Reader, error) {
	r := &Reader{r: bytes.NewReader(p)}
	if err := r.init(int64(len(p))); err != nil {
		return nil, err
	}
	return r, nil
}

func readAll(ctx context.Context, path string) (p []byte, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return ioutil.ReadAll(f.Reader(ctx))
}

func (r *Reader) init(size int64) error {
	if size < headerSize+trailerSize {
		return errors.E(errors.Integrity, fmt.Sprintf("colfile: file too small (%d bytes)", size))
	}
	var hd [headerSize]byte
	if _, err := r.r.ReadAt(hd[:], 0); err != nil {
		return err
	}
	if order.Uint32(hd[0:4]) != magic {
		return errors.E(errors.Integrity, "colfile: bad magic")
	}
	if v := order.Uint32(hd[4:8]); v != version {
		return errors.E(errors.NotSupported, fmt.Sprintf("colfile: unsupported version %d", v))
	}
	var tr [trailerSize]byte
	if _, err := r.r.ReadAt(tr[:], size-trailerSize); err != nil {
		return err
	}
	if order.Uint32(tr[12:16]) != magic {
		return errors.E(errors.Integrity, "colfile: bad trailer magic")
	}
	off := int64(order.Uint64(tr[0:8]))
	if off < headerSize || off > size-trailerSize {
		return errors.E(errors.Integrity, fmt.Sprintf("colfile: invalid footer offset %d", off))
	}
	p := make([]byte, size-trailerSize-off)
	if _, err := r.r.ReadAt(p, off); err != nil {
		return err
	}
	if crc32.ChecksumIEEE(p) != order.Uint32(tr[8:12]) {
		return errors.E(errors.Integrity, "colfile: footer checksum mismatch")
	}
	if err := r.footer.unmarshal(p); err != nil {
		return err
	}
	r.index = make(map[string]int, len(r.footer.Columns))
	for i, name := range r.footer.Columns {
		r.index[name] = i
	}
	return nil
}

// Path returns the path from which the reader was opened.
func (r *Reader) Path() string { return r.path }

// Records returns the number of records in the file.
func (r *Reader) Records() int64 { return r.footer.Records }

// Columns returns the names of the columns stored in the file.
func (r *Reader) Columns() []string { return r.footer.Columns }

// BlockRows returns the number of records per block.
func (r *Reader) BlockRows() int { return r.footer.BlockRows }

// Read decodes the named columns for records [start, end). The
// returned slices are indexed like columns.
func (r *Reader) Read(columns []string, start, end int64) ([][]float64, error) {
	if start < 0 || end < start || end > r.footer.Records {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("colfile: read [%d, %d) out of range [0, %d)", start, end, r.footer.Records))
	}
	cols := make([][]float64, len(columns))
	for i, name := range columns {
		c, ok := r.index[name]
		if !ok {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("colfile: no column %s in %s", name, r.path))
		}
		cols[i] = make([]float64, end-start)
		if end == start {
			continue
		}
		rows := int64(r.footer.BlockRows)
		for b := start / rows; b <= (end-1)/rows; b++ {
			vals, err := r.block(c, int(b))
			if err != nil {
				return nil, err
			}
			lo, hi := b*rows, b*rows+int64(len(vals))
			if lo < start {
				vals = vals[start-lo:]
				lo = start
			}
			if hi > end {
				vals = vals[:len(vals)-int(hi-end)]
			}
			copy(cols[i][lo-start:], vals)
		}
	}
	return cols, nil
}

// Block decodes block b of column c.
func (r *Reader) block(c, b int) (vals []float64, err error) {
	h := r.footer.Blocks[c][b]
	p := make([]byte, h.Length)
	if _, err = r.r.ReadAt(p, int64(h.Offset)); err != nil {
		return nil, errors.E(err, "colfile: read block")
	}
	zr, err := zstd.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, err
	}
	defer fileio.CloseAndReport(zr, &err)
	raw, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, errors.E(errors.Integrity, err, "colfile: decompress block")
	}
	n := r.footer.blockLen(b)
	if len(raw) != 8*n {
		return nil, errors.E(errors.Integrity,
			fmt.Sprintf("colfile: block %d of column %s has %d bytes, want %d", b, r.footer.Columns[c], len(raw), 8*n))
	}
	vals = make([]float64, n)
	for i := range vals {
		vals[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
	}
	return vals, nil
}

// Close releases the resources held by the reader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
