// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package colfile implements a simple columnar file format for
// float64-valued record data. A file stores a fixed set of named
// columns; each column is split into blocks of BlockRows values which
// are compressed independently, so that a reader can decode an
// arbitrary record range while touching only the blocks that overlap
// it.
//
// The layout of a file is:
//
//	header  [magic uint32][version uint32]
//	blocks  zstd(column block)...
//	footer  uvarint-encoded index (see footer.marshal)
//	trailer [footer offset uint64][footer crc32 uint32][magic uint32]
//
// All fixed-width integers are little-endian.
package colfile

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/grailbio/base/errors"
)

// Ext is the file name extension used for column files.
const Ext = ".bsc"

// DefaultBlockRows is the default number of values per column block.
const DefaultBlockRows = 4096

const (
	magic   uint32 = 0x42534346 // "BSCF"
	version uint32 = 1

	headerSize  = 8
	trailerSize = 16
)

var order = binary.LittleEndian

// A blockHandle locates a compressed block in the file.
type blockHandle struct {
	Offset uint64
	Length uint64
}

// Footer is the index of a column file.
type footer struct {
	Records   int64
	BlockRows int
	Columns   []string
	// Blocks holds the block handles of each column, indexed
	// like Columns.
	Blocks [][]blockHandle
}

func (f *footer) marshal() []byte {
	var (
		p   []byte
		buf [binary.MaxVarintLen64]byte
	)
	put := func(v uint64) {
		n := binary.PutUvarint(buf[:], v)
		p = append(p, buf[:n]...)
	}
	put(uint64(f.Records))
	put(uint64(f.BlockRows))
	put(uint64(len(f.Columns)))
	for i, name := range f.Columns {
		put(uint64(len(name)))
		p = append(p, name...)
		put(uint64(len(f.Blocks[i])))
		for _, h := range f.Blocks[i] {
			put(h.Offset)
			put(h.Length)
		}
	}
	return p
}

func (f *footer) unmarshal(p []byte) (err error) {
	get := func() uint64 {
		if err != nil {
			return 0
		}
		v, n := binary.Uvarint(p)
		if n <= 0 {
			err = errors.E(errors.Integrity, "colfile: truncated footer")
			return 0
		}
		p = p[n:]
		return v
	}
	f.Records = int64(get())
	f.BlockRows = int(get())
	ncol := int(get())
	if err != nil {
		return err
	}
	if f.BlockRows <= 0 {
		return errors.E(errors.Integrity, fmt.Sprintf("colfile: invalid block size %d", f.BlockRows))
	}
	f.Columns = make([]string, ncol)
	f.Blocks = make([][]blockHandle, ncol)
	nblock := int((f.Records + int64(f.BlockRows) - 1) / int64(f.BlockRows))
	for i := range f.Columns {
		n := int(get())
		if err != nil {
			return err
		}
		if n > len(p) {
			return errors.E(errors.Integrity, "colfile: truncated column name")
		}
		f.Columns[i] = string(p[:n])
		p = p[n:]
		m := int(get())
		if err == nil && m != nblock {
			return errors.E(errors.Integrity,
				fmt.Sprintf("colfile: column %s has %d blocks, expected %d", f.Columns[i], m, nblock))
		}
		f.Blocks[i] = make([]blockHandle, m)
		for j := range f.Blocks[i] {
			f.Blocks[i][j].Offset = get()
			f.Blocks[i][j].Length = get()
		}
	}
	return err
}

// BlockLen returns the number of values stored in block b.
func (f *footer) blockLen(b int) int {
	n := f.Records - int64(b)*int64(f.BlockRows)
	if n > int64(f.BlockRows) {
		n = int64(f.BlockRows)
	}
	return int(n)
}

func putTrailer(p []byte, footerOff uint64, footer []byte) {
	order.PutUint64(p[0:8], footerOff)
	order.PutUint32(p[8:12], crc32.ChecksumIEEE(footer))
	order.PutUint32(p[12:16], magic)
}
