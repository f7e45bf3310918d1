// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bench

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
)

// A SchemaMismatchError is returned when an existing results table
// does not match the sweep that is about to extend it.
type SchemaMismatchError struct {
	// Path is the path of the table.
	Path string
	// Want is the expected header.
	Want []string
	// Got is the offending header or row.
	Got []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("bench: table %s does not match sweep: got %s, want %d columns %s",
		e.Path, strings.Join(e.Got, ","), len(e.Want), strings.Join(e.Want, ","))
}

// A Table is a results table stored as CSV. The first row is the
// header, holding the swept values; every following row holds the
// elapsed seconds of one repetition, one column per swept value.
// Tables are only ever appended to, so a table's row count is the
// durable record of how many repetitions have completed.
type Table struct {
	// Path is the table's file path.
	Path string
	// Header is the table's expected header.
	Header []string
}

// NewTable returns a table at path whose header holds values.
func NewTable(path string, values []int) *Table {
	header := make([]string, len(values))
	for i, v := range values {
		header[i] = strconv.Itoa(v)
	}
	return &Table{Path: path, Header: header}
}

// Create writes the table's header if the table does not exist yet.
// Create reports whether the table was created.
func (t *Table) Create() (created bool, err error) {
	f, err := os.OpenFile(t.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.E(err, fmt.Sprintf("bench: create table %s", t.Path))
	}
	defer fileio.CloseAndReport(f, &err)
	if err := writeRecord(f, t.Header); err != nil {
		return false, err
	}
	return true, nil
}

// Rows returns the number of data rows in the table, validating the
// header and the width of every row. A table that does not match is
// reported as a *SchemaMismatchError.
func (t *Table) Rows() (int, error) {
	rows, err := t.read()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Append appends a row of measurements, in seconds, to the table.
// The row is written with a single write and synced to stable
// storage before Append returns.
func (t *Table) Append(seconds []float64) (err error) {
	if len(seconds) != len(t.Header) {
		return errors.E(errors.Invalid,
			fmt.Sprintf("bench: row has %d columns, table %s has %d", len(seconds), t.Path, len(t.Header)))
	}
	record := make([]string, len(seconds))
	for i, s := range seconds {
		record[i] = strconv.FormatFloat(s, 'f', -1, 64)
	}
	f, err := os.OpenFile(t.Path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return errors.E(err, fmt.Sprintf("bench: append to table %s", t.Path))
	}
	defer fileio.CloseAndReport(f, &err)
	return writeRecord(f, record)
}

// Repair removes a partially written final row, left behind when a
// process dies in the middle of Append or Create. Every complete
// record ends in a newline, so any bytes after the last newline
// belong to a torn write. A table whose header itself is torn is
// removed so that Create writes it afresh. Repair does nothing if the
// table does not exist.
func (t *Table) Repair() (err error) {
	p, err := ioutil.ReadFile(t.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.E(err, fmt.Sprintf("bench: read table %s", t.Path))
	}
	if len(p) == 0 || p[len(p)-1] == '\n' {
		return nil
	}
	i := bytes.LastIndexByte(p, '\n')
	if i < 0 {
		log.Printf("bench: table %s: removing torn header %q", t.Path, p)
		return os.Remove(t.Path)
	}
	log.Printf("bench: table %s: discarding torn row %q", t.Path, p[i+1:])
	f, err := os.OpenFile(t.Path, os.O_WRONLY, 0)
	if err != nil {
		return errors.E(err, fmt.Sprintf("bench: repair table %s", t.Path))
	}
	defer fileio.CloseAndReport(f, &err)
	if err = f.Truncate(int64(i + 1)); err != nil {
		return err
	}
	return f.Sync()
}

// Seconds returns the table's data rows, parsed.
func (t *Table) Seconds() ([][]float64, error) {
	rows, err := t.read()
	if err != nil {
		return nil, err
	}
	vals := make([][]float64, len(rows))
	for i, row := range rows {
		vals[i] = make([]float64, len(row))
		for j, field := range row {
			vals[i][j], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.E(errors.Integrity,
					fmt.Sprintf("bench: table %s: row %d column %d", t.Path, i+1, j), err)
			}
		}
	}
	return vals, nil
}

// Read returns the data rows of the table after validating them. If
// t.Header is nil, the table's own header is adopted.
func (t *Table) read() ([][]string, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("bench: table %s", t.Path), err)
		}
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	// Widths are validated below so that mismatches are reported as
	// schema errors.
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, &SchemaMismatchError{Path: t.Path, Want: t.Header}
	}
	if err != nil {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bench: table %s", t.Path), err)
	}
	if t.Header == nil {
		t.Header = header
	}
	if !equal(header, t.Header) {
		return nil, &SchemaMismatchError{Path: t.Path, Want: t.Header, Got: header}
	}
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("bench: table %s", t.Path), err)
		}
		if len(row) != len(t.Header) {
			return nil, &SchemaMismatchError{Path: t.Path, Want: t.Header, Got: row}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteRecord writes a single CSV record to f with one write, then
// syncs f.
func writeRecord(f *os.File, record []string) error {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(record); err != nil {
		return err
	}
	w.Flush()
	if _, err := f.WriteString(b.String()); err != nil {
		return err
	}
	return f.Sync()
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
