// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package catalog resolves the ordered set of data files that make up
// a dataset. Files are ordered by name, so that the first n files of
// a directory are the same across runs and across processes.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bigscan/colfile"
)

// A Source is an open data file. Its record count is fixed for the
// lifetime of the handle. Sources are safe for concurrent reads.
type Source struct {
	// Index is the position of the source in its catalog.
	Index int
	*colfile.Reader
}

// A Catalog is an ordered set of open sources.
type Catalog struct {
	Sources []*Source
}

// List returns the paths of the data files in dir, sorted by name.
// A missing directory is reported as an error of kind
// errors.NotExist.
func List(ctx context.Context, dir string) ([]string, error) {
	var (
		paths []string
		lst   = file.List(ctx, dir, false)
	)
	for lst.Scan() {
		if strings.HasSuffix(lst.Path(), colfile.Ext) {
			paths = append(paths, lst.Path())
		}
	}
	if err := lst.Err(); err != nil {
		if os.IsNotExist(err) || errors.Is(errors.NotExist, err) {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("catalog: directory %s", dir), err)
		}
		return nil, errors.E(err, fmt.Sprintf("catalog: list %s", dir))
	}
	sort.Strings(paths)
	return paths, nil
}

// Open opens the first n data files in dir. Open returns an error of
// kind errors.NotExist if dir does not exist or if it contains fewer
// than n data files. A request for zero files returns an empty
// catalog without accessing storage.
func Open(ctx context.Context, dir string, n int) (*Catalog, error) {
	if n == 0 {
		return new(Catalog), nil
	}
	if n < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("catalog: invalid file count %d", n))
	}
	paths, err := List(ctx, dir)
	if err != nil {
		return nil, err
	}
	if len(paths) < n {
		return nil, errors.E(errors.NotExist,
			fmt.Sprintf("catalog: %s: requested %d files, found %d", dir, n, len(paths)))
	}
	return OpenPaths(ctx, paths[:n])
}

// OpenPaths opens the provided data files, in order.
func OpenPaths(ctx context.Context, paths []string) (*Catalog, error) {
	c := &Catalog{Sources: make([]*Source, len(paths))}
	err := traverse.Each(len(paths), func(i int) error {
		r, err := colfile.Open(ctx, paths[i])
		if err != nil {
			return err
		}
		c.Sources[i] = &Source{Index: i, Reader: r}
		return nil
	})
	if err != nil {
		if cerr := c.Close(); cerr != nil {
			log.Error.Printf("catalog: close after failed open: %v", cerr)
		}
		return nil, err
	}
	return c, nil
}

// Counts returns the record count of each source, indexed like
// Sources.
func (c *Catalog) Counts() []int64 {
	counts := make([]int64, len(c.Sources))
	for i, src := range c.Sources {
		counts[i] = src.Records()
	}
	return counts
}

// Total returns the total number of records in the catalog.
func (c *Catalog) Total() int64 {
	var n int64
	for _, src := range c.Sources {
		n += src.Records()
	}
	return n
}

// Paths returns the path of each source, indexed like Sources.
func (c *Catalog) Paths() []string {
	paths := make([]string, len(c.Sources))
	for i, src := range c.Sources {
		paths[i] = src.Path()
	}
	return paths
}

// Close closes every source in the catalog, returning the first
// error encountered.
func (c *Catalog) Close() error {
	var err error
	for _, src := range c.Sources {
		if src == nil {
			continue
		}
		if e := src.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
