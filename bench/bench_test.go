// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bench

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigscan/internal/synth"
	"github.com/grailbio/bigscan/strategy"
	"github.com/grailbio/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

type call struct{ nfiles, p int }

// fakeStrategy records its calls and fails every call after the
// first failAfter, if failAfter is positive.
type fakeStrategy struct {
	failAfter int

	mu    sync.Mutex
	calls []call
}

func (*fakeStrategy) Name() string { return "fake" }

func (f *fakeStrategy) Run(ctx context.Context, dir string, nfiles, p int) (strategy.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.calls) >= f.failAfter {
		return strategy.Result{}, errors.E(errors.Unavailable, "fake failure")
	}
	f.calls = append(f.calls, call{nfiles, p})
	return strategy.Result{Elapsed: time.Duration(1+nfiles+p) * time.Millisecond}, nil
}

// testDataset writes n small data files under dir and returns the
// dataset's directory.
func testDataset(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "data")
	if err := os.MkdirAll(path, 0777); err != nil {
		t.Fatal(err)
	}
	counts := make([]int, n)
	for i := range counts {
		counts[i] = 10
	}
	if _, err := synth.WriteDataset(context.Background(), path, counts, 1); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfig(t *testing.T) {
	c := Config{Step: 4, Max: 10, Loops: 20, Output: "out", Variable: Size}
	if got, want := c.Values(), []int{0, 4, 8, 12}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	c.Max = 12
	if got, want := c.Values(), []int{0, 4, 8, 12}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := c.TablePath(), filepath.Join("out", "runtime_vs_size_12_4_20.csv"); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if nfiles, p := c.Args(8); nfiles != 8 || p != 0 {
		t.Errorf("size: got %d, %d", nfiles, p)
	}

	c.Variable, c.NThreads = SizeMT, 32
	if got, want := c.TablePath(), filepath.Join("out", "runtime_vs_size_mt_32_12_4_20.csv"); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if nfiles, p := c.Args(8); nfiles != 8 || p != 32 {
		t.Errorf("size_mt: got %d, %d", nfiles, p)
	}

	c.Variable, c.NFiles = Threads, 128
	if got, want := c.TablePath(), filepath.Join("out", "runtime_vs_threads_128_12_4_20.csv"); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if nfiles, p := c.Args(8); nfiles != 128 || p != 8 {
		t.Errorf("threads: got %d, %d", nfiles, p)
	}

	for _, bad := range []Config{
		{Step: 4, Output: "out", Variable: "processes"},
		{Step: 0, Output: "out", Variable: Size},
		{Step: 4, Loops: -1, Output: "out", Variable: Size},
		{Step: 4, Max: -4, Output: "out", Variable: Size},
		{Step: 4, Variable: Size},
	} {
		if err := bad.Validate(); !errors.Is(errors.Invalid, err) {
			t.Errorf("%+v: got %v, want Invalid", bad, err)
		}
	}
}

func TestLoopResume(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	cfg := Config{Step: 2, Max: 4, Loops: 3, Path: testDataset(t, dir, 4), Output: filepath.Join(dir, "out"), Variable: Size}

	// Warm-up plus one full repetition succeed; the second
	// repetition fails part of the way through.
	failing := &fakeStrategy{failAfter: 5}
	l := &Loop{Config: cfg, Sequential: failing}
	if err := l.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got, want := l.State(), Measuring; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := failing.calls[0], (call{2, 0}); got != want {
		t.Errorf("warm-up: got %v, want %v", got, want)
	}
	table := NewTable(cfg.TablePath(), cfg.Values())
	if rows, err := table.Rows(); err != nil || rows != 1 {
		t.Fatalf("got %v, %v, want 1 row", rows, err)
	}

	fake := new(fakeStrategy)
	l = &Loop{Config: cfg, Sequential: fake}
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, want := l.State(), Done; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Warm-up, then two repetitions of three values.
	want := []call{{2, 0}, {0, 0}, {2, 0}, {4, 0}, {0, 0}, {2, 0}, {4, 0}}
	if got := fake.calls; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if rows, err := table.Rows(); err != nil || rows != 3 {
		t.Fatalf("got %v, %v, want 3 rows", rows, err)
	}
	secs, err := table.Seconds()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := secs[2], []float64{0.001, 0.003, 0.005}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// A completed sweep does no further work.
	fake = new(fakeStrategy)
	l = &Loop{Config: cfg, Sequential: fake}
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, want := len(fake.calls), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := l.State(), Done; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLoopParallel(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	cfg := Config{Step: 3, Max: 3, Loops: 1, Path: testDataset(t, dir, 7), Output: dir, Variable: Threads, NFiles: 7}
	var (
		seq = new(fakeStrategy)
		par = new(fakeStrategy)
	)
	l := &Loop{Config: cfg, Sequential: seq, Parallel: par}
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, want := len(seq.calls), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	want := []call{{7, 3}, {7, 0}, {7, 3}}
	if got := par.calls; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLoopInvalid(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	out := filepath.Join(dir, "out")
	fake := new(fakeStrategy)
	l := &Loop{
		Config:     Config{Step: 4, Max: 8, Loops: 2, Output: out, Variable: "processes"},
		Sequential: fake,
		Parallel:   fake,
	}
	if err := l.Run(context.Background()); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output directory created: %v", err)
	}
	if got, want := len(fake.calls), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLoopMissingDataset(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	out := filepath.Join(dir, "out")
	short := testDataset(t, dir, 1)
	for _, c := range []struct {
		path string
		kind errors.Kind
	}{
		{filepath.Join(dir, "nosuchdir"), errors.NotExist},
		{short, errors.NotExist},
		{"", errors.Invalid},
	} {
		fake := new(fakeStrategy)
		l := &Loop{
			Config:     Config{Step: 1, Max: 2, Loops: 2, Path: c.path, Output: out, Variable: Size},
			Sequential: fake,
		}
		if err := l.Run(context.Background()); !errors.Is(c.kind, err) {
			t.Errorf("%q: got %v, want %v", c.path, err, c.kind)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Errorf("%q: output directory created: %v", c.path, err)
		}
		if got, want := len(fake.calls), 0; got != want {
			t.Errorf("%q: got %v, want %v", c.path, got, want)
		}
	}

	// A sweep that reads no files needs no dataset.
	fake := new(fakeStrategy)
	l := &Loop{
		Config:     Config{Step: 1, Max: 2, Loops: 1, Output: out, Variable: Threads, NFiles: 0},
		Sequential: fake,
		Parallel:   fake,
	}
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestLoopTornRow(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	cfg := Config{Step: 4, Max: 4, Loops: 2, Path: testDataset(t, dir, 4), Output: dir, Variable: Size}
	if err := ioutil.WriteFile(cfg.TablePath(), []byte("0,4\n0.1,0.2\n0.3"), 0644); err != nil {
		t.Fatal(err)
	}
	fake := new(fakeStrategy)
	if err := (&Loop{Config: cfg, Sequential: fake}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Warm-up plus one repetition of two values.
	if got, want := len(fake.calls), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	p, err := ioutil.ReadFile(cfg.TablePath())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(p), "0,4\n0.1,0.2\n0.001,0.005\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// A torn header is rewritten.
	if err := ioutil.WriteFile(cfg.TablePath(), []byte("0,"), 0644); err != nil {
		t.Fatal(err)
	}
	table := NewTable(cfg.TablePath(), cfg.Values())
	if err := table.Repair(); err != nil {
		t.Fatal(err)
	}
	if created, err := table.Create(); err != nil || !created {
		t.Fatalf("got %v, %v, want created", created, err)
	}
	if rows, err := table.Rows(); err != nil || rows != 0 {
		t.Errorf("got %v, %v, want 0 rows", rows, err)
	}
}

func TestLoopSchemaMismatch(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	cfg := Config{Step: 4, Max: 8, Loops: 2, Path: testDataset(t, dir, 8), Output: dir, Variable: Size}
	for _, contents := range []string{
		"0,4\n",
		"0,4,8\n0.1,0.2\n",
		"",
	} {
		if err := ioutil.WriteFile(cfg.TablePath(), []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
		fake := new(fakeStrategy)
		err := (&Loop{Config: cfg, Sequential: fake}).Run(context.Background())
		if _, ok := err.(*SchemaMismatchError); !ok {
			t.Errorf("%q: got %v, want *SchemaMismatchError", contents, err)
		}
		if got, want := len(fake.calls), 0; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestRunInfoAndMetrics(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	data := testDataset(t, dir, 2)
	cfg := Config{Step: 1, Max: 2, Loops: 2, Path: data, Output: dir, Variable: SizeMT, NThreads: 4}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	l := &Loop{Config: cfg, Parallel: new(fakeStrategy), Metrics: metrics}
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	info, err := ReadRunInfo(RunInfoPath(cfg.TablePath()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(info.ID); err != nil {
		t.Errorf("bad run id %q: %v", info.ID, err)
	}
	if got, want := info.Variable, SizeMT; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := info.Constant, 4; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := info.Strategy, "fake"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := info.Dataset, data; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := promtest.ToFloat64(metrics.Repetitions.WithLabelValues("fake", "size_mt")), 2.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// nfiles=2, p=4
	if got, want := promtest.ToFloat64(metrics.Seconds.WithLabelValues("fake", "size_mt", "2")), 0.007; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestZeroLoops(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	cfg := Config{Step: 1, Max: 1, Loops: 0, Path: testDataset(t, dir, 1), Output: dir, Variable: Size}
	fake := new(fakeStrategy)
	l := &Loop{Config: cfg, Sequential: fake}
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, want := l.State(), Done; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(fake.calls), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	p, err := ioutil.ReadFile(cfg.TablePath())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(p), "0,1\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
