// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package trace records worker timings in the Chrome tracing format,
// so that a process-parallel measurement can be inspected in
// chrome://tracing or Perfetto.
package trace

import (
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"
)

// T is a trace file.
type T struct {
	Events []Event `json:"traceEvents"`
}

// Event is an event in the Chrome tracing format. The fields are
// mirrored exactly. For more details, see:
//	https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview
type Event struct {
	Pid  int                    `json:"pid"`
	Tid  int                    `json:"tid"`
	Ts   int64                  `json:"ts"`
	Ph   string                 `json:"ph"`
	Dur  int64                  `json:"dur,omitempty"`
	Name string                 `json:"name"`
	Cat  string                 `json:"cat,omitempty"`
	Args map[string]interface{} `json:"args"`
}

// Encode writes t to w as JSON.
func (t *T) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(t)
}

// A Recorder accumulates complete ("X") events relative to a common
// origin. A nil *Recorder discards events. Recorders are safe for
// concurrent use.
type Recorder struct {
	origin time.Time

	mu     sync.Mutex
	events []Event
}

// NewRecorder returns a recorder whose timestamps are relative to
// origin.
func NewRecorder(origin time.Time) *Recorder {
	return &Recorder{origin: origin}
}

// Span records a complete event named name on worker tid, lasting
// from start to end.
func (r *Recorder) Span(tid int, cat, name string, start, end time.Time, args map[string]interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, Event{
		Pid:  1,
		Tid:  tid,
		Ts:   start.Sub(r.origin).Microseconds(),
		Ph:   "X",
		Dur:  end.Sub(start).Microseconds(),
		Name: name,
		Cat:  cat,
		Args: args,
	})
	r.mu.Unlock()
}

// Trace returns the recorded events ordered by start time.
func (r *Recorder) Trace() *T {
	t := new(T)
	if r == nil {
		return t
	}
	r.mu.Lock()
	t.Events = append(t.Events, r.events...)
	r.mu.Unlock()
	sort.SliceStable(t.Events, func(i, j int) bool {
		return t.Events[i].Ts < t.Events[j].Ts
	})
	return t
}
