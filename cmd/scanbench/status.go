// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net/http"
	_ "net/http/pprof" // Pprof is exposed on the local diagnostic web server.
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigscan/internal/trace"
	"github.com/grailbio/bigscan/scanflags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartMachines starts bigmachine with the system selected by the
// flags. In worker processes, startMachines does not return: it must
// be called before the command does any work of its own.
func startMachines(fl *scanflags.Flags) *bigmachine.B {
	b := bigmachine.Start(fl.Machines())
	log.Printf("bigmachine started with system %s", fl.System.String())
	return b
}

// DisplayStatus arranges for the command's status to be displayed on
// the console and/or a web page depending on the flags specified on
// the command line. The web page is hosted at /debug/status on
// http.DefaultServeMux, alongside prometheus metrics at /metrics and
// bigmachine's debug handlers, if b is not nil.
func displayStatus(fl *scanflags.Flags, top *status.Status, b *bigmachine.B) {
	if fl.ConsoleStatus {
		var console status.Reporter
		go console.Go(os.Stdout, top)
	}
	if len(fl.HTTPAddress.Address) == 0 {
		return
	}
	if b != nil {
		b.HandleDebug(http.DefaultServeMux)
	}
	http.Handle("/debug/status", status.Handler(top))
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("HTTP status at: %v", fl.HTTPAddress)
		err := http.ListenAndServe(fl.HTTPAddress.Address, nil)
		if err != nil {
			log.Error.Printf("failed to start HTTP at: %v: %v", fl.HTTPAddress, err)
		}
	}()
}

// WriteTrace writes the events recorded by rec to path.
func writeTrace(ctx context.Context, path string, rec *trace.Recorder) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "writing trace "+path)
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	t := rec.Trace()
	log.Printf("writing %d trace events to %s", len(t.Events), path)
	return t.Encode(f.Writer(ctx))
}

// Local reports whether path names a file on the local file system.
func local(path string) bool {
	return !strings.Contains(path, "://")
}
