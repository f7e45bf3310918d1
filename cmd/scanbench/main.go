// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Scanbench measures the wall-clock cost of a filtered column scan
// over a dataset of many files, run sequentially, with a pool of
// goroutines, or with a pool of bigmachine worker processes.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bigscan/scanflags"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: scanbench [flags] command args...

Command scanbench runs and analyzes scan benchmarks.

Available commands are:

	run
		Sweep a variable and append timings to a results table.
		Interrupted sweeps resume where they left off.
	gen
		Write a synthetic dataset.
	verify
		Run every strategy once and check that they select the
		same records.
	summary
		Print quartiles of the timings in results tables.

Use "scanbench command -help" for the flags of a command.

Flags:
`)
		flag.PrintDefaults()
		os.Exit(2)
	}

	var fl scanflags.Flags
	scanflags.RegisterFlags(flag.CommandLine, &fl, "")
	log.AddFlags()
	flag.Parse()
	if fl.SystemHelp {
		systemHelp(&fl)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		flag.Usage()
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		flag.Usage()
	case "run":
		err = run(&fl, args)
	case "gen":
		err = gen(args)
	case "verify":
		err = verify(&fl, args)
	case "summary":
		err = summary(args)
	}
	must.Nil(err, cmd)
}

func systemHelp(fl *scanflags.Flags) {
	providers, profiles := scanflags.ProvidersAndProfiles()
	sort.Strings(providers)
	wr := fl.Output()
	fmt.Fprintf(wr, "%s\n\n", scanflags.SystemHelpLong)
	fmt.Fprintf(wr, "The available providers are: %v\n", strings.Join(providers, ", "))
	var str []string
	for k, v := range profiles {
		str = append(str, fmt.Sprintf("%v is shorthand for: %v\n", k, v))
	}
	sort.Strings(str)
	for _, s := range str {
		wr.Write([]byte(s))
	}
}
