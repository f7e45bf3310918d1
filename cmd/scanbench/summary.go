// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigscan/bench"
)

func summary(args []string) error {
	flags := flag.NewFlagSet("summary", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: scanbench summary table.csv...\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
	}
	for i, path := range flags.Args() {
		qs, err := bench.Summarize(path)
		if err != nil {
			return err
		}
		variable := "value"
		info, err := bench.ReadRunInfo(bench.RunInfoPath(path))
		switch {
		case err == nil:
			variable = string(info.Variable)
		case !errors.Is(errors.NotExist, err):
			return err
		}
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s", path)
		if err == nil {
			fmt.Printf(" (%s, run %s)", info.Strategy, info.ID)
		}
		fmt.Println()
		if err := bench.WriteSummary(os.Stdout, variable, qs); err != nil {
			return err
		}
	}
	return nil
}
