// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	_ "embed"
	"flag"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// pythonPlot renders the CV-error-vs-lambda diagnostic from the csv
// written by fit -cv-csv. Rendering is a reporting collaborator; the
// fitting code itself stays pure.
type pythonPlot struct{}

//go:embed cvplot.py
var plotscript string

func (cmd *pythonPlot) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "", "CV error `file` (csv, from fit -cv-csv)")
	outputFilename := flags.String("o", "", "output `filename` (e.g., './cv.png')")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *inputFilename == "" || *outputFilename == "" {
		fmt.Fprintln(stderr, "error: must specify -i cv.csv and -o filename.png (or try -help)")
		return 1
	}

	py := exec.Command("python3", "-", *inputFilename, *outputFilename)
	py.Stdin = strings.NewReader(plotscript)
	py.Stdout = stdout
	py.Stderr = stderr
	err = py.Run()
	if err != nil {
		return 1
	}
	return 0
}
