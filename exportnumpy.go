// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// exportNumpy writes the group-expanded latent matrix as a numpy
// array, with an optional label file mapping columns to expanded
// feature names and group ids.
type exportNumpy struct{}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "expression `file` (tsv, genes as rows)")
	groupsFilename := flags.String("groups", "", "gene group `file` (gmt)")
	outputFilename := flags.String("o", "-", "output `file` (npy)")
	labelsFilename := flags.String("output-labels", "", "optional column label `file` (csv)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *groupsFilename == "" {
		err = fmt.Errorf("must provide -groups")
		return 2
	}

	input, err := open(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	fm, err := LoadFeatureMatrix(input)
	input.Close()
	if err != nil {
		return 1
	}
	def, err := loadGroups(*groupsFilename)
	if err != nil {
		return 1
	}
	exp, err := Expand(fm, def)
	if err != nil {
		return 1
	}
	rows, cols := exp.Latent.Dims()
	log.Printf("writing numpy: %d rows, %d cols", rows, cols)

	flat := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			flat[i*cols+j] = exp.Latent.X.At(i, j)
		}
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return 1
	}
	npw.Shape = []int{rows, cols}
	err = npw.WriteFloat64(flat)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *labelsFilename != "" {
		var f *os.File
		f, err = os.Create(*labelsFilename)
		if err != nil {
			return 1
		}
		defer f.Close()
		for k, name := range exp.Latent.FeatureNames {
			_, err = fmt.Fprintf(f, "%d,%q,%d\n", k, name, exp.GroupVector[k])
			if err != nil {
				err = fmt.Errorf("write %s: %w", *labelsFilename, err)
				return 1
			}
		}
		err = f.Close()
		if err != nil {
			return 1
		}
	}
	return 0
}
