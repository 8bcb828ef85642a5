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

	"github.com/james-bowman/nlp"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// pcacmd projects the expression matrix onto its leading principal
// components, a quick QC view of sample structure before fitting.
type pcacmd struct{}

func (cmd *pcacmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "expression `file` (tsv, genes as rows)")
	outputFilename := flags.String("o", "-", "output `file` (npy)")
	components := flags.Int("components", 4, "number of components")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
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
	n, p := fm.Dims()
	log.Printf("fitting %d-component PCA on %d samples x %d features", *components, n, p)

	mtx := fm.X.T()
	transformer := nlp.NewPCA(*components)
	transformer.Fit(mtx)
	out, err := transformer.Transform(mtx)
	if err != nil {
		return 1
	}
	out = out.T()

	rows, cols := out.Dims()
	flat := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			flat[i*cols+j] = out.At(i, j)
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
	return 0
}
