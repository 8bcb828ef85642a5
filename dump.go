// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
)

// dumpModel prints a fitted model gob as JSON for inspection.
type dumpModel struct{}

// jsonFloat renders non-finite values as null. A NaN cell in the CV
// error surface (a degenerate fold) is a valid model state, and
// encoding/json has no representation for it.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	if v := float64(f); math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

// modelJSON mirrors ModelFile with non-finite-safe numbers.
type modelJSON struct {
	Family       string
	Alpha        jsonFloat
	Lambda       []jsonFloat
	BestIndex    int
	FoldErr      [][]jsonFloat
	MeanErr      []jsonFloat
	Intercept    jsonFloat
	Coefficients map[string]jsonFloat
	Pos          []string
	Neg          []string
	Groups       GroupDefinition
}

func jsonFloats(v []float64) []jsonFloat {
	out := make([]jsonFloat, len(v))
	for i, x := range v {
		out[i] = jsonFloat(x)
	}
	return out
}

func jsonModel(mf *ModelFile) *modelJSON {
	out := &modelJSON{
		Family:       mf.Family,
		Alpha:        jsonFloat(mf.Alpha),
		Lambda:       jsonFloats(mf.Lambda),
		BestIndex:    mf.BestIndex,
		FoldErr:      make([][]jsonFloat, len(mf.FoldErr)),
		MeanErr:      jsonFloats(mf.MeanErr),
		Intercept:    jsonFloat(mf.Intercept),
		Coefficients: make(map[string]jsonFloat, len(mf.Coefficients)),
		Pos:          mf.Pos,
		Neg:          mf.Neg,
		Groups:       mf.Groups,
	}
	for i, row := range mf.FoldErr {
		out.FoldErr[i] = jsonFloats(row)
	}
	for name, v := range mf.Coefficients {
		out.Coefficients[name] = jsonFloat(v)
	}
	return out
}

func (cmd *dumpModel) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "model `file` (gob)")
	outputFilename := flags.String("o", "-", "output `file` (json)")
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
	mf, err := ReadModel(input)
	input.Close()
	if err != nil {
		return 1
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
	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")
	err = enc.Encode(jsonModel(mf))
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
