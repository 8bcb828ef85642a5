// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"github.com/Lai-Guichuan/SPRA/sgl"
	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var glmConfig = &glm.Config{
	Family:         glm.NewFamily(glm.BinomialFamily),
	FitMethod:      "IRLS",
	ConcurrentIRLS: 1000,
	Log:            log.New(io.Discard, "", 0),
}

func normalize(a []float64) {
	mean, std := stat.MeanStdDev(a, nil)
	for i, x := range a {
		a[i] = (x - mean) / std
	}
}

// groupPvalue runs a likelihood-ratio test of a logistic regression
// with the (normalized) per-sample group summary against the
// intercept-only null. Singular fits come back as NaN.
func groupPvalue(summary []float64, outcome []float64) (p float64) {
	defer func() {
		if recover() != nil {
			// typically "matrix singular or near-singular"
			p = math.NaN()
		}
	}()

	constants := make([]statmodel.Dtype, len(outcome))
	for i := range constants {
		constants[i] = 1
	}
	score := make([]statmodel.Dtype, len(summary))
	copy(score, summary)
	normalize(score)

	null := statmodel.NewDataset([][]statmodel.Dtype{outcome, constants}, []string{"outcome", "constants"})
	modelNull, err := glm.NewGLM(null, "outcome", []string{"constants"}, glmConfig)
	if err != nil {
		return math.NaN()
	}
	logNull := modelNull.Fit().LogLike()

	full := statmodel.NewDataset([][]statmodel.Dtype{outcome, constants, score}, []string{"outcome", "constants", "score"})
	modelFull, err := glm.NewGLM(full, "outcome", []string{"constants", "score"}, glmConfig)
	if err != nil {
		return math.NaN()
	}
	logFull := modelFull.Fit().LogLike()

	dist := distuv.ChiSquared{K: 1}
	return dist.Survival(-2 * (logNull - logFull))
}

type assoccmd struct{}

func (cmd *assoccmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "expression `file` (tsv, genes as rows)")
	samplesFilename := flags.String("samples", "", "sample info `file` (tsv with a Type column)")
	groupsFilename := flags.String("groups", "", "gene group `file` (gmt)")
	outputFilename := flags.String("o", "-", "output `file` (tsv)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *samplesFilename == "" || *groupsFilename == "" {
		err = fmt.Errorf("must provide -samples and -groups")
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
	sf, err := open(*samplesFilename, nil)
	if err != nil {
		return 1
	}
	samples, err := loadSampleInfo(sf)
	sf.Close()
	if err != nil {
		return 1
	}
	n, _ := fm.Dims()
	if len(samples) != n {
		err = fmt.Errorf("sample table has %d rows, expression matrix has %d samples", len(samples), n)
		return 1
	}
	y, err := responseVector(samples, sgl.Binomial)
	if err != nil {
		return 1
	}

	exp, err := Expand(fm, def)
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
	fmt.Fprint(bufw, "Group\tFeatures\tPvalue\n")
	_, p := fm.Dims()
	summary := make([]float64, n)
	for g, grp := range def {
		width := 0
		for i := range summary {
			summary[i] = 0
		}
		for j := 0; j < p; j++ {
			if exp.Incidence.At(g, j) == 0 {
				continue
			}
			width++
			for i := 0; i < n; i++ {
				summary[i] += fm.X.At(i, j)
			}
		}
		for i := range summary {
			summary[i] /= float64(width)
		}
		fmt.Fprintf(bufw, "%s\t%d\t%g\n", grp.Name, width, groupPvalue(summary, y))
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
