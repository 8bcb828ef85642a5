// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Lai-Guichuan/SPRA/ssgsea"
	log "github.com/sirupsen/logrus"
)

// EnrichmentResult holds per-sample enrichment scores, keyed by the
// sample identifiers of the scored matrix: Pos and Neg are the raw
// set scores, Score their difference.
type EnrichmentResult struct {
	SampleIDs []string
	Pos       []float64
	Neg       []float64
	Score     []float64
}

// ScoreSamples computes the signature score for each row of fm. The
// matrix is re-expanded with the training-time group definition (the
// latent column set may only partially overlap the training expansion
// if gene presence differs), each expanded column named in the
// coefficient table is scaled by |coefficient|+1, and the rank
// enrichment statistic is evaluated for the Pos and Neg sets. An empty
// Pos or Neg set is a defined fatal error, not a numerical failure.
func ScoreSamples(fm *FeatureMatrix, def GroupDefinition, coef map[string]float64, pos, neg []string) (*EnrichmentResult, error) {
	if len(pos) == 0 {
		return nil, fmt.Errorf("%w: Pos", ErrEmptySignature)
	}
	if len(neg) == 0 {
		return nil, fmt.Errorf("%w: Neg", ErrEmptySignature)
	}
	exp, err := Expand(fm, def)
	if err != nil {
		return nil, err
	}
	latent := exp.Latent
	n, p := latent.Dims()

	// Affine re-weighting: |coef|+1 keeps every retained feature at
	// non-zero weight while boosting fitted importance. Columns
	// absent from the coefficient table keep multiplier 1.
	weighted := 0
	col := make([]float64, n)
	for j, name := range latent.FeatureNames {
		c, ok := coef[name]
		if !ok {
			continue
		}
		w := math.Abs(c) + 1
		for i := 0; i < n; i++ {
			col[i] = latent.X.At(i, j) * w
		}
		latent.X.SetCol(j, col)
		weighted++
	}
	log.Printf("weighted %d of %d expanded columns from the coefficient table", weighted, p)

	posScores, err := ssgsea.Scores(latent.X, latent.FeatureNames, pos, 0)
	if err != nil {
		return nil, fmt.Errorf("Pos enrichment: %w", err)
	}
	negScores, err := ssgsea.Scores(latent.X, latent.FeatureNames, neg, 0)
	if err != nil {
		return nil, fmt.Errorf("Neg enrichment: %w", err)
	}

	// The enrichment primitive reports scores in the row order of
	// its input. Verify the expansion preserved sample order before
	// merging; realign by identifier if it ever does not.
	posScores, negScores, err = alignScores(fm.SampleIDs, latent.SampleIDs, posScores, negScores)
	if err != nil {
		return nil, err
	}
	res := &EnrichmentResult{
		SampleIDs: fm.SampleIDs,
		Pos:       posScores,
		Neg:       negScores,
		Score:     make([]float64, n),
	}
	for i := range res.Score {
		res.Score[i] = res.Pos[i] - res.Neg[i]
	}
	return res, nil
}

// alignScores reorders pos and neg from gotIDs order into wantIDs
// order. Matching orders return the inputs unchanged; otherwise fresh
// slices are built by identifier lookup, never overwriting an input
// slot that a later cycle of the permutation still needs to read.
func alignScores(wantIDs, gotIDs []string, pos, neg []float64) ([]float64, []float64, error) {
	if sameOrder(gotIDs, wantIDs) {
		return pos, neg, nil
	}
	log.Warn("enrichment sample order differs from input; realigning by sample identifier")
	idx := make(map[string]int, len(gotIDs))
	for i, id := range gotIDs {
		idx[id] = i
	}
	outPos := make([]float64, len(wantIDs))
	outNeg := make([]float64, len(wantIDs))
	for i, id := range wantIDs {
		j, ok := idx[id]
		if !ok {
			return nil, nil, fmt.Errorf("sample %q missing from enrichment output", id)
		}
		outPos[i] = pos[j]
		outNeg[i] = neg[j]
	}
	return outPos, outNeg, nil
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type scorecmd struct{}

func (cmd *scorecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "expression `file` (tsv, genes as rows)")
	modelFilename := flags.String("model", "", "fitted model `file` (gob, from fit)")
	outputFilename := flags.String("o", "-", "score output `file` (tsv)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	}
	if *modelFilename == "" {
		err = fmt.Errorf("must provide -model")
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
	mfile, err := open(*modelFilename, nil)
	if err != nil {
		return 1
	}
	mf, err := ReadModel(mfile)
	mfile.Close()
	if err != nil {
		return 1
	}
	n, p := fm.Dims()
	log.Printf("scoring %d samples x %d features with %d+%d signature features", n, p, len(mf.Pos), len(mf.Neg))

	res, err := ScoreSamples(fm, mf.Groups, mf.Coefficients, mf.Pos, mf.Neg)
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
	fmt.Fprint(bufw, "Sample\tEnrichmentPos\tEnrichmentNeg\tScore\n")
	for i, id := range res.SampleIDs {
		fmt.Fprintf(bufw, "%s\t%g\t%g\t%g\n", id, res.Pos[i], res.Neg[i], res.Score[i])
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
