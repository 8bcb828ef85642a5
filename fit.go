// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/Lai-Guichuan/SPRA/sgl"
	log "github.com/sirupsen/logrus"
)

type fitcmd struct{}

func (cmd *fitcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	inputFilename := flags.String("i", "-", "expression `file` (tsv, genes as rows)")
	samplesFilename := flags.String("samples", "", "sample info `file` (tsv with a Type column)")
	groupsFilename := flags.String("groups", "", "gene group `file` (gmt)")
	outputFilename := flags.String("o", "-", "model output `file` (gob)")
	cvCSVFilename := flags.String("cv-csv", "", "optional CV error `file` (csv, for the plot command)")
	familyName := flags.String("family", "binomial", "model `family` (binomial or gaussian)")
	alpha := flags.Float64("alpha", 0.95, "elastic mixing parameter in [0,1]")
	folds := flags.Int("folds", 10, "cross-validation fold count")
	seed := flags.Uint64("random-seed", 1, "PRNG seed for fold assignment")
	nlambda := flags.Int("nlambda", 20, "length of the derived lambda path")
	minRatio := flags.Float64("lambda-min-ratio", 0.05, "smallest lambda as a fraction of the largest")
	maxIter := flags.Int("max-iter", 1000, "solver iteration cap")
	tol := flags.Float64("tol", 1e-5, "solver convergence tolerance")
	concurrency := flags.Int("concurrency", 0, "max folds fit in parallel (0 = all CPUs)")
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
	if *samplesFilename == "" || *groupsFilename == "" {
		err = fmt.Errorf("must provide -samples and -groups")
		return 2
	}
	var family sgl.Family
	switch *familyName {
	case "binomial":
		family = sgl.Binomial
	case "gaussian":
		family = sgl.Gaussian
	default:
		err = fmt.Errorf("unknown family %q (want binomial or gaussian)", *familyName)
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
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
	n, p := fm.Dims()
	if len(samples) != n {
		err = fmt.Errorf("sample table has %d rows, expression matrix has %d samples", len(samples), n)
		return 1
	}
	for i, si := range samples {
		if si.id != fm.SampleIDs[i] {
			log.Warnf("sample table row %d is %q, expression column is %q; aligning by row order anyway", i+1, si.id, fm.SampleIDs[i])
			break
		}
	}
	y, err := responseVector(samples, family)
	if err != nil {
		return 1
	}

	log.Printf("expanding %d samples x %d features by %d groups", n, p, len(def))
	exp, err := Expand(fm, def)
	if err != nil {
		return 1
	}
	log.Printf("latent matrix has %d columns", len(exp.GroupVector))

	cfg := DefaultCVConfig()
	cfg.Family = family
	cfg.Alpha = *alpha
	cfg.Folds = *folds
	cfg.Seed = *seed
	cfg.NLambda = *nlambda
	cfg.MinRatio = *minRatio
	cfg.MaxIter = *maxIter
	cfg.Tol = *tol
	cfg.Concurrency = *concurrency

	log.Printf("cross-validating with %d folds, alpha %g", cfg.Folds, cfg.Alpha)
	res, err := CrossValidate(exp.Latent, y, exp.GroupVector, cfg)
	if err != nil {
		return 1
	}

	sig, err := ExtractSignature(res.Model, exp.Latent.FeatureNames, res.SelectedLambda())
	if err != nil {
		return 1
	}
	log.Printf("signature: %d positive, %d negative of %d expanded features", len(sig.Pos), len(sig.Neg), len(sig.Coefficients))

	mf := &ModelFile{
		Family:       family.String(),
		Alpha:        cfg.Alpha,
		Lambda:       res.Lambda,
		BestIndex:    res.BestIndex,
		MeanErr:      res.MeanErr,
		Intercept:    sig.Intercept,
		Coefficients: sig.Coefficients,
		Pos:          sig.Pos,
		Neg:          sig.Neg,
		Groups:       def,
	}
	mf.FoldErr = make([][]float64, cfg.Folds)
	for fold := 0; fold < cfg.Folds; fold++ {
		row := make([]float64, len(res.Lambda))
		copy(row, res.FoldErr.RawRowView(fold))
		mf.FoldErr[fold] = row
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
	err = WriteModel(output, mf)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *cvCSVFilename != "" {
		err = writeCVCSV(*cvCSVFilename, res)
		if err != nil {
			return 1
		}
	}
	return 0
}

// writeCVCSV renders the fold error matrix for diagnostic plotting:
// one row per lambda, columns lambda, mean, fold1..foldK.
func writeCVCSV(path string, res *CVResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	folds, _ := res.FoldErr.Dims()
	fmt.Fprint(bufw, "lambda,mean")
	for fold := 0; fold < folds; fold++ {
		fmt.Fprintf(bufw, ",fold%d", fold+1)
	}
	fmt.Fprint(bufw, "\n")
	for k, lam := range res.Lambda {
		fmt.Fprintf(bufw, "%g,%g", lam, res.MeanErr[k])
		for fold := 0; fold < folds; fold++ {
			fmt.Fprintf(bufw, ",%g", res.FoldErr.At(fold, k))
		}
		fmt.Fprint(bufw, "\n")
	}
	if err := bufw.Flush(); err != nil {
		return err
	}
	return f.Close()
}
