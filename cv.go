// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"fmt"
	"math"
	"runtime"

	"github.com/Lai-Guichuan/SPRA/sgl"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// CVConfig controls cross-validated model selection.
type CVConfig struct {
	Family sgl.Family
	Alpha  float64
	// Lambda, if non-empty, overrides the internally derived path.
	Lambda   []float64
	NLambda  int
	MinRatio float64
	// Folds is the cross-validation fold count (default 10).
	Folds int
	// Seed drives the fold assignment; the same seed always yields
	// the same folds. Process-wide random state is never touched.
	Seed           uint64
	MaxIter        int
	Tol            float64
	GroupWeights   []float64
	FeatureWeights []float64
	// Concurrency bounds the number of folds fit in parallel;
	// 0 means GOMAXPROCS. Results merge deterministically by fold
	// index regardless.
	Concurrency int
}

// DefaultCVConfig returns the fitting defaults.
func DefaultCVConfig() CVConfig {
	return CVConfig{
		Family:   sgl.Binomial,
		Alpha:    0.95,
		NLambda:  20,
		MinRatio: 0.05,
		Folds:    10,
		Seed:     1,
		MaxIter:  1000,
		Tol:      1e-5,
	}
}

// CVResult is the outcome of cross-validated fitting.
type CVResult struct {
	Lambda []float64
	// FoldErr is the folds x len(Lambda) error matrix. A cell is
	// NaN when that fold/lambda pair produced a non-finite loss
	// (e.g. a degenerate class split); such cells are excluded from
	// the mean rather than aborting the run.
	FoldErr *mat.Dense
	// MeanErr averages each lambda's finite fold errors; NaN if a
	// lambda has no finite cell, in which case it is skipped during
	// selection.
	MeanErr []float64
	// BestIndex is the first index minimizing MeanErr.
	BestIndex int
	// Model is refit on the full data over the same Lambda path used
	// for selection, so BestIndex addresses both consistently.
	Model *sgl.Model
}

// SelectedLambda returns the mean-error-minimizing penalty strength.
func (r *CVResult) SelectedLambda() float64 {
	return r.Lambda[r.BestIndex]
}

// CrossValidate selects a penalty strength for the expanded matrix by
// k-fold cross-validation and refits on all data. latent columns and
// groupVector must be parallel; validation failures are fatal and
// reported before any fitting starts.
func CrossValidate(latent *FeatureMatrix, y []float64, groupVector []int, cfg CVConfig) (*CVResult, error) {
	n, p := latent.Dims()
	if p < 2 {
		return nil, fmt.Errorf("latent matrix must have at least 2 columns, got %d", p)
	}
	if len(y) != n {
		return nil, fmt.Errorf("response has %d entries, latent matrix has %d rows", len(y), n)
	}
	if len(groupVector) != p {
		return nil, fmt.Errorf("group vector has %d entries, latent matrix has %d columns", len(groupVector), p)
	}
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		return nil, fmt.Errorf("alpha %v outside [0,1]", cfg.Alpha)
	}
	ngroup := 0
	for _, g := range groupVector {
		if g > ngroup {
			ngroup = g
		}
	}
	if cfg.GroupWeights != nil && len(cfg.GroupWeights) != ngroup {
		return nil, fmt.Errorf("%d group weights for %d groups", len(cfg.GroupWeights), ngroup)
	}
	if cfg.FeatureWeights != nil && len(cfg.FeatureWeights) != p {
		return nil, fmt.Errorf("%d feature weights for %d columns", len(cfg.FeatureWeights), p)
	}
	if cfg.Folds < 2 {
		return nil, fmt.Errorf("fold count %d, need at least 2", cfg.Folds)
	}
	if cfg.Folds > n {
		return nil, fmt.Errorf("fold count %d exceeds %d samples", cfg.Folds, n)
	}

	solverCfg := sgl.Config{
		Family:         cfg.Family,
		Alpha:          cfg.Alpha,
		NLambda:        cfg.NLambda,
		MinRatio:       cfg.MinRatio,
		GroupWeights:   cfg.GroupWeights,
		FeatureWeights: cfg.FeatureWeights,
		MaxIter:        cfg.MaxIter,
		Tol:            cfg.Tol,
	}
	path := cfg.Lambda
	if len(path) == 0 {
		path = sgl.Path(latent.X, y, solverCfg)
	}
	// Every fold and the final refit share this exact path so the
	// selected index cannot drift between selection and retrieval.
	solverCfg.Lambda = path

	folds := foldAssignments(n, cfg.Folds, rand.New(rand.NewSource(cfg.Seed)))

	foldErr := mat.NewDense(cfg.Folds, len(path), nil)
	workers := cfg.Concurrency
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	t := throttle{Max: workers}
	for fold := 0; fold < cfg.Folds; fold++ {
		fold := fold
		t.Go(func() error {
			return cvFold(latent.X, y, groupVector, folds, fold, solverCfg, foldErr)
		})
	}
	if err := t.Wait(); err != nil {
		return nil, err
	}

	meanErr, best, err := selectLambda(foldErr)
	if err != nil {
		return nil, err
	}
	log.Printf("selected lambda %g (index %d of %d)", path[best], best, len(path))

	model, err := sgl.Fit(latent.X, y, groupVector, solverCfg)
	if err != nil {
		return nil, err
	}
	return &CVResult{
		Lambda:    path,
		FoldErr:   foldErr,
		MeanErr:   meanErr,
		BestIndex: best,
		Model:     model,
	}, nil
}

// selectLambda averages each lambda's fold errors over finite cells
// only and picks the first index with minimal mean. A lambda whose
// cells are all NaN gets a NaN mean and is never selected; if every
// lambda is in that state the whole fit has failed.
func selectLambda(foldErr *mat.Dense) (meanErr []float64, best int, err error) {
	folds, nlam := foldErr.Dims()
	meanErr = make([]float64, nlam)
	for k := 0; k < nlam; k++ {
		sum, cnt := 0.0, 0
		for fold := 0; fold < folds; fold++ {
			if v := foldErr.At(fold, k); !math.IsNaN(v) {
				sum += v
				cnt++
			}
		}
		if cnt == 0 {
			meanErr[k] = math.NaN()
		} else {
			meanErr[k] = sum / float64(cnt)
		}
	}
	best = -1
	for k, v := range meanErr {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v < meanErr[best] {
			best = k
		}
	}
	if best < 0 {
		return nil, 0, fmt.Errorf("cross-validation produced no finite mean error for any lambda")
	}
	return meanErr, best, nil
}

// foldAssignments maps each of n observations to a fold in [0,k) via a
// seeded shuffle; fold sizes are balanced within one.
func foldAssignments(n, k int, rng *rand.Rand) []int {
	folds := make([]int, n)
	for i, j := range rng.Perm(n) {
		folds[j] = i % k
	}
	return folds
}

// cvFold fits all but one fold across the full lambda path and writes
// the held-out errors into row fold of foldErr. Rows are disjoint per
// fold, so concurrent writers never overlap.
func cvFold(x *mat.Dense, y []float64, groupVector []int, folds []int, fold int, cfg sgl.Config, foldErr *mat.Dense) error {
	n, p := x.Dims()
	var trainIdx, testIdx []int
	for i := 0; i < n; i++ {
		if folds[i] == fold {
			testIdx = append(testIdx, i)
		} else {
			trainIdx = append(trainIdx, i)
		}
	}
	xtr := subsetRows(x, trainIdx, p)
	ytr := subsetVec(y, trainIdx)
	xte := subsetRows(x, testIdx, p)
	yte := subsetVec(y, testIdx)

	m, err := sgl.Fit(xtr, ytr, groupVector, cfg)
	if err != nil {
		return fmt.Errorf("fold %d: %w", fold+1, err)
	}
	for k := range cfg.Lambda {
		pred, err := m.PredictLinear(xte, k)
		if err != nil {
			return fmt.Errorf("fold %d: %w", fold+1, err)
		}
		var loss float64
		if cfg.Family == sgl.Gaussian {
			loss = mseLoss(pred, yte)
		} else {
			loss = logLoss(pred, yte)
		}
		if math.IsInf(loss, 0) {
			loss = math.NaN()
		}
		foldErr.Set(fold, k, loss)
	}
	return nil
}

func subsetRows(x *mat.Dense, idx []int, p int) *mat.Dense {
	out := mat.NewDense(len(idx), p, nil)
	for r, i := range idx {
		out.SetRow(r, x.RawRowView(i))
	}
	return out
}

func subsetVec(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for r, i := range idx {
		out[r] = v[i]
	}
	return out
}

func mseLoss(pred, y []float64) float64 {
	var sum float64
	for i, p := range pred {
		d := p - y[i]
		sum += d * d
	}
	return sum / float64(len(y))
}

// logLoss is the mean binary cross-entropy of the logistic link
// applied to the linear predictor. Probabilities are clamped away from
// 0 and 1 so a confident wrong prediction yields a large finite loss.
func logLoss(pred, y []float64) float64 {
	const eps = 1e-9
	var sum float64
	for i, p := range pred {
		mu := 1 / (1 + math.Exp(-p))
		if mu < eps {
			mu = eps
		} else if mu > 1-eps {
			mu = 1 - eps
		}
		if y[i] == 1 {
			sum -= math.Log(mu)
		} else {
			sum -= math.Log(1 - mu)
		}
	}
	return sum / float64(len(y))
}
