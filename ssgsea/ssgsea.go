// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package ssgsea computes single-sample rank-based enrichment scores
// for a named feature set, in the style of ssGSEA (Barbie et al. 2009).
//
// For each sample the features are ordered by value, descending, and a
// running difference of two empirical CDFs is accumulated: the in-set
// CDF weighted by rank^tau and the uniform out-of-set CDF. The raw
// running sums are normalized by their range across the samples of the
// call. Because only ranks enter the statistic, scores are invariant
// under any positive rescaling of the input values.
//
// The ranking uses the signed values directly and empirical CDFs.
// GSVA's ssGSEA implementation instead ranks by absolute value and
// smooths the rank distribution with a kernel density estimate, so
// scores here agree with it in direction and ordering but are not
// numerically identical to GSVA output.
package ssgsea

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// DefaultTau is the conventional rank-weighting exponent.
const DefaultTau = 0.25

// ErrEmptySet is returned when no member of the requested set matches
// any column of the scored matrix.
var ErrEmptySet = errors.New("ssgsea: feature set matches no column")

// Scores returns one enrichment score per row of x (samples x
// features). cols names the columns of x; set names the features to
// score. Set members absent from cols are ignored; if none remain,
// ErrEmptySet is returned. tau <= 0 selects DefaultTau.
func Scores(x *mat.Dense, cols []string, set []string, tau float64) ([]float64, error) {
	n, p := x.Dims()
	if len(cols) != p {
		return nil, fmt.Errorf("ssgsea: %d column names for %d columns", len(cols), p)
	}
	if tau <= 0 {
		tau = DefaultTau
	}
	colidx := make(map[string]int, p)
	for j, name := range cols {
		colidx[name] = j
	}
	inset := make([]bool, p)
	nset := 0
	for _, name := range set {
		if j, ok := colidx[name]; ok && !inset[j] {
			inset[j] = true
			nset++
		}
	}
	if nset == 0 {
		return nil, ErrEmptySet
	}
	if nset == p {
		return nil, fmt.Errorf("ssgsea: feature set covers all %d columns, complement is empty", p)
	}

	es := make([]float64, n)
	row := make([]float64, p)
	order := make([]int, p)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		for j := range order {
			order[j] = j
		}
		// descending by value, ties broken by column order
		sort.SliceStable(order, func(a, b int) bool {
			return row[order[a]] > row[order[b]]
		})
		totalIn := 0.0
		for k, j := range order {
			if inset[j] {
				totalIn += math.Pow(float64(p-k), tau)
			}
		}
		var sum, cumIn, cumOut float64
		for k, j := range order {
			if inset[j] {
				cumIn += math.Pow(float64(p-k), tau) / totalIn
			} else {
				cumOut += 1 / float64(p-nset)
			}
			sum += cumIn - cumOut
		}
		es[i] = sum
	}

	// range normalization across the samples of this call
	min, max := es[0], es[0]
	for _, v := range es {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max > min {
		for i := range es {
			es[i] /= max - min
		}
	}
	return es, nil
}
