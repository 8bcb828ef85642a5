// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"fmt"
	"math"

	"github.com/Lai-Guichuan/SPRA/sgl"
)

// SignatureSets partitions the expanded features at one penalty
// strength: Pos holds names with strictly positive coefficient, Neg
// strictly negative; an exact zero belongs to neither. Coefficients
// carries the full signed table for downstream re-weighting.
type SignatureSets struct {
	Lambda       float64
	Intercept    float64
	Pos          []string
	Neg          []string
	Coefficients map[string]float64
}

// ExtractSignature resolves lambda against the model's path by nearest
// match within a small relative tolerance (floating point equality is
// not guaranteed across serialization) and partitions the coefficient
// column there. names must parallel the model's coefficient rows.
func ExtractSignature(m *sgl.Model, names []string, lambda float64) (*SignatureSets, error) {
	p, _ := m.Coef.Dims()
	if len(names) != p {
		return nil, fmt.Errorf("%d feature names for %d coefficients", len(names), p)
	}
	k, err := resolveLambda(m.Lambda, lambda)
	if err != nil {
		return nil, err
	}
	sig := &SignatureSets{
		Lambda:       m.Lambda[k],
		Intercept:    m.Intercept[k],
		Coefficients: make(map[string]float64, p),
	}
	for j, name := range names {
		v := m.Coef.At(j, k)
		sig.Coefficients[name] = v
		switch {
		case v > 0:
			sig.Pos = append(sig.Pos, name)
		case v < 0:
			sig.Neg = append(sig.Neg, name)
		}
	}
	return sig, nil
}

func resolveLambda(path []float64, lambda float64) (int, error) {
	if len(path) == 0 {
		return 0, fmt.Errorf("%w: empty path", ErrLambdaResolution)
	}
	best, bestDiff := 0, math.Abs(path[0]-lambda)
	for k, v := range path {
		if d := math.Abs(v - lambda); d < bestDiff {
			best, bestDiff = k, d
		}
	}
	tol := 1e-8 * math.Max(1, math.Abs(lambda))
	if bestDiff > tol {
		return 0, fmt.Errorf("%w: %g (nearest path entry %g)", ErrLambdaResolution, lambda, path[best])
	}
	return best, nil
}
