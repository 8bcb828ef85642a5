// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bytes"
	"errors"

	"github.com/Lai-Guichuan/SPRA/sgl"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type signatureSuite struct{}

var _ = check.Suite(&signatureSuite{})

func pathModel() *sgl.Model {
	return &sgl.Model{
		Family: sgl.Binomial,
		Alpha:  0.95,
		Lambda: []float64{0.8, 0.4, 0.2, 0.1},
		Coef: mat.NewDense(4, 4, []float64{
			0, 0.5, 0.9, 1.1,
			0, 0, -0.3, -0.6,
			0, 0, 0, 0,
			0, 0, 0, 0.2,
		}),
		Intercept: []float64{0.1, 0.2, 0.3, 0.4},
	}
}

func (s *signatureSuite) TestPartition(c *check.C) {
	names := []string{"grp1_a", "grp1_b", "grp2_c", "grp2_d"}
	sig, err := ExtractSignature(pathModel(), names, 0.2)
	c.Assert(err, check.IsNil)
	c.Check(sig.Lambda, check.Equals, 0.2)
	c.Check(sig.Intercept, check.Equals, 0.3)
	c.Check(sig.Pos, check.DeepEquals, []string{"grp1_a"})
	c.Check(sig.Neg, check.DeepEquals, []string{"grp1_b"})
	// exact zero belongs to neither set but stays in the table
	c.Check(sig.Coefficients["grp2_c"], check.Equals, 0.0)
	c.Check(sig.Coefficients, check.HasLen, 4)

	// Pos and Neg never intersect
	for _, p := range sig.Pos {
		for _, n := range sig.Neg {
			c.Assert(p == n, check.Equals, false)
		}
	}
}

func (s *signatureSuite) TestLambdaResolution(c *check.C) {
	names := []string{"a", "b", "c", "d"}
	// tiny float drift still resolves to the nearest path entry
	sig, err := ExtractSignature(pathModel(), names, 0.4+1e-12)
	c.Assert(err, check.IsNil)
	c.Check(sig.Lambda, check.Equals, 0.4)

	_, err = ExtractSignature(pathModel(), names, 0.33)
	c.Assert(err, check.NotNil)
	c.Check(errors.Is(err, ErrLambdaResolution), check.Equals, true)

	_, err = ExtractSignature(pathModel(), names[:3], 0.4)
	c.Check(err, check.NotNil)
}

func (s *signatureSuite) TestModelFileRoundTrip(c *check.C) {
	mf := &ModelFile{
		Family:       "binomial",
		Alpha:        0.95,
		Lambda:       []float64{0.8, 0.4},
		BestIndex:    1,
		FoldErr:      [][]float64{{0.7, 0.5}, {0.6, 0.4}},
		MeanErr:      []float64{0.65, 0.45},
		Intercept:    -0.2,
		Coefficients: map[string]float64{"grp1_a": 1.5, "grp1_b": -0.7},
		Pos:          []string{"grp1_a"},
		Neg:          []string{"grp1_b"},
		Groups:       GroupDefinition{{Name: "A", Members: []GroupRef{{Name: "a"}, {Name: "b"}}}},
	}
	var buf bytes.Buffer
	c.Assert(WriteModel(&buf, mf), check.IsNil)
	got, err := ReadModel(&buf)
	c.Assert(err, check.IsNil)
	c.Check(got.BestIndex, check.Equals, 1)
	c.Check(got.Coefficients, check.DeepEquals, mf.Coefficients)
	c.Check(got.Groups, check.DeepEquals, mf.Groups)

	_, err = ReadModel(bytes.NewReader(nil))
	c.Check(err, check.NotNil)
}
