// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"github.com/Lai-Guichuan/SPRA/sgl"
	"gopkg.in/check.v1"
)

type samplesSuite struct{}

var _ = check.Suite(&samplesSuite{})

func (s *samplesSuite) TestResponseBinomialLabels(c *check.C) {
	samples := []sampleInfo{
		{id: "s1", phenotype: "tumor"},
		{id: "s2", phenotype: "normal"},
		{id: "s3", phenotype: "tumor"},
	}
	y, err := responseVector(samples, sgl.Binomial)
	c.Assert(err, check.IsNil)
	// sorted levels: normal=0, tumor=1
	c.Check(y, check.DeepEquals, []float64{1, 0, 1})
}

func (s *samplesSuite) TestResponseBinomialNumeric(c *check.C) {
	samples := []sampleInfo{
		{id: "s1", phenotype: "0"},
		{id: "s2", phenotype: "1"},
	}
	y, err := responseVector(samples, sgl.Binomial)
	c.Assert(err, check.IsNil)
	c.Check(y, check.DeepEquals, []float64{0, 1})
}

func (s *samplesSuite) TestResponseBinomialTooManyLevels(c *check.C) {
	samples := []sampleInfo{
		{id: "s1", phenotype: "a"},
		{id: "s2", phenotype: "b"},
		{id: "s3", phenotype: "c"},
	}
	_, err := responseVector(samples, sgl.Binomial)
	c.Check(err, check.NotNil)
}

func (s *samplesSuite) TestResponseGaussian(c *check.C) {
	samples := []sampleInfo{
		{id: "s1", phenotype: "1.5"},
		{id: "s2", phenotype: "-2"},
	}
	y, err := responseVector(samples, sgl.Gaussian)
	c.Assert(err, check.IsNil)
	c.Check(y, check.DeepEquals, []float64{1.5, -2})

	samples[1].phenotype = "tumor"
	_, err = responseVector(samples, sgl.Gaussian)
	c.Check(err, check.NotNil)
}
