// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bytes"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"gopkg.in/check.v1"
)

type matrixSuite struct{}

var _ = check.Suite(&matrixSuite{})

const exprTSV = "Gene\ts1\ts2\ts3\n" +
	"gene1\t1\t2\t3\n" +
	"gene2\t4\t5\t6\n"

func (s *matrixSuite) TestLoadTransposes(c *check.C) {
	fm, err := LoadFeatureMatrix(strings.NewReader(exprTSV))
	c.Assert(err, check.IsNil)
	n, p := fm.Dims()
	c.Check(n, check.Equals, 3) // samples
	c.Check(p, check.Equals, 2) // genes
	c.Check(fm.SampleIDs, check.DeepEquals, []string{"s1", "s2", "s3"})
	c.Check(fm.FeatureNames, check.DeepEquals, []string{"gene1", "gene2"})
	c.Check(fm.X.At(0, 0), check.Equals, 1.0)
	c.Check(fm.X.At(2, 1), check.Equals, 6.0)
}

func (s *matrixSuite) TestLoadErrors(c *check.C) {
	_, err := LoadFeatureMatrix(strings.NewReader(""))
	c.Check(err, check.NotNil)

	_, err = LoadFeatureMatrix(strings.NewReader("Gene\ts1\ngene1\tnotanumber\n"))
	c.Check(err, check.NotNil)

	_, err = LoadFeatureMatrix(strings.NewReader("Gene\ts1\ts2\ngene1\t1\n"))
	c.Check(err, check.NotNil)
}

func (s *matrixSuite) TestOpenGzip(c *check.C) {
	tmpdir := c.MkDir()
	path := tmpdir + "/expr.tsv.gz"
	f, err := os.Create(path)
	c.Assert(err, check.IsNil)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(exprTSV))
	c.Assert(err, check.IsNil)
	c.Assert(gz.Close(), check.IsNil)
	c.Assert(f.Close(), check.IsNil)

	rdr, err := open(path, nil)
	c.Assert(err, check.IsNil)
	fm, err := LoadFeatureMatrix(rdr)
	c.Assert(err, check.IsNil)
	c.Assert(rdr.Close(), check.IsNil)
	c.Check(fm.SampleIDs, check.DeepEquals, []string{"s1", "s2", "s3"})
}

func (s *matrixSuite) TestResolveNames(c *check.C) {
	c.Check(resolveNames([]string{"a", "b"}, 2), check.DeepEquals, []string{"a", "b"})
	c.Check(resolveNames(nil, 3), check.DeepEquals, []string{"V1", "V2", "V3"})
	c.Check(resolveNames([]string{"a", ""}, 2), check.DeepEquals, []string{"V1", "V2"})
	c.Check(resolveNames([]string{"a"}, 2), check.DeepEquals, []string{"V1", "V2"})
}

func (s *matrixSuite) TestWriteTSV(c *check.C) {
	fm, err := LoadFeatureMatrix(strings.NewReader(exprTSV))
	c.Assert(err, check.IsNil)
	var buf bytes.Buffer
	c.Assert(fm.WriteTSV(&buf), check.IsNil)
	c.Check(buf.String(), check.Equals, "Sample\tgene1\tgene2\n"+
		"s1\t1\t4\n"+
		"s2\t2\t5\n"+
		"s3\t3\t6\n")
}

func (s *matrixSuite) TestLoadSampleInfo(c *check.C) {
	tsv := "Sample\tAge\tType\n" +
		"s1\t41\ttumor\n" +
		"s2\t57\tnormal\n"
	samples, err := loadSampleInfo(strings.NewReader(tsv))
	c.Assert(err, check.IsNil)
	c.Assert(samples, check.HasLen, 2)
	c.Check(samples[0].id, check.Equals, "s1")
	c.Check(samples[0].phenotype, check.Equals, "tumor")

	_, err = loadSampleInfo(strings.NewReader("Sample\tAge\ns1\t41\n"))
	c.Check(err, check.NotNil)
}
