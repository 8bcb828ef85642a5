// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/check.v1"
)

type pipelineSuite struct{}

var _ = check.Suite(&pipelineSuite{})

// writeFixture renders the end-to-end scenario to disk in the on-disk
// conventions: genes as rows in the expression file, a Type column in
// the sample table, gmt groups.
func writeFixture(c *check.C, dir string) (expr, samples, groups string) {
	fm, def, y := endToEndData()
	n, p := fm.Dims()

	var buf bytes.Buffer
	buf.WriteString("Gene")
	for _, id := range fm.SampleIDs {
		buf.WriteString("\t" + id)
	}
	buf.WriteString("\n")
	for j := 0; j < p; j++ {
		buf.WriteString(fm.FeatureNames[j])
		for i := 0; i < n; i++ {
			fmt.Fprintf(&buf, "\t%g", fm.X.At(i, j))
		}
		buf.WriteString("\n")
	}
	expr = dir + "/expr.tsv"
	c.Assert(os.WriteFile(expr, buf.Bytes(), 0644), check.IsNil)

	buf.Reset()
	buf.WriteString("Sample\tType\n")
	for i, id := range fm.SampleIDs {
		// "tumor" sorts after "normal", so it codes as 1
		label := "normal"
		if y[i] == 1 {
			label = "tumor"
		}
		fmt.Fprintf(&buf, "%s\t%s\n", id, label)
	}
	samples = dir + "/samples.tsv"
	c.Assert(os.WriteFile(samples, buf.Bytes(), 0644), check.IsNil)

	buf.Reset()
	for _, grp := range def {
		buf.WriteString(grp.Name + "\tdesc")
		for _, ref := range grp.Members {
			buf.WriteString("\t" + ref.String())
		}
		buf.WriteString("\n")
	}
	groups = dir + "/groups.gmt"
	c.Assert(os.WriteFile(groups, buf.Bytes(), 0644), check.IsNil)
	return
}

func (s *pipelineSuite) TestFitScorePipeline(c *check.C) {
	tmpdir := c.MkDir()
	expr, samples, groups := writeFixture(c, tmpdir)
	modelFile := tmpdir + "/model.gob"
	cvFile := tmpdir + "/cv.csv"

	code := (&fitcmd{}).RunCommand("spra fit", []string{
		"-i", expr,
		"-samples", samples,
		"-groups", groups,
		"-o", modelFile,
		"-cv-csv", cvFile,
		"-alpha", "0.95",
		"-folds", "5",
		"-random-seed", "11",
	}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)

	cv, err := os.ReadFile(cvFile)
	c.Assert(err, check.IsNil)
	lines := strings.Split(strings.TrimSpace(string(cv)), "\n")
	c.Check(lines[0], check.Equals, "lambda,mean,fold1,fold2,fold3,fold4,fold5")
	c.Check(lines, check.HasLen, 21) // header + default 20-lambda path

	var dumped bytes.Buffer
	code = (&dumpModel{}).RunCommand("spra dump", []string{"-i", modelFile}, bytes.NewReader(nil), &dumped, os.Stderr)
	c.Assert(code, check.Equals, 0)
	var mf ModelFile
	c.Assert(json.Unmarshal(dumped.Bytes(), &mf), check.IsNil)
	c.Check(mf.Family, check.Equals, "binomial")
	c.Check(mf.Coefficients, check.HasLen, 100)
	c.Check(mf.Groups, check.HasLen, 5)
	c.Check(mf.BestIndex >= 0 && mf.BestIndex < len(mf.Lambda), check.Equals, true)

	scoresFile := tmpdir + "/scores.tsv"
	code = (&scorecmd{}).RunCommand("spra score", []string{
		"-i", expr,
		"-model", modelFile,
		"-o", scoresFile,
	}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	if len(mf.Pos) == 0 || len(mf.Neg) == 0 {
		// a one-sided signature is a defined error, not a crash
		c.Check(code, check.Equals, 1)
		return
	}
	c.Assert(code, check.Equals, 0)

	out, err := os.ReadFile(scoresFile)
	c.Assert(err, check.IsNil)
	lines = strings.Split(strings.TrimSpace(string(out)), "\n")
	c.Assert(lines, check.HasLen, 21) // header + 20 samples
	c.Check(lines[0], check.Equals, "Sample\tEnrichmentPos\tEnrichmentNeg\tScore")
	for _, line := range lines[1:] {
		fields := strings.Split(line, "\t")
		c.Assert(fields, check.HasLen, 4)
		pos, err := strconv.ParseFloat(fields[1], 64)
		c.Assert(err, check.IsNil)
		neg, err := strconv.ParseFloat(fields[2], 64)
		c.Assert(err, check.IsNil)
		score, err := strconv.ParseFloat(fields[3], 64)
		c.Assert(err, check.IsNil)
		c.Check(score, check.Equals, pos-neg)
	}
}

func (s *pipelineSuite) TestExpandCommand(c *check.C) {
	tmpdir := c.MkDir()
	expr, _, groups := writeFixture(c, tmpdir)
	latentFile := tmpdir + "/latent.tsv"
	gvFile := tmpdir + "/groupvec.tsv"

	code := (&expandcmd{}).RunCommand("spra expand", []string{
		"-i", expr,
		"-groups", groups,
		"-o", latentFile,
		"-group-vector", gvFile,
	}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)

	latent, err := os.ReadFile(latentFile)
	c.Assert(err, check.IsNil)
	lines := strings.Split(strings.TrimSpace(string(latent)), "\n")
	c.Assert(lines, check.HasLen, 21)
	header := strings.Split(lines[0], "\t")
	c.Check(header, check.HasLen, 101)
	c.Check(header[1], check.Equals, "grp1_gene1")
	c.Check(header[100], check.Equals, "grp5_gene100")

	gv, err := os.ReadFile(gvFile)
	c.Assert(err, check.IsNil)
	gvLines := strings.Split(strings.TrimSpace(string(gv)), "\n")
	c.Assert(gvLines, check.HasLen, 101)
	c.Check(gvLines[1], check.Equals, "grp1_gene1\t1")
	c.Check(gvLines[100], check.Equals, "grp5_gene100\t5")
}

// A degenerate CV fold leaves NaN cells in the stored error surface;
// dumping such a model must still produce valid JSON.
func (s *pipelineSuite) TestDumpNonFiniteCells(c *check.C) {
	tmpdir := c.MkDir()
	mf := &ModelFile{
		Family:       "binomial",
		Alpha:        0.95,
		Lambda:       []float64{0.8, 0.4},
		BestIndex:    0,
		FoldErr:      [][]float64{{0.7, math.NaN()}, {0.6, math.Inf(1)}},
		MeanErr:      []float64{0.65, math.NaN()},
		Intercept:    -0.1,
		Coefficients: map[string]float64{"grp1_a": 1.2},
		Pos:          []string{"grp1_a"},
		Groups:       GroupDefinition{{Name: "A", Members: []GroupRef{{Name: "a"}}}},
	}
	path := tmpdir + "/model.gob"
	f, err := os.Create(path)
	c.Assert(err, check.IsNil)
	c.Assert(WriteModel(f, mf), check.IsNil)
	c.Assert(f.Close(), check.IsNil)

	var out, errout bytes.Buffer
	code := (&dumpModel{}).RunCommand("spra dump", []string{"-i", path}, bytes.NewReader(nil), &out, &errout)
	c.Assert(code, check.Equals, 0)
	var decoded map[string]interface{}
	c.Assert(json.Unmarshal(out.Bytes(), &decoded), check.IsNil)
	mean := decoded["MeanErr"].([]interface{})
	c.Check(mean[0], check.Equals, 0.65)
	c.Check(mean[1], check.IsNil)
	folds := decoded["FoldErr"].([]interface{})
	c.Check(folds[1].([]interface{})[1], check.IsNil)
}

func (s *pipelineSuite) TestScoreCommandMissingModel(c *check.C) {
	code := (&scorecmd{}).RunCommand("spra score", []string{"-model", "/nonexistent/model.gob"}, strings.NewReader(exprTSV), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(code, check.Equals, 1)
}
