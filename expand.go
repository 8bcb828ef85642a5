// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/james-bowman/sparse"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Expansion is the output of expanding a FeatureMatrix by a
// GroupDefinition. A feature belonging to m groups appears m times in
// the latent matrix, once per owning group, each occurrence
// independently regularizable. All fields are immutable once built.
type Expansion struct {
	// Incidence is the binary groups x features membership matrix.
	Incidence *sparse.CSR
	// Overlap is Incidence * Incidence'; its diagonal holds each
	// group's expanded width, off-diagonal entries count shared
	// features.
	Overlap *sparse.CSR
	// Latent is the samples x expanded-features matrix; column k of
	// group g is named grp<g>_<original-name>.
	Latent *FeatureMatrix
	// GroupVector assigns each latent column its owning 1-based
	// group id, group-major, matching the latent column order.
	GroupVector []int
}

// Expand builds the latent feature matrix for fm under def. Group
// members referenced by index resolve against column positions; those
// referenced by name resolve against the (possibly synthesized) column
// names. A group matching no column at all is a fatal GroupMatchError.
// The transformation is pure and deterministic.
func Expand(fm *FeatureMatrix, def GroupDefinition) (*Expansion, error) {
	if len(def) == 0 {
		return nil, fmt.Errorf("empty group definition")
	}
	n, p := fm.Dims()
	names := resolveNames(fm.FeatureNames, p)
	colidx := make(map[string]int, p)
	for j, name := range names {
		if _, dup := colidx[name]; !dup {
			colidx[name] = j
		}
	}

	dok := sparse.NewDOK(len(def), p)
	for g, grp := range def {
		matched := 0
		for _, ref := range grp.Members {
			if ref.ByIndex() {
				if ref.Index >= 1 && ref.Index <= p {
					dok.Set(g, ref.Index-1, 1)
					matched++
				}
			} else if j, ok := colidx[ref.Name]; ok {
				dok.Set(g, j, 1)
				matched++
			}
		}
		if matched == 0 {
			return nil, fmt.Errorf("%w: group %d (%q) against %d features", ErrGroupMatch, g+1, grp.Name, p)
		}
	}
	incidence := dok.ToCSR()

	overlap := &sparse.CSR{}
	overlap.Mul(incidence, incidence.T())

	width := 0
	widths := make([]int, len(def))
	for g := range def {
		widths[g] = int(overlap.At(g, g))
		width += widths[g]
	}

	groupVector := make([]int, 0, width)
	latentNames := make([]string, 0, width)
	x := mat.NewDense(n, width, nil)
	col := make([]float64, n)
	k := 0
	for g := range def {
		for j := 0; j < p; j++ {
			if incidence.At(g, j) == 0 {
				continue
			}
			mat.Col(col, j, fm.X)
			x.SetCol(k, col)
			latentNames = append(latentNames, fmt.Sprintf("grp%d_%s", g+1, names[j]))
			groupVector = append(groupVector, g+1)
			k++
		}
	}
	if k != width {
		return nil, fmt.Errorf("internal: built %d latent columns, overlap diagonal sums to %d", k, width)
	}

	return &Expansion{
		Incidence: incidence,
		Overlap:   overlap,
		Latent: &FeatureMatrix{
			SampleIDs:    fm.SampleIDs,
			FeatureNames: latentNames,
			X:            x,
		},
		GroupVector: groupVector,
	}, nil
}

type expandcmd struct{}

func (cmd *expandcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "expression `file` (tsv, genes as rows)")
	groupsFilename := flags.String("groups", "", "gene group `file` (gmt)")
	outputFilename := flags.String("o", "-", "latent matrix output `file`")
	groupVectorFilename := flags.String("group-vector", "", "optional group vector output `file` (tsv)")
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
	if *groupsFilename == "" {
		err = fmt.Errorf("must provide -groups")
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
	n, p := fm.Dims()
	log.Printf("expanding %d samples x %d features by %d groups", n, p, len(def))
	exp, err := Expand(fm, def)
	if err != nil {
		return 1
	}
	log.Printf("latent matrix has %d columns", len(exp.GroupVector))

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
	err = exp.Latent.WriteTSV(output)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *groupVectorFilename != "" {
		var f *os.File
		f, err = os.Create(*groupVectorFilename)
		if err != nil {
			return 1
		}
		defer f.Close()
		bufw := bufio.NewWriter(f)
		fmt.Fprint(bufw, "ExpandedFeature\tGroup\n")
		for k, name := range exp.Latent.FeatureNames {
			fmt.Fprintf(bufw, "%s\t%d\n", name, exp.GroupVector[k])
		}
		err = bufw.Flush()
		if err != nil {
			return 1
		}
		err = f.Close()
		if err != nil {
			return 1
		}
	}
	return 0
}
