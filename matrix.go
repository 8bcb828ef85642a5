// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	"gonum.org/v1/gonum/mat"
)

// FeatureMatrix is a samples x features expression matrix. Row order
// defines sample identity for the rest of the pipeline.
type FeatureMatrix struct {
	SampleIDs    []string
	FeatureNames []string
	X            *mat.Dense
}

// Dims returns (samples, features).
func (fm *FeatureMatrix) Dims() (int, int) {
	return fm.X.Dims()
}

// open returns a reader for path, decompressing transparently if the
// name ends in .gz. "-" means stdin.
func open(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		f.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, f}, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// LoadFeatureMatrix reads a tab-delimited expression table stored in
// the genes-as-rows convention (header = sample identifiers, first
// column = gene names) and transposes it into samples x features.
func LoadFeatureMatrix(rdr io.Reader) (*FeatureMatrix, error) {
	rows, rowNames, colNames, err := readTable(rdr)
	if err != nil {
		return nil, err
	}
	ngene := len(rows)
	if ngene == 0 {
		return nil, fmt.Errorf("expression table has no data rows")
	}
	nsample := len(rows[0])
	x := mat.NewDense(nsample, ngene, nil)
	for g, row := range rows {
		for s, v := range row {
			x.Set(s, g, v)
		}
	}
	return &FeatureMatrix{
		SampleIDs:    colNames,
		FeatureNames: resolveNames(rowNames, ngene),
		X:            x,
	}, nil
}

// readTable parses a tab-delimited table with a header row and a label
// in the first column of every data row. All remaining cells must be
// numeric, and all rows must have the same width.
func readTable(rdr io.Reader) (data [][]float64, rowNames, colNames []string, err error) {
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	lineno := 0
	width := -1
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		lineno++
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if colNames == nil {
			// header: first cell is a corner label, rest are
			// column identifiers
			colNames = fields[1:]
			width = len(colNames)
			continue
		}
		if len(fields) != width+1 {
			return nil, nil, nil, fmt.Errorf("line %d: %d fields, expected %d", lineno, len(fields), width+1)
		}
		rowNames = append(rowNames, fields[0])
		row := make([]float64, width)
		for i, f := range fields[1:] {
			row[i], err = strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("line %d column %d: %w", lineno, i+2, err)
			}
		}
		data = append(data, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, err
	}
	if colNames == nil {
		return nil, nil, nil, fmt.Errorf("empty table")
	}
	return data, rowNames, colNames, nil
}

// resolveNames returns names unchanged if they are usable as column
// names for a width-p matrix, otherwise synthesizes positional names
// V1..Vp. Columns are never dropped.
func resolveNames(names []string, p int) []string {
	ok := len(names) == p
	if ok {
		for _, n := range names {
			if n == "" {
				ok = false
				break
			}
		}
	}
	if ok {
		return names
	}
	out := make([]string, p)
	for i := range out {
		out[i] = fmt.Sprintf("V%d", i+1)
	}
	return out
}

// WriteTSV renders the matrix in the samples-as-rows orientation, with
// a header of feature names and sample identifiers in the first
// column.
func (fm *FeatureMatrix) WriteTSV(w io.Writer) error {
	bufw := bufio.NewWriter(w)
	fmt.Fprint(bufw, "Sample")
	for _, name := range fm.FeatureNames {
		fmt.Fprintf(bufw, "\t%s", name)
	}
	fmt.Fprint(bufw, "\n")
	n, p := fm.Dims()
	for i := 0; i < n; i++ {
		fmt.Fprint(bufw, fm.SampleIDs[i])
		for j := 0; j < p; j++ {
			fmt.Fprintf(bufw, "\t%g", fm.X.At(i, j))
		}
		fmt.Fprint(bufw, "\n")
	}
	return bufw.Flush()
}
