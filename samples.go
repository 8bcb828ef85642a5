// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/Lai-Guichuan/SPRA/sgl"
)

type sampleInfo struct {
	id        string
	phenotype string
}

// loadSampleInfo reads a tab-delimited sample table whose header
// includes a column named exactly "Type". Rows align by order with the
// expression matrix after transpose; the first column is taken as the
// sample identifier.
func loadSampleInfo(rdr io.Reader) ([]sampleInfo, error) {
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 1<<20), 1<<24)
	typeCol := -1
	var out []sampleInfo
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		lineno++
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if typeCol < 0 {
			for i, f := range fields {
				if f == "Type" {
					typeCol = i
					break
				}
			}
			if typeCol < 0 {
				return nil, fmt.Errorf("sample table header has no column named Type")
			}
			continue
		}
		if len(fields) <= typeCol {
			return nil, fmt.Errorf("sample table line %d: %d fields, Type column is %d", lineno, len(fields), typeCol+1)
		}
		out = append(out, sampleInfo{id: fields[0], phenotype: fields[typeCol]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sample table has no data rows")
	}
	return out, nil
}

// responseVector converts the Type column into a numeric response for
// the given family. For Binomial the column must contain exactly two
// distinct values; they map to 0 and 1 in sorted order, except that
// literal "0"/"1" values are used as-is. For Gaussian every value must
// parse as a number.
func responseVector(samples []sampleInfo, family sgl.Family) ([]float64, error) {
	y := make([]float64, len(samples))
	if family == sgl.Gaussian {
		for i, si := range samples {
			v, err := strconv.ParseFloat(si.phenotype, 64)
			if err != nil {
				return nil, fmt.Errorf("sample %s: non-numeric Type %q for gaussian family", si.id, si.phenotype)
			}
			y[i] = v
		}
		return y, nil
	}
	levels := map[string]bool{}
	for _, si := range samples {
		levels[si.phenotype] = true
	}
	if len(levels) != 2 {
		return nil, fmt.Errorf("binomial family needs exactly 2 distinct Type values, found %d", len(levels))
	}
	if levels["0"] && levels["1"] {
		for i, si := range samples {
			if si.phenotype == "1" {
				y[i] = 1
			}
		}
		return y, nil
	}
	var sorted []string
	for l := range levels {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)
	for i, si := range samples {
		if si.phenotype == sorted[1] {
			y[i] = 1
		}
	}
	return y, nil
}
