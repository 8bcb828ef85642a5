// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
)

// ModelFile is the serialized interchange format between fitting and
// scoring. The group definition used at training time travels with the
// model so scoring can re-expand new data identically.
type ModelFile struct {
	Family    string
	Alpha     float64
	Lambda    []float64
	BestIndex int
	FoldErr   [][]float64
	MeanErr   []float64
	Intercept float64
	// Coefficients maps expanded-feature name to its signed value at
	// the selected lambda.
	Coefficients map[string]float64
	Pos          []string
	Neg          []string
	Groups       GroupDefinition
}

func WriteModel(w io.Writer, mf *ModelFile) error {
	bufw := bufio.NewWriter(w)
	if err := gob.NewEncoder(bufw).Encode(mf); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return bufw.Flush()
}

func ReadModel(rdr io.Reader) (*ModelFile, error) {
	var mf ModelFile
	if err := gob.NewDecoder(bufio.NewReader(rdr)).Decode(&mf); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	if len(mf.Groups) == 0 {
		return nil, fmt.Errorf("model file has no group definition")
	}
	if len(mf.Coefficients) == 0 {
		return nil, fmt.Errorf("model file has no coefficients")
	}
	return &mf, nil
}
