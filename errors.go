// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import "errors"

var (
	// ErrGroupMatch means a group definition resolved to zero
	// features of the matrix it was applied to: wrong identifiers,
	// not a valid empty group.
	ErrGroupMatch = errors.New("group matches no feature")

	// ErrLambdaResolution means a requested penalty strength could
	// not be located in a model's lambda path within tolerance.
	ErrLambdaResolution = errors.New("lambda not found in path")

	// ErrEmptySignature means the Pos or Neg expanded-feature set is
	// empty, so no enrichment score can be computed for it.
	ErrEmptySignature = errors.New("empty signature set")
)
