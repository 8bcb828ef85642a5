// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	spra "github.com/Lai-Guichuan/SPRA"
)

func main() {
	spra.Main()
}
