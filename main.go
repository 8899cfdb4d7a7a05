// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// acmitm - IR man-in-the-middle controller for air conditioners
//
// Decodes the unit's IR remote protocol from an IR bridge board, keeps the
// canonical AC state and exposes it over MQTT.

package main

import (
	"os"

	"github.com/Thermoquad/acmitm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
