// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Lumen - MAVLink LED rig control
//
// A CLI tool for setting the colors of a vehicle-mounted LED rig over
// MAVLink, monitoring the link, and simulating the rig itself.

package main

import (
	"os"

	"github.com/Thermoquad/lumen/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
