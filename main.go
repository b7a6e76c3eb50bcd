// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Backplate - Thermostat Backplate Link Tool
//
// A CLI tool for bringing up, monitoring and decoding the serial link
// between a thermostat head unit and its backplate.

package main

import (
	"os"

	"github.com/golang/glog"

	"github.com/Thermoquad/backplate/cmd"
)

func main() {
	err := cmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
