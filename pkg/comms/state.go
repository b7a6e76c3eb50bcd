// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comms

import "fmt"

// State is the engine's position in the link bring-up sequence
type State int32

const (
	StateIdle State = iota
	StateSerialInit
	StateBurst
	StateInfoGathering
	StateNormal
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSerialInit:
		return "SerialInit"
	case StateBurst:
		return "Burst"
	case StateInfoGathering:
		return "InfoGathering"
	case StateNormal:
		return "Normal"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
