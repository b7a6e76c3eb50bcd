// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backplate

import "github.com/sigurn/crc16"

// CRC-16-CCITT, XMODEM flavour: poly 0x1021, init 0, no reflection, no final XOR
var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CalculateCRC computes the frame checksum over data
func CalculateCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
