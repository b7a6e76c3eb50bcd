// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backplate/pkg/backplate"
)

var encodeResponse bool

var encodeCmd = &cobra.Command{
	Use:   "encode ID [HEXPAYLOAD]",
	Short: "Print the wire bytes of a frame",
	Long: `Encode a frame without touching any link.

ID is a message name (GET_TFE_VERSION, reset, ...) or a number (0x83, 131).
HEXPAYLOAD is the payload as hex digits, spaces and colons are ignored.

Examples:
  backplate encode RESET
  backplate encode 0x83
  backplate encode --response TEMP_HUMIDITY_DATA "31 09 0B 02"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().BoolVar(&encodeResponse, "response", false, "Encode as a backplate response instead of a command")
}

// parseMessageID accepts a message name or a numeric id
func parseMessageID(s string) (backplate.MessageType, error) {
	if id, ok := backplate.ParseMessageType(strings.ToUpper(s)); ok {
		return id, nil
	}

	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown message %q", s)
	}
	return backplate.MessageType(n), nil
}

// parseHexPayload decodes hex digits, ignoring spaces and colons
func parseHexPayload(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(s)
	payload, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return payload, nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	id, err := parseMessageID(args[0])
	if err != nil {
		return err
	}

	var payload []byte
	if len(args) > 1 {
		payload, err = parseHexPayload(args[1])
		if err != nil {
			return err
		}
	}

	role := backplate.RoleCommand
	if encodeResponse {
		role = backplate.RoleResponse
	}

	data, err := backplate.Encode(role, id, payload)
	if err != nil {
		return err
	}

	fmt.Printf("%s (0x%04X) len=%d\n", id, uint16(id), len(payload))
	fmt.Printf("% X\n", data)
	return nil
}
