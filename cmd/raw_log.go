// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/acmitm/internal/bridge"
	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/irbridge"
)

var rawLogPulses int

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw bridge frames in human-readable format",
	Long: `Continuously decode and display IR bridge frames as they arrive.

Each frame is shown with timestamp, message type and payload. IR captures are
additionally run through the selected AC profile and the decoded protocol word
is printed.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogPulses, "pulses", 0, "Print up to N pulses of each capture (0 for none)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	profile, err := acproto.Lookup(cfg.Device.Model)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("acmitm - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Profile: %s\n", profile.Name())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := irbridge.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// A WebSocket read error means the connection is gone
			if errors.Is(err, bridge.ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet == nil {
				continue
			}
			fmt.Print(irbridge.FormatPacket(packet))

			pulses, ok := packet.Pulses()
			if !ok || packet.Type() != irbridge.MsgIRReceived {
				continue
			}
			if rawLogPulses > 0 {
				fmt.Printf("  %s\n", irbridge.FormatPulses(pulses, rawLogPulses))
			}
			fmt.Printf("  %s\n", describeCapture(profile, pulses))
		}
	}
}
