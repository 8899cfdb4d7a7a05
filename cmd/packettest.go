// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/irbridge"
)

var (
	packetTestTimeout int
	packetTestCapture bool
)

// Exit codes of packet_test.
const (
	packetTestOK        = 0
	packetTestTimedOut  = 1
	packetTestConnError = 2
	packetTestNoFrame   = 3
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Check the bridge link and, optionally, remote decoding",
	Long: `Wait for a valid IR bridge frame on the connection until timeout.

Invalid bytes are skipped until a complete frame passes the CRC check. With
--capture, frames other than IR captures are ignored and the first capture is
decoded with the selected profile: press a button on the unit's remote while
the command waits.

Exit codes:
  0 - Frame received (and, with --capture, decoded) before timeout
  1 - Timeout reached without receiving a matching frame
  2 - Connection error
  3 - Capture received but the profile could not decode it`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	packetTestCmd.Flags().BoolVar(&packetTestCapture, "capture", false, "Wait for an IR capture and decode it")
}

// wantFrame reports whether packet ends the wait.
func wantFrame(packet *irbridge.Packet, captureOnly bool) bool {
	return !captureOnly || packet.Type() == irbridge.MsgIRReceived
}

// frameReport describes packet and returns the exit code it earns.
func frameReport(profile acproto.Profile, packet *irbridge.Packet) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "  Type: %s (0x%02X)\n", irbridge.FormatMessageType(packet.Type()), packet.Type())
	fmt.Fprintf(&b, "  Length: %d bytes\n", packet.Length())
	fmt.Fprintf(&b, "  CRC: 0x%04X\n", packet.CRC())
	for _, e := range irbridge.ValidatePacket(packet) {
		fmt.Fprintf(&b, "  Warning: %s\n", e.Message)
	}

	pulses, ok := packet.Pulses()
	if !ok || packet.Type() != irbridge.MsgIRReceived {
		return b.String(), packetTestOK
	}
	fmt.Fprintf(&b, "  Pulses: %d\n", len(pulses))
	r, err := profile.Decode(pulses)
	if err != nil {
		fmt.Fprintf(&b, "  %s: no frame (%v)\n", profile.Name(), err)
		return b.String(), packetTestNoFrame
	}
	fmt.Fprintf(&b, "  %s: %s\n", profile.Name(), describeReading(r))
	return b.String(), packetTestOK
}

func runPacketTest(cmd *cobra.Command, args []string) error {
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
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(packetTestConnError)
	}
	defer conn.Close()

	fmt.Printf("acmitm - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Profile: %s\n", profile.Name())
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	if packetTestCapture {
		fmt.Printf("Waiting for an IR capture, press a button on the remote...\n\n")
	} else {
		fmt.Printf("Waiting for a valid bridge frame...\n\n")
	}

	found := make(chan *irbridge.Packet, 1)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readFrames(conn,
			func(invalid int) {
				if invalid > 0 {
					fmt.Printf("(skipped %d invalid bytes before sync)\n", invalid)
				}
			},
			func(packet *irbridge.Packet, err error) {
				if err != nil || !wantFrame(packet, packetTestCapture) {
					return
				}
				select {
				case found <- packet:
				default:
				}
			},
		)
	}()

	select {
	case packet := <-found:
		report, code := frameReport(profile, packet)
		if code == packetTestOK {
			fmt.Printf("SUCCESS: Received valid frame\n")
		} else {
			fmt.Printf("FAILED: Capture did not decode\n")
		}
		fmt.Print(report)
		os.Exit(code)

	case err := <-readErr:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(packetTestConnError)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No matching frame received within %d seconds\n", packetTestTimeout)
		os.Exit(packetTestTimedOut)
	}

	return nil
}
