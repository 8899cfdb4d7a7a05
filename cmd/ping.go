// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/acmitm/internal/bridge"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the IR bridge by sending PING_REQUEST",
	Long: `Send PING_REQUEST frames to the IR bridge and wait for PING_RESPONSE.

This verifies bidirectional communication with the bridge board, over serial
or through its WebSocket endpoint. The response carries the bridge's uptime.

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	quiet := logrus.New()
	quiet.SetLevel(logrus.ErrorLevel)
	link := bridge.NewLink(conn, bridge.Options{Logger: logrus.NewEntry(quiet)})
	defer link.Close()

	readErr := make(chan error, 1)
	go func() { readErr <- link.Run(ctx, bridge.Handlers{}) }()

	fmt.Printf("acmitm - Bridge Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		pctx, pcancel := context.WithTimeout(ctx, time.Duration(pingTimeout)*time.Second)
		uptime, rtt, err := link.Ping(pctx)
		pcancel()

		switch {
		case err == nil:
			fmt.Printf("PONG from bridge, uptime=%s, rtt=%v\n", formatUptime(uptime), rtt.Round(time.Millisecond))
			successCount++
		case errors.Is(err, context.DeadlineExceeded):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		select {
		case err := <-readErr:
			fmt.Fprintf(os.Stderr, "Connection lost: %v\n", err)
			os.Exit(2)
		default:
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
