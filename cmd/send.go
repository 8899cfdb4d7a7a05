// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/acmitm/internal/bridge"
	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/irbridge"
)

var (
	sendPower       bool
	sendDetected    bool
	sendTemperature int
	sendMode        string
	sendFan         string
	sendWait        time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Encode one AC command and transmit it through the bridge",
	Long: `Encode a command with the selected profile and transmit it once.

The power bit of the vendor protocol is a toggle: it is set when --power and
--detected-power differ. Leave both on to change settings of a running unit;
pass --detected-power=false to switch an idle unit on.

The persisted state is not touched. Use run for that.`,
	Example: `  acmitm send --port /dev/ttyUSB0 --temperature 22 --mode cool --fan auto
  acmitm send --url ws://bridge.local/ir --power=false`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendPower, "power", true, "Commanded power")
	sendCmd.Flags().BoolVar(&sendDetected, "detected-power", true, "Power level the unit currently has")
	sendCmd.Flags().IntVarP(&sendTemperature, "temperature", "t", 24, "Target temperature in °C")
	sendCmd.Flags().StringVar(&sendMode, "mode", "cool", "Mode (cool, heat, dry, fan_only, auto)")
	sendCmd.Flags().StringVar(&sendFan, "fan", "auto", "Fan speed (low, medium, high, auto)")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 500*time.Millisecond, "How long to wait for a bridge error report")
}

// buildCommand validates the flags against profile.
func buildCommand(profile acproto.Profile) (acproto.Command, error) {
	if !acproto.InBounds(profile, sendTemperature) {
		lo, hi := profile.Bounds()
		return acproto.Command{}, fmt.Errorf("temperature %d not in [%d, %d]", sendTemperature, lo, hi)
	}
	mode, ok := acproto.ParseMode(sendMode)
	if !ok || !acproto.SupportsMode(profile, mode) {
		return acproto.Command{}, fmt.Errorf("%s does not support mode %q", profile.Name(), sendMode)
	}
	fan, ok := acproto.ParseFan(sendFan)
	if !ok || !acproto.SupportsFan(profile, fan) {
		return acproto.Command{}, fmt.Errorf("%s does not support fan %q", profile.Name(), sendFan)
	}
	return acproto.Command{
		Power:         sendPower,
		DetectedPower: sendDetected,
		Temperature:   sendTemperature,
		Mode:          mode,
		Fan:           fan,
	}, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	profile, err := acproto.Lookup(cfg.Device.Model)
	if err != nil {
		return err
	}
	command, err := buildCommand(profile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx, cfg)
	if err != nil {
		return err
	}
	quiet := logrus.New()
	quiet.SetLevel(logrus.FatalLevel)
	link := bridge.NewLink(conn, bridge.Options{Logger: logrus.NewEntry(quiet)})
	defer link.Close()

	rejected := make(chan uint64, 1)
	go link.Run(ctx, bridge.Handlers{
		OnPacket: func(p *irbridge.Packet) {
			if p.Type() != irbridge.MsgErrorTransmit {
				return
			}
			code, _ := irbridge.GetMapUint(p.PayloadMap(), 0)
			select {
			case rejected <- code:
			default:
			}
		},
	})

	pulses, word := profile.Encode(command)
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("%s: %s\n", profile.Name(), describeReading(acproto.Reading{
		Word:        word,
		PowerToggle: command.Power != command.DetectedPower,
		Temperature: command.Temperature,
		Mode:        &command.Mode,
		Fan:         &command.Fan,
	}))
	fmt.Printf("Pulses: %d\n", len(pulses))

	if err := link.Transmit(pulses); err != nil {
		return err
	}

	select {
	case code := <-rejected:
		return fmt.Errorf("bridge rejected the transmission (code 0x%02X)", code)
	case <-time.After(sendWait):
	}
	fmt.Println("Sent")
	return nil
}
