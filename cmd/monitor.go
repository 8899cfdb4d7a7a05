// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/acmitm/pkg/acproto"
	"github.com/Thermoquad/acmitm/pkg/irbridge"
	"github.com/Thermoquad/acmitm/pkg/manchester"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch IR captures, decode results and bridge errors",
	Long: `Track bridge frames and IR captures with live statistics.

This command validates each frame and reports:
  - CRC errors, decode failures and malformed payloads
  - IR captures, how many decode with the selected profile and what they carry
  - Power detector edges and transmit errors reported by the bridge
  - Frame and error rates

By default, only errors and decoded commands are displayed. Use --show-all to
display every frame.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors and commands)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics interval in text mode (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// monitorEvent is one line of the monitor log.
type monitorEvent struct {
	at      time.Time
	message string
	isError bool
}

// captureTracker folds bridge frames into statistics, the last decoded
// command and the detected power level.
type captureTracker struct {
	profile   acproto.Profile
	minPulses int
	showAll   bool
	stats     *irbridge.Statistics

	lastReading   *acproto.Reading
	lastReadingAt time.Time
	detectedPower *bool
}

func newCaptureTracker(profile acproto.Profile, minPulses int, showAll bool) *captureTracker {
	return &captureTracker{
		profile:   profile,
		minPulses: minPulses,
		showAll:   showAll,
		stats:     irbridge.NewStatistics(),
	}
}

// observe records one decoder result and returns what is worth logging.
func (t *captureTracker) observe(packet *irbridge.Packet, decodeErr error) []monitorEvent {
	now := time.Now()
	if decodeErr != nil {
		t.stats.Update(nil, decodeErr, nil)
		return []monitorEvent{{now, fmt.Sprintf("DECODE ERROR: %v", decodeErr), true}}
	}

	validationErrors := irbridge.ValidatePacket(packet)
	t.stats.Update(packet, nil, validationErrors)

	msgType := irbridge.FormatMessageType(packet.Type())
	if len(validationErrors) > 0 {
		out := make([]monitorEvent, 0, len(validationErrors))
		for _, err := range validationErrors {
			out = append(out, monitorEvent{now, fmt.Sprintf("%s: %s", msgType, err.Message), true})
		}
		return out
	}

	var out []monitorEvent
	switch packet.Type() {
	case irbridge.MsgIRReceived:
		pulses, _ := packet.Pulses()
		if ev, ok := t.capture(now, pulses); ok {
			out = append(out, ev)
		}
	case irbridge.MsgPowerChanged:
		pin, on, _ := packet.PowerLevel()
		t.detectedPower = &on
		out = append(out, monitorEvent{now, fmt.Sprintf("Power detector pin %d: %s", pin, onOff(on)), false})
	case irbridge.MsgErrorTransmit:
		code, _ := irbridge.GetMapUint(packet.PayloadMap(), 0)
		out = append(out, monitorEvent{now, fmt.Sprintf("Bridge failed transmitting (0x%02X)", code), true})
	case irbridge.MsgPingResponse:
		uptime, _ := irbridge.GetMapUint(packet.PayloadMap(), 0)
		out = append(out, monitorEvent{now, "Bridge uptime: " + formatUptime(uptime), false})
	default:
		if t.showAll {
			out = append(out, monitorEvent{now, msgType + " (valid)", false})
		}
	}
	return out
}

func (t *captureTracker) capture(now time.Time, pulses []manchester.Pulse) (monitorEvent, bool) {
	if len(pulses) < t.minPulses {
		t.stats.RecordCapture(true, false)
		if t.showAll {
			return monitorEvent{now, fmt.Sprintf("Short capture (%d pulses)", len(pulses)), false}, true
		}
		return monitorEvent{}, false
	}

	r, err := t.profile.Decode(pulses)
	t.stats.RecordCapture(false, err == nil)
	if err != nil {
		if t.showAll {
			return monitorEvent{now, fmt.Sprintf("Undecoded capture (%d pulses): %v", len(pulses), err), false}, true
		}
		return monitorEvent{}, false
	}

	t.lastReading = &r
	t.lastReadingAt = now
	return monitorEvent{now, describeReading(r), false}, true
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// readFrames decodes conn until it fails. Decode errors before the first
// valid frame are counted, not reported.
func readFrames(conn io.Reader, onSync func(invalidBytes int), onFrame func(*irbridge.Packet, error)) error {
	decoder := irbridge.NewDecoder()
	synchronized := false
	invalidBytesBeforeSync := 0
	buf := make([]byte, 256)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			packet, decodeErr := decoder.DecodeByte(buf[i])
			switch {
			case decodeErr != nil && synchronized:
				onFrame(nil, decodeErr)
			case decodeErr != nil:
				invalidBytesBeforeSync++
			case packet != nil:
				if !synchronized {
					synchronized = true
					onSync(invalidBytesBeforeSync)
				}
				onFrame(packet, nil)
			}
		}
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
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

	tracker := newCaptureTracker(profile, cfg.Bridge.MinPulses, showAll)
	if useTUI {
		return runMonitorTUI(conn, connInfo, tracker)
	}
	return runMonitorText(conn, connInfo, tracker)
}

func runMonitorTUI(conn io.Reader, connInfo string, tracker *captureTracker) error {
	p := tea.NewProgram(newMonitorModel(connInfo, tracker), tea.WithAltScreen())

	go func() {
		err := readFrames(conn,
			func(invalid int) { p.Send(syncMsg{invalidBytes: invalid}) },
			func(packet *irbridge.Packet, err error) { p.Send(frameMsg{packet: packet, decodeErr: err}) },
		)
		p.Send(connectionLostMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

type textFrame struct {
	packet *irbridge.Packet
	err    error
}

func runMonitorText(conn io.Reader, connInfo string, tracker *captureTracker) error {
	fmt.Printf("acmitm - Capture Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Profile: %s\n", tracker.profile.Name())
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	frames := make(chan textFrame, 16)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readFrames(conn,
			func(invalid int) {
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", invalid)
			},
			func(packet *irbridge.Packet, err error) { frames <- textFrame{packet, err} },
		)
	}()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case f := <-frames:
			for _, ev := range tracker.observe(f.packet, f.err) {
				marker := "INFO"
				if ev.isError {
					marker = "ERROR"
				}
				fmt.Printf("[%s] %s: %s\n", ev.at.Format("15:04:05.000"), marker, ev.message)
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(tracker.stats.String())
			fmt.Println()

		case err := <-readErr:
			fmt.Printf("Connection lost: %v\n", err)
			return nil
		}
	}
}
