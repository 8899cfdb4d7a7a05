// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/acmitm/internal/ac"
	"github.com/Thermoquad/acmitm/internal/store"
)

var stateStorePath string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the persisted AC state",
	Long: `Open the state store and print the persisted word and its fields.

The controller must not be running: the store is locked while in use.`,
	RunE: runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().StringVar(&stateStorePath, "store", "", "State store directory (default from --config)")
}

func runState(cmd *cobra.Command, args []string) error {
	path := stateStorePath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Store.Path
	}

	quiet := logrus.New()
	quiet.SetLevel(logrus.ErrorLevel)
	db, err := store.Open(store.Options{Path: path, Logger: logrus.NewEntry(quiet)})
	if err != nil {
		return err
	}
	defer db.Close()

	word, err := db.Load()
	if err != nil {
		return err
	}
	s := ac.Unpack(word)

	fmt.Printf("Store: %s\n", path)
	fmt.Printf("Word: 0x%016X\n", word)
	fmt.Printf("  Power:          %t\n", s.Power)
	fmt.Printf("  Detected power: %t\n", s.DetectedPower)
	fmt.Printf("  Temperature:    %d°C\n", s.Temperature)
	fmt.Printf("  Mode:           %s\n", s.Mode)
	fmt.Printf("  Fan:            %s\n", s.Fan)
	return nil
}
