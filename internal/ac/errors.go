// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ac

import "errors"

var (
	// ErrUnsupportedDevice is returned by New for an unknown model name.
	ErrUnsupportedDevice = errors.New("unsupported AC model")

	// ErrDecode wraps any failure to turn a capture into a frame.
	ErrDecode = errors.New("decode failed")

	// ErrOutOfRange is returned for a temperature outside the model's bounds.
	ErrOutOfRange = errors.New("temperature out of range")

	// ErrUnsupportedValue is returned for a mode or fan the model lacks.
	ErrUnsupportedValue = errors.New("unsupported value")

	// ErrTransmit wraps transmitter failures. Transmits are not retried.
	ErrTransmit = errors.New("transmit failed")

	// ErrPersist wraps store failures. It is logged, never returned by Update.
	ErrPersist = errors.New("persist failed")
)
