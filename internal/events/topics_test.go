// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Thermoquad/acmitm/internal/ota"
	"github.com/Thermoquad/acmitm/pkg/acproto"
)

func TestTopics(t *testing.T) {
	tp := Topics{Device: "AC-MITM-1A2B"}

	assert.Equal(t, "AC-MITM-1A2B/Status", tp.Status())
	assert.Equal(t, "AC-MITM-1A2B/Uptime", tp.Uptime())
	assert.Equal(t, "AC-MITM-1A2B/FreeMemory", tp.FreeMemory())
	assert.Equal(t, "AC-MITM-1A2B/Temperature/Set", tp.TemperatureSet())
	assert.Equal(t, "AC-MITM-1A2B/OTA/Firmware", tp.OTA(ota.Firmware))
	assert.Equal(t, "AC-MITM-1A2B/OTA/Config", tp.OTA(ota.Config))
	assert.Equal(t, "AC-MITM/OTA/Firmware", GlobalOTA(ota.Firmware))
	assert.Equal(t, "AC-MITM/OTA/Config", GlobalOTA(ota.Config))
}

func TestActionPayload(t *testing.T) {
	tests := []struct {
		mode acproto.Mode
		want string
	}{
		{acproto.ModeFan, "fan"},
		{acproto.ModeCool, "cooling"},
		{acproto.ModeHeat, "heating"},
		{acproto.ModeDry, "drying"},
		{acproto.ModeAuto, "cooling"},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, actionPayload(true, tt.mode))
			assert.Equal(t, "off", actionPayload(false, tt.mode))
			assert.Equal(t, "off", modePayload(false, tt.mode))
			assert.Equal(t, tt.mode.String(), modePayload(true, tt.mode))
		})
	}
}

func TestHeapFree(t *testing.T) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	assert.LessOrEqual(t, heapFree(), ms.HeapSys)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "IRReceived", KindIRReceived.String())
	assert.Equal(t, "Kind(200)", Kind(200).String())
}
