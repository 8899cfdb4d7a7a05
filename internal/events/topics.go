// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"github.com/Thermoquad/acmitm/internal/ota"
	"github.com/Thermoquad/acmitm/pkg/acproto"
)

// Topics shared by every device.
const (
	GlobalFirmwareTopic = "AC-MITM/OTA/Firmware"
	GlobalConfigTopic   = "AC-MITM/OTA/Config"
)

// Topics builds the per-device MQTT topic names.
type Topics struct {
	Device string
}

func (t Topics) topic(name string) string {
	return t.Device + "/" + name
}

func (t Topics) Status() string { return t.topic("Status") }
func (t Topics) Version() string { return t.topic("Version") }
func (t Topics) ConfigVersion() string { return t.topic("ConfigVersion") }
func (t Topics) Uptime() string { return t.topic("Uptime") }
func (t Topics) FreeMemory() string { return t.topic("FreeMemory") }
func (t Topics) Power() string { return t.topic("Power") }
func (t Topics) Temperature() string { return t.topic("Temperature") }
func (t Topics) Mode() string { return t.topic("Mode") }
func (t Topics) Fan() string { return t.topic("Fan") }
func (t Topics) Action() string { return t.topic("Action") }

func (t Topics) PowerSet() string { return t.topic("Power/Set") }
func (t Topics) TemperatureSet() string { return t.topic("Temperature/Set") }
func (t Topics) ModeSet() string { return t.topic("Mode/Set") }
func (t Topics) FanSet() string { return t.topic("Fan/Set") }

// OTA returns the device topic for an update kind.
func (t Topics) OTA(kind ota.Kind) string {
	if kind == ota.Firmware {
		return t.topic("OTA/Firmware")
	}
	return t.topic("OTA/Config")
}

// GlobalOTA returns the fleet-wide topic for an update kind.
func GlobalOTA(kind ota.Kind) string {
	if kind == ota.Firmware {
		return GlobalFirmwareTopic
	}
	return GlobalConfigTopic
}

var actionNames = map[acproto.Mode]string{
	acproto.ModeFan:  "fan",
	acproto.ModeCool: "cooling",
	acproto.ModeHeat: "heating",
	acproto.ModeDry:  "drying",
	acproto.ModeAuto: "cooling",
}

// actionPayload reports what the unit is doing, "off" when powered down.
func actionPayload(power bool, mode acproto.Mode) string {
	if !power {
		return "off"
	}
	return actionNames[mode]
}

// modePayload reports the mode, "off" when powered down.
func modePayload(power bool, mode acproto.Mode) string {
	if !power {
		return "off"
	}
	return mode.String()
}

func powerPayload(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
