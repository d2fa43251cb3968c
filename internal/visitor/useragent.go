// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package visitor

import "github.com/mileusna/useragent"

// Device types.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceBot     = "bot"
)

type parsedUA struct {
	Browser    string
	OS         string
	DeviceType string
	Bot        bool
}

func parseUserAgent(raw string) parsedUA {
	ua := useragent.Parse(raw)

	p := parsedUA{Browser: ua.Name, OS: ua.OS, Bot: ua.Bot}
	if p.Browser == "" {
		p.Browser = "Unknown"
	}
	if p.OS == "" {
		p.OS = "Unknown"
	}

	switch {
	case ua.Mobile:
		p.DeviceType = DeviceMobile
	case ua.Tablet:
		p.DeviceType = DeviceTablet
	case ua.Bot:
		p.DeviceType = DeviceBot
	default:
		p.DeviceType = DeviceDesktop
	}
	return p
}
