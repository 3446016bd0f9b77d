package audit

import "strings"

// Device is the coarse client classification derived from a user-agent
// string.
type Device string

const (
	DeviceMobile  Device = "Mobile"
	DeviceTablet  Device = "Tablet"
	DeviceDesktop Device = "Desktop"
)

// ClassifyDevice maps a raw user-agent string to a Device by case-insensitive
// substring match, first match wins: "mobile" before "tablet", anything else
// is Desktop. A UA advertising both ("Mobile; Tablet") is therefore Mobile.
func ClassifyDevice(userAgent string) Device {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "mobile"):
		return DeviceMobile
	case strings.Contains(ua, "tablet"):
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}
