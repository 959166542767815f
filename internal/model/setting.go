package model

import "time"

// Setting is a policy knob persisted as a string pair.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Recognized setting keys. Unrecognized keys round-trip through the store
// untouched.
const (
	SettingLicensePrefix          = "licensePrefix"
	SettingLicenseLength          = "licenseLength"
	SettingDefaultLicenseDuration = "defaultLicenseDuration"
	SettingStrictHwidCheck        = "strictHwidCheck"
	SettingAllowMultipleDevices   = "allowMultipleDevices"
)
