package authority

import (
	"time"

	apperrors "prudad/internal/errors"
)

// License type presets and their validity in days.
const (
	TypeStandard = "standard"
	TypePremium  = "premium"
	TypeAnnual   = "annual"
	TypeCustom   = "custom"

	standardDays = 30
	premiumDays  = 90
	annualDays   = 365
)

const day = 24 * time.Hour

// resolveDuration maps a license type (plus custom duration fields) to a
// validity period. Months and years are calendar approximations of 30
// and 365 days.
func resolveDuration(licenseType string, duration int, durationType string, defaultDays int) (time.Duration, error) {
	switch licenseType {
	case TypeStandard:
		return standardDays * day, nil
	case TypePremium:
		return premiumDays * day, nil
	case TypeAnnual:
		return annualDays * day, nil
	case TypeCustom:
		if duration < 1 {
			return 0, apperrors.Validationf("duration must be at least 1, got %d", duration)
		}
		switch durationType {
		case "days", "":
			return time.Duration(duration) * day, nil
		case "months":
			return time.Duration(duration) * 30 * day, nil
		case "years":
			return time.Duration(duration) * 365 * day, nil
		default:
			return 0, apperrors.Validationf("unknown duration type %q", durationType)
		}
	case "":
		return time.Duration(defaultDays) * day, nil
	default:
		return 0, apperrors.Validationf("unknown license type %q", licenseType)
	}
}
