package model

import (
	"encoding/json"
	"time"
)

// Status is the stored lifecycle state of a license.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// HwidPolicy is captured at issuance and never changes.
type HwidPolicy string

const (
	HwidRequired HwidPolicy = "required"
	HwidOptional HwidPolicy = "optional"
	HwidNone     HwidPolicy = "none"
)

func (p HwidPolicy) Valid() bool {
	switch p {
	case HwidRequired, HwidOptional, HwidNone:
		return true
	}
	return false
}

// Features holds the capability flags attached to a license. Unknown keys
// sent by older or newer clients are preserved verbatim but never
// interpreted.
type Features struct {
	ScriptAccess    bool
	PrioritySupport bool
	BetaFeatures    bool

	Extra map[string]json.RawMessage
}

// MarshalJSON renders the recognized flags plus any preserved extras.
func (f Features) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(f.Extra)+3)
	for k, v := range f.Extra {
		out[k] = v
	}
	var err error
	for k, v := range map[string]bool{
		"scriptAccess":    f.ScriptAccess,
		"prioritySupport": f.PrioritySupport,
		"betaFeatures":    f.BetaFeatures,
	} {
		if out[k], err = json.Marshal(v); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON pulls out the recognized booleans and keeps the rest in
// Extra.
func (f *Features) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Features{}
	for k, v := range raw {
		switch k {
		case "scriptAccess":
			if err := json.Unmarshal(v, &f.ScriptAccess); err != nil {
				return err
			}
		case "prioritySupport":
			if err := json.Unmarshal(v, &f.PrioritySupport); err != nil {
				return err
			}
		case "betaFeatures":
			if err := json.Unmarshal(v, &f.BetaFeatures); err != nil {
				return err
			}
		default:
			if f.Extra == nil {
				f.Extra = make(map[string]json.RawMessage)
			}
			f.Extra[k] = v
		}
	}
	return nil
}

// License is the primary entity. Timestamps are UTC.
type License struct {
	ID              int64      `json:"id"`
	Key             string     `json:"key"`
	Status          Status     `json:"status"`
	Hwid            *string    `json:"hwid"`
	UserID          *int64     `json:"userId"`
	DiscordUsername *string    `json:"discordUsername"`
	Features        Features   `json:"features"`
	HwidPolicy      HwidPolicy `json:"hwidPolicy"`
	CreatedAt       time.Time  `json:"createdAt"`
	ActivatedAt     *time.Time `json:"activatedAt"`
	ExpiresAt       *time.Time `json:"expiresAt"`
}

// EffectiveStatus applies lazy expiry: a pending or active license whose
// expiry has passed is observed as expired regardless of the stored value.
func (l *License) EffectiveStatus(now time.Time) Status {
	if l.Status == StatusPending || l.Status == StatusActive {
		if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
			return StatusExpired
		}
	}
	return l.Status
}
