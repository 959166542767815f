// Package authority implements the license state machine: issuance,
// activation, verification, renewal and revocation, plus the background
// expiry sweep. All time arithmetic goes through the injected clock and
// all transitions for one key are serialized by a keyed mutex.
package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"prudad/internal/clock"
	apperrors "prudad/internal/errors"
	"prudad/internal/events"
	"prudad/internal/hwid"
	"prudad/internal/keygen"
	"prudad/internal/model"
	"prudad/internal/store"
)

// Authority owns every license mutation. Handlers never touch the
// license store directly.
type Authority struct {
	licenses *store.LicenseStore
	settings *store.SettingsRegistry
	bus      *events.Bus
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	locks    *keyedMutex
}

// Option adjusts optional Authority collaborators.
type Option func(*Authority)

// WithClock replaces the system clock, used by expiry tests.
func WithClock(c clock.Clock) Option {
	return func(a *Authority) { a.clock = c }
}

// WithTracer attaches an OpenTelemetry tracer to the operations.
func WithTracer(t trace.Tracer) Option {
	return func(a *Authority) { a.tracer = t }
}

func New(licenses *store.LicenseStore, settings *store.SettingsRegistry, bus *events.Bus, logger *slog.Logger, opts ...Option) *Authority {
	a := &Authority{
		licenses: licenses,
		settings: settings,
		bus:      bus,
		clock:    clock.System{},
		logger:   logger.With(slog.String("component", "authority")),
		tracer:   noop.NewTracerProvider().Tracer("authority"),
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IssueRequest carries the inputs for minting a new license.
type IssueRequest struct {
	LicenseType     string
	Duration        int
	DurationType    string
	DiscordUsername string
	HwidPolicy      model.HwidPolicy
	Features        model.Features
	UserID          *int64
}

// Issue mints a new license. Key collisions trigger regeneration; after
// MaxGenerateRetries attempts the request fails with ErrKeyExhaustion.
// A license with hwidPolicy none needs no device binding and is born
// active; everything else starts pending.
func (a *Authority) Issue(ctx context.Context, req IssueRequest) (*model.License, error) {
	ctx, span := a.tracer.Start(ctx, "authority.Issue")
	defer span.End()

	policy := req.HwidPolicy
	if policy == "" {
		policy = model.HwidRequired
	}
	if !policy.Valid() {
		return nil, apperrors.Validationf("unknown hwid policy %q", policy)
	}

	defaultDays, err := a.settings.DefaultLicenseDuration(ctx)
	if err != nil {
		return nil, err
	}
	validity, err := resolveDuration(req.LicenseType, req.Duration, req.DurationType, defaultDays)
	if err != nil {
		return nil, err
	}

	codec, err := a.codec(ctx)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now().UTC()
	expires := now.Add(validity)

	lic := &model.License{
		Status:     model.StatusPending,
		Features:   req.Features,
		HwidPolicy: policy,
		UserID:     req.UserID,
		CreatedAt:  now,
		ExpiresAt:  &expires,
	}
	if req.DiscordUsername != "" {
		name := req.DiscordUsername
		lic.DiscordUsername = &name
	}
	if policy == model.HwidNone {
		// Nothing to bind, skip pending entirely.
		lic.Status = model.StatusActive
		at := now
		lic.ActivatedAt = &at
	}

	for attempt := 0; attempt < keygen.MaxGenerateRetries; attempt++ {
		key, err := codec.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		lic.Key = key

		err = a.licenses.Insert(ctx, lic)
		if err == nil {
			span.SetAttributes(attribute.Int("keygen.attempts", attempt+1))
			a.publish(events.KindIssued, lic, now)
			a.logger.InfoContext(ctx, "license issued",
				slog.Int64("license_id", lic.ID),
				slog.String("key", lic.Key),
				slog.String("status", string(lic.Status)))
			return lic, nil
		}
		if !errors.Is(err, apperrors.ErrDuplicateKey) {
			return nil, err
		}
		a.logger.WarnContext(ctx, "key collision, regenerating",
			slog.Int("attempt", attempt+1))
	}
	return nil, apperrors.ErrKeyExhaustion
}

// ActivateResult is the outcome of a successful activation.
type ActivateResult struct {
	License *model.License
	// AlreadyActive reports an idempotent re-activation.
	AlreadyActive bool
}

// Activate binds a key to a device. Repeating the call with the bound
// HWID is idempotent; a different HWID is rejected per the binding
// policy. Expired and revoked licenses are gone from the activation
// path and can only come back through renewal.
func (a *Authority) Activate(ctx context.Context, rawKey, rawHwid string) (*ActivateResult, error) {
	ctx, span := a.tracer.Start(ctx, "authority.Activate")
	defer span.End()

	codec, err := a.codec(ctx)
	if err != nil {
		return nil, err
	}
	key := codec.Canonicalize(rawKey)
	if !codec.Validate(key) {
		return nil, apperrors.Validationf("malformed license key")
	}
	presented, err := hwid.Normalize(rawHwid)
	if err != nil {
		return nil, apperrors.Validationf("hwid: %v", err)
	}

	unlock := a.locks.Lock(key)
	defer unlock()

	lic, err := a.licenses.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now().UTC()
	switch lic.EffectiveStatus(now) {
	case model.StatusExpired:
		a.persistExpiry(ctx, lic, now)
		return nil, fmt.Errorf("license expired: %w", apperrors.ErrGone)
	case model.StatusRevoked:
		return nil, fmt.Errorf("license revoked: %w", apperrors.ErrGone)
	case model.StatusActive:
		if lic.HwidPolicy == model.HwidNone {
			return &ActivateResult{License: lic, AlreadyActive: true}, nil
		}
		bound := ""
		if lic.Hwid != nil {
			bound = *lic.Hwid
		}
		binding, err := a.bindingPolicy(ctx)
		if err != nil {
			return nil, err
		}
		if err := binding.Match(bound, presented); err != nil {
			return nil, fmt.Errorf("activate %s: %w", key, apperrors.ErrHwidMismatch)
		}
		// Same device, or an extra device under allowMultipleDevices.
		// The stored binding never changes here.
		return &ActivateResult{License: lic, AlreadyActive: true}, nil
	}

	// Pending. An active license must end up with a binding, so the
	// HWID is mandatory here regardless of the optional policy.
	if presented == "" {
		return nil, apperrors.Validationf("hwid is required for activation")
	}

	active := model.StatusActive
	if err := a.licenses.Update(ctx, lic.ID, store.Patch{
		Status:      &active,
		Hwid:        &presented,
		ActivatedAt: &now,
	}); err != nil {
		return nil, err
	}
	lic.Status = active
	lic.Hwid = &presented
	lic.ActivatedAt = &now

	a.publish(events.KindActivated, lic, now)
	a.logger.InfoContext(ctx, "license activated",
		slog.Int64("license_id", lic.ID),
		slog.String("key", lic.Key))
	return &ActivateResult{License: lic}, nil
}

// VerifyResult is the status snapshot returned to clients. Unknown keys
// yield Valid=false rather than an error.
type VerifyResult struct {
	Valid     bool            `json:"valid"`
	Activated bool            `json:"activated"`
	Status    model.Status    `json:"status,omitempty"`
	Expires   *time.Time      `json:"expires,omitempty"`
	Features  *model.Features `json:"features,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Verify checks a key/HWID pair without mutating the license, except
// that an observed expiry is persisted opportunistically.
func (a *Authority) Verify(ctx context.Context, rawKey, rawHwid string) (*VerifyResult, error) {
	ctx, span := a.tracer.Start(ctx, "authority.Verify")
	defer span.End()

	codec, err := a.codec(ctx)
	if err != nil {
		return nil, err
	}
	key := codec.Canonicalize(rawKey)
	if !codec.Validate(key) {
		return nil, apperrors.Validationf("malformed license key")
	}
	presented, err := hwid.Normalize(rawHwid)
	if err != nil {
		return nil, apperrors.Validationf("hwid: %v", err)
	}

	lic, err := a.licenses.GetByKey(ctx, key)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &VerifyResult{Valid: false, Message: "unknown license key"}, nil
	}
	if err != nil {
		return nil, err
	}

	now := a.clock.Now().UTC()
	switch lic.EffectiveStatus(now) {
	case model.StatusExpired:
		a.persistExpiry(ctx, lic, now)
		return &VerifyResult{Valid: false, Status: model.StatusExpired, Message: "license expired"}, nil
	case model.StatusRevoked:
		return &VerifyResult{Valid: false, Status: model.StatusRevoked, Message: "license revoked"}, nil
	case model.StatusPending:
		return &VerifyResult{
			Valid:    true,
			Status:   model.StatusPending,
			Expires:  lic.ExpiresAt,
			Features: &lic.Features,
		}, nil
	}

	// Active.
	if lic.HwidPolicy != model.HwidNone {
		bound := ""
		if lic.Hwid != nil {
			bound = *lic.Hwid
		}
		binding, err := a.bindingPolicy(ctx)
		if err != nil {
			return nil, err
		}
		if err := binding.Match(bound, presented); err != nil {
			return &VerifyResult{Valid: false, Message: "HwidMismatch"}, nil
		}
	}
	return &VerifyResult{
		Valid:     true,
		Activated: true,
		Status:    model.StatusActive,
		Expires:   lic.ExpiresAt,
		Features:  &lic.Features,
	}, nil
}

// Renew extends a license and brings it back to active. Pending
// licenses cannot be renewed; revoked ones can, the dashboard treats
// renew as "reactivate with new term".
func (a *Authority) Renew(ctx context.Context, id int64, validity time.Duration) (*model.License, error) {
	ctx, span := a.tracer.Start(ctx, "authority.Renew")
	defer span.End()

	if validity < day {
		return nil, apperrors.Validationf("renewal must add at least one day")
	}

	lic, err := a.licenses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := a.locks.Lock(lic.Key)
	defer unlock()

	now := a.clock.Now().UTC()
	if lic.EffectiveStatus(now) == model.StatusPending {
		return nil, fmt.Errorf("cannot renew a pending license: %w", apperrors.ErrIllegalTransition)
	}

	// Unexpired remainder carries over; lapsed licenses start fresh.
	base := now
	if lic.ExpiresAt != nil && lic.ExpiresAt.After(now) {
		base = *lic.ExpiresAt
	}
	expires := base.Add(validity)

	return a.renewTo(ctx, lic, expires, now)
}

func (a *Authority) renewTo(ctx context.Context, lic *model.License, expires, now time.Time) (*model.License, error) {
	active := model.StatusActive
	if err := a.licenses.Update(ctx, lic.ID, store.Patch{
		Status:    &active,
		ExpiresAt: &expires,
	}); err != nil {
		return nil, err
	}
	lic.Status = active
	lic.ExpiresAt = &expires

	a.publish(events.KindRenewed, lic, now)
	a.logger.InfoContext(ctx, "license renewed",
		slog.Int64("license_id", lic.ID),
		slog.Time("expires_at", expires))
	return lic, nil
}

// Revoke turns off a license until it is renewed.
func (a *Authority) Revoke(ctx context.Context, id int64) (*model.License, error) {
	ctx, span := a.tracer.Start(ctx, "authority.Revoke")
	defer span.End()

	lic, err := a.licenses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := a.locks.Lock(lic.Key)
	defer unlock()

	now := a.clock.Now().UTC()
	return a.revokeLocked(ctx, lic, now)
}

func (a *Authority) revokeLocked(ctx context.Context, lic *model.License, now time.Time) (*model.License, error) {
	if lic.EffectiveStatus(now) == model.StatusRevoked {
		return nil, fmt.Errorf("already revoked: %w", apperrors.ErrIllegalTransition)
	}

	revoked := model.StatusRevoked
	if err := a.licenses.Update(ctx, lic.ID, store.Patch{Status: &revoked}); err != nil {
		return nil, err
	}
	lic.Status = revoked

	a.publish(events.KindRevoked, lic, now)
	a.logger.InfoContext(ctx, "license revoked",
		slog.Int64("license_id", lic.ID),
		slog.String("key", lic.Key))
	return lic, nil
}

// PatchRequest is the partial update accepted by PUT /licenses/{id}.
type PatchRequest struct {
	Status    *model.Status
	ExpiresAt *time.Time
}

// ApplyPatch validates a dashboard edit against the transition table.
// A patch to active with a new expiry is the renew path. Forcing a
// license back to pending is never legal.
func (a *Authority) ApplyPatch(ctx context.Context, id int64, patch PatchRequest) (*model.License, error) {
	ctx, span := a.tracer.Start(ctx, "authority.ApplyPatch")
	defer span.End()

	lic, err := a.licenses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := a.locks.Lock(lic.Key)
	defer unlock()

	now := a.clock.Now().UTC()
	current := lic.EffectiveStatus(now)

	if patch.Status == nil {
		if patch.ExpiresAt == nil {
			return lic, nil
		}
		// Expiry-only edit, no transition.
		if err := a.licenses.Update(ctx, lic.ID, store.Patch{ExpiresAt: patch.ExpiresAt}); err != nil {
			return nil, err
		}
		lic.ExpiresAt = patch.ExpiresAt
		return lic, nil
	}

	target := *patch.Status
	if !target.Valid() {
		return nil, apperrors.Validationf("unknown status %q", target)
	}

	switch target {
	case model.StatusActive:
		if current == model.StatusPending {
			return nil, fmt.Errorf("pending licenses activate through the activation endpoint: %w", apperrors.ErrIllegalTransition)
		}
		expires := now.Add(time.Duration(standardDays) * day)
		if patch.ExpiresAt != nil {
			if !patch.ExpiresAt.After(now) {
				return nil, apperrors.Validationf("expiresAt must be in the future")
			}
			expires = *patch.ExpiresAt
		}
		return a.renewTo(ctx, lic, expires, now)

	case model.StatusRevoked:
		return a.revokeLocked(ctx, lic, now)

	case model.StatusExpired:
		if current != model.StatusActive && current != model.StatusPending {
			return nil, fmt.Errorf("cannot expire a %s license: %w", current, apperrors.ErrIllegalTransition)
		}
		expired := model.StatusExpired
		st := store.Patch{Status: &expired}
		if patch.ExpiresAt != nil {
			st.ExpiresAt = patch.ExpiresAt
		}
		if err := a.licenses.Update(ctx, lic.ID, st); err != nil {
			return nil, err
		}
		lic.Status = expired
		if patch.ExpiresAt != nil {
			lic.ExpiresAt = patch.ExpiresAt
		}
		a.publish(events.KindExpired, lic, now)
		return lic, nil

	default: // pending
		return nil, fmt.Errorf("cannot move a license back to pending: %w", apperrors.ErrIllegalTransition)
	}
}

// Get returns one license with lazy expiry applied.
func (a *Authority) Get(ctx context.Context, id int64) (*model.License, error) {
	lic, err := a.licenses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.applyLazyExpiry(lic)
	return lic, nil
}

// List returns licenses with lazy expiry applied to each record.
func (a *Authority) List(ctx context.Context, f store.Filter) ([]model.License, error) {
	out, err := a.licenses.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range out {
		a.applyLazyExpiry(&out[i])
	}
	return out, nil
}

// Stats returns per-status counts with lazy expiry applied in the query.
func (a *Authority) Stats(ctx context.Context) (store.StatusCounts, error) {
	return a.licenses.CountByStatus(ctx, a.clock.Now().UTC())
}

// Delete hard-deletes a license. Admin-only, outside the state machine,
// and deliberately event-free.
func (a *Authority) Delete(ctx context.Context, id int64) error {
	return a.licenses.Delete(ctx, id)
}

func (a *Authority) applyLazyExpiry(lic *model.License) {
	lic.Status = lic.EffectiveStatus(a.clock.Now().UTC())
}

// persistExpiry writes back an expiry observed during a read. Best
// effort: the read result stands even if the write fails.
func (a *Authority) persistExpiry(ctx context.Context, lic *model.License, now time.Time) {
	if lic.Status == model.StatusExpired {
		return
	}
	expired := model.StatusExpired
	if err := a.licenses.Update(ctx, lic.ID, store.Patch{Status: &expired}); err != nil {
		a.logger.WarnContext(ctx, "persist observed expiry",
			slog.Int64("license_id", lic.ID),
			slog.String("error", err.Error()))
		return
	}
	lic.Status = expired
	a.publish(events.KindExpired, lic, now)
}

func (a *Authority) codec(ctx context.Context) (keygen.Codec, error) {
	prefix, err := a.settings.LicensePrefix(ctx)
	if err != nil {
		return keygen.Codec{}, err
	}
	length, err := a.settings.LicenseLength(ctx)
	if err != nil {
		return keygen.Codec{}, err
	}
	codec, err := keygen.New(prefix, length)
	if err != nil {
		return keygen.Codec{}, apperrors.Validationf("key policy: %v", err)
	}
	return codec, nil
}

func (a *Authority) bindingPolicy(ctx context.Context) (hwid.Policy, error) {
	strict, err := a.settings.StrictHwidCheck(ctx)
	if err != nil {
		return hwid.Policy{}, err
	}
	multi, err := a.settings.AllowMultipleDevices(ctx)
	if err != nil {
		return hwid.Policy{}, err
	}
	return hwid.Policy{Strict: strict, AllowMultiple: multi}, nil
}

func (a *Authority) publish(kind events.Kind, lic *model.License, at time.Time) {
	ev := events.Event{
		Kind:      kind,
		LicenseID: lic.ID,
		Key:       lic.Key,
		ExpiresAt: lic.ExpiresAt,
		At:        at,
	}
	if lic.DiscordUsername != nil {
		ev.DiscordUsername = *lic.DiscordUsername
	}
	a.bus.Publish(ev)
}
