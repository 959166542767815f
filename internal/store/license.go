// Package store persists licenses, settings, users and the chat
// integration config over sqlite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "prudad/internal/errors"
	"prudad/internal/model"
)

// LicenseStore is the persistent license table.
type LicenseStore struct {
	db *sql.DB
}

func NewLicenseStore(db *sql.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

const licenseCols = `id, key, status, hwid, user_id, discord_username, features, hwid_policy, created_at, activated_at, expires_at`

func scanLicense(scanner interface{ Scan(...any) error }) (*model.License, error) {
	var (
		lic         model.License
		hwid        sql.NullString
		userID      sql.NullInt64
		discord     sql.NullString
		features    string
		activatedAt sql.NullTime
		expiresAt   sql.NullTime
	)
	err := scanner.Scan(
		&lic.ID, &lic.Key, &lic.Status, &hwid, &userID, &discord,
		&features, &lic.HwidPolicy, &lic.CreatedAt, &activatedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}
	if hwid.Valid {
		lic.Hwid = &hwid.String
	}
	if userID.Valid {
		lic.UserID = &userID.Int64
	}
	if discord.Valid {
		lic.DiscordUsername = &discord.String
	}
	if activatedAt.Valid {
		t := activatedAt.Time.UTC()
		lic.ActivatedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		lic.ExpiresAt = &t
	}
	lic.CreatedAt = lic.CreatedAt.UTC()
	if err := json.Unmarshal([]byte(features), &lic.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	return &lic, nil
}

// Insert stores a new license and fills in its ID. A key collision is
// reported as ErrDuplicateKey.
func (s *LicenseStore) Insert(ctx context.Context, lic *model.License) error {
	features, err := json.Marshal(lic.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO licenses (key, status, hwid, user_id, discord_username, features, hwid_policy, created_at, activated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lic.Key, lic.Status, lic.Hwid, lic.UserID, lic.DiscordUsername,
		string(features), lic.HwidPolicy, lic.CreatedAt, lic.ActivatedAt, lic.ExpiresAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("insert license %s: %w", lic.Key, apperrors.ErrDuplicateKey)
		}
		return fmt.Errorf("insert license: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	lic.ID = id
	return nil
}

// GetByID fetches a license or ErrNotFound.
func (s *LicenseStore) GetByID(ctx context.Context, id int64) (*model.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseCols+` FROM licenses WHERE id = ?`, id)
	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("license id %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return lic, nil
}

// GetByKey fetches a license by its canonical key or ErrNotFound.
func (s *LicenseStore) GetByKey(ctx context.Context, key string) (*model.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseCols+` FROM licenses WHERE key = ?`, key)
	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("license key: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get license by key: %w", err)
	}
	return lic, nil
}

// Filter narrows List results.
type Filter struct {
	// Status matches the stored status when set.
	Status model.Status
	// KeySubstring matches keys containing the fragment.
	KeySubstring string
}

// List returns licenses newest first, optionally filtered.
func (s *LicenseStore) List(ctx context.Context, f Filter) ([]model.License, error) {
	query := `SELECT ` + licenseCols + ` FROM licenses`
	var (
		clauses []string
		args    []any
	)
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.KeySubstring != "" {
		clauses = append(clauses, "key LIKE ?")
		args = append(args, "%"+f.KeySubstring+"%")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var out []model.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		out = append(out, *lic)
	}
	return out, rows.Err()
}

// Patch carries the mutable license fields; nil means leave unchanged.
type Patch struct {
	Status      *model.Status
	Hwid        *string
	ActivatedAt *time.Time
	ExpiresAt   *time.Time
}

// Update applies a partial patch to one license.
func (s *LicenseStore) Update(ctx context.Context, id int64, p Patch) error {
	var (
		sets []string
		args []any
	)
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *p.Status)
	}
	if p.Hwid != nil {
		sets = append(sets, "hwid = ?")
		args = append(args, *p.Hwid)
	}
	if p.ActivatedAt != nil {
		sets = append(sets, "activated_at = ?")
		args = append(args, *p.ActivatedAt)
	}
	if p.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, *p.ExpiresAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("license id %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// Delete hard-deletes a license. This is an admin operation outside the
// state machine.
func (s *LicenseStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM licenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("license id %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// StatusCounts are aggregate license counts with lazy expiry applied at
// the moment of the query.
type StatusCounts struct {
	Total   int `json:"totalCount"`
	Active  int `json:"activeCount"`
	Pending int `json:"pendingCount"`
	Expired int `json:"expiredCount"`
	Revoked int `json:"revokedCount"`
}

// CountByStatus aggregates by observable status: a pending or active row
// whose expiry has passed counts as expired.
func (s *LicenseStore) CountByStatus(ctx context.Context, now time.Time) (StatusCounts, error) {
	var c StatusCounts
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active'  AND (expires_at IS NULL OR expires_at > ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'pending' AND (expires_at IS NULL OR expires_at > ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'expired' OR (status IN ('pending', 'active') AND expires_at IS NOT NULL AND expires_at <= ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'revoked' THEN 1 ELSE 0 END), 0)
		FROM licenses`, now, now, now)
	if err := row.Scan(&c.Total, &c.Active, &c.Pending, &c.Expired, &c.Revoked); err != nil {
		return StatusCounts{}, fmt.Errorf("count licenses: %w", err)
	}
	return c, nil
}

// ExpireDue persists expired status for pending or active licenses whose
// expiry has passed and returns the affected records. Each record flips
// at most once, so the caller can emit one event per returned license.
func (s *LicenseStore) ExpireDue(ctx context.Context, now time.Time) ([]model.License, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin expire tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+licenseCols+` FROM licenses
		 WHERE status IN ('pending', 'active') AND expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("select due licenses: %w", err)
	}
	var due []model.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due license: %w", err)
		}
		due = append(due, *lic)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(due) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE licenses SET status = 'expired'
		 WHERE status IN ('pending', 'active') AND expires_at IS NOT NULL AND expires_at <= ?`, now); err != nil {
		return nil, fmt.Errorf("persist expiry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit expiry: %w", err)
	}

	for i := range due {
		due[i].Status = model.StatusExpired
	}
	return due, nil
}

// ListExpiringSoon returns active licenses with expires_at in
// (now, now+window], used by the sweep's expiringSoon notifications.
func (s *LicenseStore) ListExpiringSoon(ctx context.Context, now time.Time, window time.Duration) ([]model.License, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+licenseCols+` FROM licenses
		 WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?
		 ORDER BY expires_at ASC`, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("list expiring licenses: %w", err)
	}
	defer rows.Close()

	var out []model.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expiring license: %w", err)
		}
		out = append(out, *lic)
	}
	return out, rows.Err()
}
