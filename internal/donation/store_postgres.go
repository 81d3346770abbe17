package donation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lifelink/pkg/platform/sentinel"
	txcontext "lifelink/pkg/platform/tx"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore writes ledger rows. Save participates in the caller's
// transaction when one is on the context, so the ledger entry commits
// atomically with the request update that produced it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const donationColumns = `id, donor_id, request_id, blood_type, volume_ml, location, status, health_check, donated_at, created_at`

func (s *PostgresStore) Save(ctx context.Context, d *Donation) error {
	hc, err := json.Marshal(d.HealthCheck)
	if err != nil {
		return fmt.Errorf("marshal health check: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO donations (`+donationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.DonorID, d.RequestID, d.BloodType, d.VolumeML, d.Location, string(d.Status), hc, d.DonatedAt, d.CreatedAt,
	)
	return err
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Donation, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1`, id)
	d, err := scanDonation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return d, err
}

func (s *PostgresStore) ListByDonor(ctx context.Context, donorID string) ([]*Donation, error) {
	return s.query(ctx, `SELECT `+donationColumns+` FROM donations WHERE donor_id = $1 ORDER BY donated_at DESC`, donorID)
}

func (s *PostgresStore) ListByRequest(ctx context.Context, requestID string) ([]*Donation, error) {
	return s.query(ctx, `SELECT `+donationColumns+` FROM donations WHERE request_id = $1 ORDER BY donated_at DESC`, requestID)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Donation, error) {
	rows, err := s.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountCompletedByBloodType(ctx context.Context) (map[string]int, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT blood_type, COUNT(*) FROM donations WHERE status = 'completed' GROUP BY blood_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var bt string
		var n int
		if err := rows.Scan(&bt, &n); err != nil {
			return nil, err
		}
		counts[bt] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDonation(row rowScanner) (*Donation, error) {
	var (
		d      Donation
		status string
		hc     []byte
	)
	err := row.Scan(&d.ID, &d.DonorID, &d.RequestID, &d.BloodType, &d.VolumeML, &d.Location, &status, &hc, &d.DonatedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = Status(status)
	if len(hc) > 0 {
		if err := json.Unmarshal(hc, &d.HealthCheck); err != nil {
			return nil, fmt.Errorf("unmarshal health check: %w", err)
		}
	}
	return &d, nil
}
