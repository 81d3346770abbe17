package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lifelink/internal/bloodtype"
	"lifelink/internal/geo"
	"lifelink/pkg/platform/sentinel"
	txcontext "lifelink/pkg/platform/tx"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists requests in the blood_requests table. The match
// list lives in a jsonb column so the conditional update on version covers
// the whole aggregate in one statement.
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

const requestColumns = `id, requester_id, patient_name, blood_type, units_required, urgency,
	hospital_name, hospital_city, hospital_state, hospital_lat, hospital_lng,
	contact_name, contact_phone, contact_relationship, description,
	status, matched_donors, fulfilled_units, expiry_date, is_active, version, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, req *BloodRequest) error {
	matches, err := json.Marshal(req.MatchedDonors)
	if err != nil {
		return fmt.Errorf("marshal matches: %w", err)
	}
	var lat, lng sql.NullFloat64
	if req.Hospital.Coordinates != nil {
		lat = sql.NullFloat64{Float64: req.Hospital.Coordinates.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: req.Hospital.Coordinates.Longitude, Valid: true}
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO blood_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		req.ID, req.RequesterID, req.PatientName, string(req.BloodType), req.UnitsRequired, string(req.Urgency),
		req.Hospital.Name, req.Hospital.City, req.Hospital.State, lat, lng,
		req.ContactPerson.Name, req.ContactPerson.Phone, req.ContactPerson.Relationship, req.Description,
		string(req.Status), matches, req.FulfilledUnits, req.ExpiryDate, req.IsActive, req.Version, req.CreatedAt, req.UpdatedAt,
	)
	return translateErr(err)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*BloodRequest, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+requestColumns+` FROM blood_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, translateErr(err)
	}
	return req, nil
}

// Update is the optimistic CAS. The WHERE clause on version means a writer
// reading version N writes only if nobody else has in the meantime; zero
// rows affected is a lost race unless the row is gone entirely.
func (s *PostgresStore) Update(ctx context.Context, req *BloodRequest) error {
	matches, err := json.Marshal(req.MatchedDonors)
	if err != nil {
		return fmt.Errorf("marshal matches: %w", err)
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE blood_requests
		SET patient_name = $3, units_required = $4, urgency = $5,
		    hospital_name = $6, hospital_city = $7, hospital_state = $8,
		    contact_name = $9, contact_phone = $10, contact_relationship = $11, description = $12,
		    status = $13, matched_donors = $14, fulfilled_units = $15,
		    expiry_date = $16, is_active = $17, version = version + 1, updated_at = $18
		WHERE id = $1 AND version = $2`,
		req.ID, req.Version,
		req.PatientName, req.UnitsRequired, string(req.Urgency),
		req.Hospital.Name, req.Hospital.City, req.Hospital.State,
		req.ContactPerson.Name, req.ContactPerson.Phone, req.ContactPerson.Relationship, req.Description,
		string(req.Status), matches, req.FulfilledUnits,
		req.ExpiryDate, req.IsActive, req.UpdatedAt,
	)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translateErr(err)
	}
	if n == 0 {
		var exists bool
		if err := s.q(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM blood_requests WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
			return translateErr(err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	req.Version++
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*BloodRequest, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM blood_requests
		WHERE ($1 = '' OR requester_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR blood_type = $3)
		  AND (NOT $4 OR is_active)
		ORDER BY CASE urgency
			WHEN 'critical' THEN 3 WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0
		END DESC, created_at ASC`,
		f.RequesterID, string(f.Status), f.BloodType, f.OnlyActive,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *PostgresStore) ListExpirable(ctx context.Context, cutoff time.Time) ([]*BloodRequest, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM blood_requests
		WHERE status IN ('pending', 'matched') AND expiry_date <= $1`,
		cutoff,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *PostgresStore) CountActiveByBloodType(ctx context.Context) (map[string]int, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT blood_type, COUNT(*) FROM blood_requests
		WHERE is_active AND status IN ('pending', 'matched')
		GROUP BY blood_type`,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var bt string
		var n int
		if err := rows.Scan(&bt, &n); err != nil {
			return nil, translateErr(err)
		}
		counts[bt] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*BloodRequest, error) {
	var (
		req      BloodRequest
		bt       string
		urgency  string
		status   string
		lat, lng sql.NullFloat64
		matches  []byte
	)
	err := row.Scan(
		&req.ID, &req.RequesterID, &req.PatientName, &bt, &req.UnitsRequired, &urgency,
		&req.Hospital.Name, &req.Hospital.City, &req.Hospital.State, &lat, &lng,
		&req.ContactPerson.Name, &req.ContactPerson.Phone, &req.ContactPerson.Relationship, &req.Description,
		&status, &matches, &req.FulfilledUnits, &req.ExpiryDate, &req.IsActive, &req.Version, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.BloodType = bloodtype.BloodType(bt)
	req.Urgency = Urgency(urgency)
	req.Status = Status(status)
	if lat.Valid && lng.Valid {
		req.Hospital.Coordinates = &geo.Point{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if len(matches) > 0 {
		if err := json.Unmarshal(matches, &req.MatchedDonors); err != nil {
			return nil, fmt.Errorf("unmarshal matches: %w", err)
		}
	}
	return &req, nil
}

func collectRequests(rows *sql.Rows) ([]*BloodRequest, error) {
	var out []*BloodRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, translateErr(err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return sentinel.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return sentinel.ErrUnavailable
	default:
		return err
	}
}
