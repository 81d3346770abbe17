package donor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lifelink/internal/bloodtype"
	"lifelink/internal/geo"
	"lifelink/pkg/platform/sentinel"
	txcontext "lifelink/pkg/platform/tx"
)

// PostgresStore persists donors in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const donorColumns = `id, username, blood_type, is_available, is_active, last_donation_date, latitude, longitude, city, state, created_at`

func (s *PostgresStore) Save(ctx context.Context, d Donor) error {
	var lat, lon sql.NullFloat64
	if d.Coordinates != nil {
		lat = sql.NullFloat64{Float64: d.Coordinates.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: d.Coordinates.Longitude, Valid: true}
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO donors (`+donorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			blood_type = EXCLUDED.blood_type,
			is_available = EXCLUDED.is_available,
			is_active = EXCLUDED.is_active,
			last_donation_date = EXCLUDED.last_donation_date,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			city = EXCLUDED.city,
			state = EXCLUDED.state`,
		d.ID, d.Username, d.BloodType.String(), d.IsAvailable, d.IsActive,
		nullTime(d.LastDonationDate), lat, lon, d.City, d.State, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("save donor: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Donor, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+donorColumns+` FROM donors WHERE id = $1`, id)
	d, err := scanDonor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Donor{}, sentinel.ErrNotFound
		}
		return Donor{}, fmt.Errorf("find donor: %w", translateErr(err))
	}
	return d, nil
}

func (s *PostgresStore) ListCompatible(ctx context.Context, types []bloodtype.BloodType, excludeID string) ([]Donor, error) {
	typeStrings := make([]string, len(types))
	for i, t := range types {
		typeStrings[i] = t.String()
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+donorColumns+` FROM donors
		WHERE is_active AND is_available
		  AND blood_type = ANY($1)
		  AND id <> $2`,
		pq.Array(typeStrings), excludeID)
	if err != nil {
		return nil, fmt.Errorf("list compatible donors: %w", translateErr(err))
	}
	return collectDonors(rows)
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Donor, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+donorColumns+` FROM donors
		WHERE is_active AND is_available
		  AND ($1 = '' OR blood_type = $1)
		  AND ($2 = '' OR lower(city) = lower($2))
		  AND ($3 = '' OR lower(state) = lower($3))
		  AND (NOT $4 OR (latitude IS NOT NULL AND longitude IS NOT NULL))`,
		f.BloodType.String(), f.City, f.State, f.OnlyWithLocation)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", translateErr(err))
	}
	return collectDonors(rows)
}

func (s *PostgresStore) SetLastDonationDate(ctx context.Context, id string, donatedAt time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE donors SET last_donation_date = $2 WHERE id = $1`, id, donatedAt)
	if err != nil {
		return fmt.Errorf("set last donation date: %w", translateErr(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountByBloodType(ctx context.Context) (map[bloodtype.BloodType]int, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT blood_type, count(*) FROM donors
		WHERE is_active
		GROUP BY blood_type`)
	if err != nil {
		return nil, fmt.Errorf("count donors by blood type: %w", translateErr(err))
	}
	defer rows.Close()

	counts := make(map[bloodtype.BloodType]int)
	for rows.Next() {
		var bt string
		var n int
		if err := rows.Scan(&bt, &n); err != nil {
			return nil, err
		}
		counts[bloodtype.BloodType(bt)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDonor(row rowScanner) (Donor, error) {
	var d Donor
	var bt string
	var last sql.NullTime
	var lat, lon sql.NullFloat64
	if err := row.Scan(&d.ID, &d.Username, &bt, &d.IsAvailable, &d.IsActive,
		&last, &lat, &lon, &d.City, &d.State, &d.CreatedAt); err != nil {
		return Donor{}, err
	}
	d.BloodType = bloodtype.BloodType(bt)
	if last.Valid {
		t := last.Time
		d.LastDonationDate = &t
	}
	if lat.Valid && lon.Valid {
		d.Coordinates = &geo.Point{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	return d, nil
}

func collectDonors(rows *sql.Rows) ([]Donor, error) {
	defer rows.Close()
	var out []Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// translateErr maps driver-level timeouts onto the shared sentinel so
// services can surface them as retryable.
func translateErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	return err
}
