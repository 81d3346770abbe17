package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lifelink/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, title, message, data, is_read, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.RecipientID, string(n.Type), n.Title, n.Message, data, n.IsRead, n.CreatedAt, n.ExpiresAt,
	)
	return err
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, title, message, data, is_read, created_at, expires_at
		FROM notifications
		WHERE recipient_id = $1 AND expires_at > now() AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC`,
		recipientID, unreadOnly,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var (
			n    Notification
			typ  string
			data []byte
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &typ, &n.Title, &n.Message, &data, &n.IsRead, &n.CreatedAt, &n.ExpiresAt); err != nil {
			return nil, err
		}
		n.Type = Type(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("unmarshal data: %w", err)
			}
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, id, recipientID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
