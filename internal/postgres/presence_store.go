package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jovemegidio/concord-sync/pkg/errs"
)

// PresenceStore — разделяемая реализация presence.Store на Postgres.
// Запись «жива», пока expires_at в будущем; истечение заменяет
// явный offline для упавших процессов.
//
// Схема:
//
//	CREATE TABLE presence_entries (
//	    tenant_id  text        NOT NULL,
//	    user_id    text        NOT NULL,
//	    status     text        NOT NULL DEFAULT 'online',
//	    expires_at timestamptz NOT NULL,
//	    PRIMARY KEY (tenant_id, user_id)
//	);
type PresenceStore struct {
	db *pgxpool.Pool
}

func NewPresenceStore(db *pgxpool.Pool) *PresenceStore {
	return &PresenceStore{db: db}
}

func (s *PresenceStore) SetAdd(ctx context.Context, tenantID, userID string, ttl time.Duration) error {
	secs := int64(ttl / time.Second)
	_, err := s.db.Exec(ctx, `
		INSERT INTO presence_entries (tenant_id, user_id, status, expires_at)
		VALUES ($1, $2, 'online', NOW() + ($3::bigint * INTERVAL '1 second'))
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET expires_at = EXCLUDED.expires_at, status = 'online'
	`, tenantID, userID, secs)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrPresenceStore, err)
	}
	return nil
}

func (s *PresenceStore) SetRemove(ctx context.Context, tenantID, userID string) error {
	// RowsAffected не проверяем: удаление отсутствующей записи —
	// валидный исход (TTL мог сработать раньше нас).
	_, err := s.db.Exec(ctx,
		`DELETE FROM presence_entries WHERE tenant_id=$1 AND user_id=$2`,
		tenantID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrPresenceStore, err)
	}
	return nil
}

func (s *PresenceStore) SetMembers(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id FROM presence_entries
		WHERE tenant_id=$1 AND expires_at > NOW()
		ORDER BY user_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrPresenceStore, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrPresenceStore, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Sweep удаляет протухшие записи; периодическая фоновая уборка,
// чтобы таблица не росла от упавших процессов.
func (s *PresenceStore) Sweep(ctx context.Context) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM presence_entries WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrPresenceStore, err)
	}
	return cmd.RowsAffected(), nil
}
