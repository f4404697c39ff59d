package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/keywitness/internal/server/storage"
)

// CheckAndRecord atomically records a nonce hash
//
// INSERT OR IGNORE + проверка RowsAffected - единственная атомарная
// операция: два одинаковых конкурентных запроса получают ровно одно
// принятие, без отдельного шага "check"
func (s *Storage) CheckAndRecord(ctx context.Context, nonceHash []byte) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO request_nonces (nonce_hash, created_at)
		VALUES (?, ?)
	`, nonceHash, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record nonce: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrNonceReplayed
	}

	return nil
}

// DeleteExpired removes ledger entries older than maxAge
func (s *Storage) DeleteExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM request_nonces WHERE created_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired nonces: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
