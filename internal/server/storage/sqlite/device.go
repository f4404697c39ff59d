package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/keywitness/internal/models"
	"github.com/iudanet/keywitness/internal/server/storage"
)

// RegisterDevice inserts a new device key for an existing account
//
// Проверка лимита и вставка выполняются в одной write-транзакции:
// вместе с single-writer pool это закрывает гонку, где два конкурентных
// запроса оба видят 9 активных устройств и оба вставляют десятое
// (эквивалент row lock на аккаунт в postgres)
func (s *Storage) RegisterDevice(ctx context.Context, device *models.DeviceKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var activeCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM device_keys
		WHERE account_id = ? AND revoked_at IS NULL
	`, device.AccountID).Scan(&activeCount)
	if err != nil {
		return fmt.Errorf("failed to count active devices: %w", err)
	}

	if activeCount >= storage.MaxDevicesPerAccount {
		return storage.ErrMaxDevicesReached
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO device_keys (id, account_id, device_kid, device_pubkey, device_name, certificate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		device.ID,
		device.AccountID,
		device.DeviceKID,
		device.DevicePubkey,
		device.Name,
		device.Certificate,
		device.CreatedAt,
	)
	if err != nil {
		// KID уникален глобально, не per-account: один ключ нельзя
		// зарегистрировать на два аккаунта
		if strings.Contains(err.Error(), "UNIQUE constraint failed: device_keys.device_kid") {
			return storage.ErrDuplicateDevice
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit device registration: %w", err)
	}

	return nil
}

// GetDeviceByKID retrieves a device by its KID (global lookup)
func (s *Storage) GetDeviceByKID(ctx context.Context, deviceKID string) (*models.DeviceKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, device_kid, device_pubkey, device_name, certificate,
		       last_used_at, revoked_at, created_at
		FROM device_keys
		WHERE device_kid = ?
	`, deviceKID)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// ListDevicesByAccount returns all devices for the account, including revoked
func (s *Storage) ListDevicesByAccount(ctx context.Context, accountID string) ([]*models.DeviceKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, device_kid, device_pubkey, device_name, certificate,
		       last_used_at, revoked_at, created_at
		FROM device_keys
		WHERE account_id = ?
		ORDER BY created_at ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.DeviceKey
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

// RevokeDevice sets revoked_at for a device owned by the account
func (s *Storage) RevokeDevice(ctx context.Context, accountID, deviceKID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Scoping по account_id: чужое устройство выглядит как несуществующее
	var revokedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT revoked_at FROM device_keys
		WHERE device_kid = ? AND account_id = ?
	`, deviceKID, accountID).Scan(&revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrDeviceNotFound
		}
		return fmt.Errorf("failed to look up device: %w", err)
	}

	if revokedAt.Valid {
		return storage.ErrDeviceRevoked
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE device_keys SET revoked_at = ?
		WHERE device_kid = ? AND account_id = ? AND revoked_at IS NULL
	`, time.Now(), deviceKID, accountID)
	if err != nil {
		return fmt.Errorf("failed to revoke device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit revocation: %w", err)
	}

	return nil
}

// RenameDevice updates the device name, same ownership scoping as RevokeDevice
func (s *Storage) RenameDevice(ctx context.Context, accountID, deviceKID, newName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var revokedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT revoked_at FROM device_keys
		WHERE device_kid = ? AND account_id = ?
	`, deviceKID, accountID).Scan(&revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrDeviceNotFound
		}
		return fmt.Errorf("failed to look up device: %w", err)
	}

	// Отозванные устройства неизменяемы, кроме самого факта отзыва
	if revokedAt.Valid {
		return storage.ErrDeviceRevoked
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE device_keys SET device_name = ?
		WHERE device_kid = ? AND account_id = ? AND revoked_at IS NULL
	`, newName, deviceKID, accountID)
	if err != nil {
		return fmt.Errorf("failed to rename device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rename: %w", err)
	}

	return nil
}

// TouchLastUsed updates last_used_at after successful authentication
func (s *Storage) TouchLastUsed(ctx context.Context, deviceKID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE device_keys SET last_used_at = ?
		WHERE device_kid = ? AND revoked_at IS NULL
	`, time.Now(), deviceKID)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrDeviceNotFound
	}

	return nil
}

// scanner покрывает *sql.Row и *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*models.DeviceKey, error) {
	device := &models.DeviceKey{}
	var lastUsedAt, revokedAt sql.NullTime

	err := row.Scan(
		&device.ID,
		&device.AccountID,
		&device.DeviceKID,
		&device.DevicePubkey,
		&device.Name,
		&device.Certificate,
		&lastUsedAt,
		&revokedAt,
		&device.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastUsedAt.Valid {
		device.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		device.RevokedAt = &revokedAt.Time
	}

	return device, nil
}
