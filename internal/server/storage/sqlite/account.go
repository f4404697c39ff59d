package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/keywitness/internal/models"
	"github.com/iudanet/keywitness/internal/server/storage"
)

// CreateAccount atomically creates an account, its first device key, and its
// backup envelope in a single transaction
func (s *Storage) CreateAccount(ctx context.Context, account *models.Account, device *models.DeviceKey, backup *models.Backup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, username, root_kid, root_pubkey, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		account.ID,
		account.Username,
		account.RootKID,
		account.RootPubkey,
		account.CreatedAt,
	)
	if err != nil {
		// Дубликат username или root_kid
		if strings.Contains(err.Error(), "UNIQUE constraint failed: accounts.") {
			return storage.ErrAccountExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
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
		if strings.Contains(err.Error(), "UNIQUE constraint failed: device_keys.device_kid") {
			return storage.ErrDuplicateDevice
		}
		return fmt.Errorf("failed to insert first device: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backups (account_id, envelope, created_at)
		VALUES (?, ?, ?)
	`,
		backup.AccountID,
		backup.Envelope,
		backup.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backup: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit signup transaction: %w", err)
	}

	return nil
}

// GetAccountByID retrieves account by ID
func (s *Storage) GetAccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	return s.getAccount(ctx, "id", accountID)
}

// GetAccountByUsername retrieves account by username
func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.getAccount(ctx, "username", username)
}

func (s *Storage) getAccount(ctx context.Context, column, value string) (*models.Account, error) {
	query := fmt.Sprintf(`
		SELECT id, username, root_kid, root_pubkey, created_at
		FROM accounts
		WHERE %s = ?
	`, column)

	account := &models.Account{}

	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&account.ID,
		&account.Username,
		&account.RootKID,
		&account.RootPubkey,
		&account.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetBackupByUsername retrieves the backup envelope for an account
func (s *Storage) GetBackupByUsername(ctx context.Context, username string) (*models.Backup, error) {
	account, err := s.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	backup := &models.Backup{}

	err = s.db.QueryRowContext(ctx, `
		SELECT account_id, envelope, created_at
		FROM backups
		WHERE account_id = ?
	`, account.ID).Scan(
		&backup.AccountID,
		&backup.Envelope,
		&backup.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrBackupNotFound
		}
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}

	return backup, nil
}
