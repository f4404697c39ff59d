package storage

import (
	"context"

	"github.com/iudanet/keywitness/internal/models"
)

// AccountStorage defines interface for account persistence
type AccountStorage interface {
	// CreateAccount atomically creates an account, its first device key,
	// and its backup envelope in a single transaction.
	// Returns ErrAccountExists if username or root KID is taken,
	// ErrDuplicateDevice if the device KID is already registered
	CreateAccount(ctx context.Context, account *models.Account, device *models.DeviceKey, backup *models.Backup) error

	// GetAccountByID retrieves account by ID
	// Returns ErrAccountNotFound if account doesn't exist
	GetAccountByID(ctx context.Context, accountID string) (*models.Account, error)

	// GetAccountByUsername retrieves account by username
	// Returns ErrAccountNotFound if account doesn't exist
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
}

// BackupStorage defines interface for encrypted backup envelope persistence
type BackupStorage interface {
	// GetBackupByUsername retrieves the backup envelope for an account
	// Returns ErrBackupNotFound if the account has no backup,
	// ErrAccountNotFound if the account doesn't exist
	GetBackupByUsername(ctx context.Context, username string) (*models.Backup, error)
}
