package storage

import (
	"context"

	"github.com/iudanet/keywitness/internal/models"
)

// MaxDevicesPerAccount is the cap on non-revoked devices per account
const MaxDevicesPerAccount = 10

// DeviceStorage defines interface for device key persistence
//
// Devices are never physically deleted: revocation sets revoked_at once,
// preserving audit history
type DeviceStorage interface {
	// RegisterDevice inserts a new device key for the account.
	// The active-device count check and the insert run inside a single
	// write transaction, so concurrent registrations cannot exceed the cap.
	// Returns ErrMaxDevicesReached at the cap and ErrDuplicateDevice if
	// the device KID is already registered (globally, across all accounts)
	RegisterDevice(ctx context.Context, device *models.DeviceKey) error

	// GetDeviceByKID retrieves a device by its KID (global lookup,
	// used by the request authenticator before the account is known)
	// Returns ErrDeviceNotFound if no such device exists
	GetDeviceByKID(ctx context.Context, deviceKID string) (*models.DeviceKey, error)

	// ListDevicesByAccount returns all devices for the account,
	// including revoked ones, ordered by creation time
	ListDevicesByAccount(ctx context.Context, accountID string) ([]*models.DeviceKey, error)

	// RevokeDevice sets revoked_at for a device owned by the account.
	// Returns ErrDeviceNotFound if the device doesn't exist OR belongs to
	// another account (cross-account revoke must look identical to missing),
	// ErrDeviceRevoked if revoked_at is already set
	RevokeDevice(ctx context.Context, accountID, deviceKID string) error

	// RenameDevice updates the device name with the same ownership scoping
	// as RevokeDevice. Returns ErrDeviceRevoked for revoked devices:
	// they are immutable except for the revocation fact itself
	RenameDevice(ctx context.Context, accountID, deviceKID, newName string) error

	// TouchLastUsed updates last_used_at after successful authentication.
	// Best-effort: callers must not fail the request on error
	TouchLastUsed(ctx context.Context, deviceKID string) error
}
