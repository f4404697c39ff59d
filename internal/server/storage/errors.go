package storage

import "errors"

// Common storage errors
var (
	// ErrAccountNotFound indicates that account was not found in storage
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists indicates that account with this username or root KID already exists
	ErrAccountExists = errors.New("account already exists")

	// ErrDeviceNotFound indicates that device key was not found
	// Also returned for devices owned by a different account (no information leakage)
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDuplicateDevice indicates that a device with this KID/pubkey is already
	// registered, possibly under a different account
	ErrDuplicateDevice = errors.New("device key already registered")

	// ErrDeviceRevoked indicates that the device has already been revoked
	ErrDeviceRevoked = errors.New("device already revoked")

	// ErrMaxDevicesReached indicates that the account is at the active-device cap
	ErrMaxDevicesReached = errors.New("maximum device limit reached")

	// ErrNonceReplayed indicates that this signature nonce was already recorded
	ErrNonceReplayed = errors.New("request replay detected")

	// ErrBackupNotFound indicates that no backup envelope is stored for the account
	ErrBackupNotFound = errors.New("backup not found")
)
