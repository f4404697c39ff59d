package sqlite

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/keywitness/internal/crypto"
	"github.com/iudanet/keywitness/internal/models"
)

// setupTestStorage создает in-memory хранилище для тестов
func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		require.NoError(t, s.Close())
	}

	return s, cleanup
}

// testPubkey возвращает детерминированный 32-байтный "ключ" для тестов хранилища
// (криптографическая валидность здесь не нужна, только уникальность KID)
func testPubkey(seed byte) []byte {
	return bytes.Repeat([]byte{seed}, 32)
}

// createTestAccount создает аккаунт с первым устройством и backup
func createTestAccount(t *testing.T, s *Storage, username string, seed byte) (*models.Account, *models.DeviceKey) {
	t.Helper()
	ctx := context.Background()

	rootPubkey := testPubkey(seed)
	devicePubkey := testPubkey(seed + 1)

	account := &models.Account{
		ID:         uuid.New().String(),
		Username:   username,
		RootKID:    crypto.DeriveKID(rootPubkey),
		RootPubkey: rootPubkey,
		CreatedAt:  time.Now(),
	}
	device := &models.DeviceKey{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		DeviceKID:    crypto.DeriveKID(devicePubkey),
		DevicePubkey: devicePubkey,
		Name:         "first device",
		Certificate:  bytes.Repeat([]byte{0xEE}, 64),
		CreatedAt:    time.Now(),
	}
	backup := &models.Backup{
		AccountID: account.ID,
		Envelope:  testEnvelope(t),
		CreatedAt: time.Now(),
	}

	require.NoError(t, s.CreateAccount(ctx, account, device, backup))

	return account, device
}

func testEnvelope(t *testing.T) []byte {
	t.Helper()
	raw, err := crypto.BuildEnvelope(65536, 3, 1,
		[16]byte{0x01}, [12]byte{0x02}, bytes.Repeat([]byte{0xCC}, 48))
	require.NoError(t, err)
	return raw
}
