package cli

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/iudanet/keywitness/internal/client/keystore"
	"github.com/iudanet/keywitness/internal/crypto"
	"github.com/iudanet/keywitness/pkg/api"
)

// runLogin регистрирует это устройство в существующем аккаунте:
// скачивает backup, восстанавливает root-ключ passphrase'ом и
// подписывает сертификат для свежего ключа устройства
func (c *Cli) runLogin(ctx context.Context) error {
	c.io.Println("=== Login ===")
	c.io.Println("")

	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}

	deviceName, err := c.io.ReadInput("Device name: ")
	if err != nil {
		return fmt.Errorf("failed to read device name: %w", err)
	}

	passphrase, err := c.io.ReadPassword("Passphrase: ")
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}

	backup, err := c.apiClient.Backup(ctx, username)
	if err != nil {
		return err
	}
	envelope, err := base64.RawURLEncoding.DecodeString(backup.EncryptedBlob)
	if err != nil {
		return fmt.Errorf("server returned malformed backup: %w", err)
	}

	rootSeed, err := keystore.Unseal(envelope, []byte(passphrase))
	if err != nil {
		return err
	}
	if len(rootSeed) != ed25519.SeedSize {
		return fmt.Errorf("backup contains unexpected key material")
	}
	rootPriv := ed25519.NewKeyFromSeed(rootSeed)

	devicePub, devicePriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate device key: %w", err)
	}

	// Сертификат привязан к текущему времени и одноразов
	ts := time.Now().Unix()
	certificate := crypto.Sign(rootPriv, crypto.CertificateLoginMessage(devicePub, ts))

	resp, err := c.apiClient.Login(ctx, api.LoginRequest{
		Username:  username,
		Timestamp: ts,
		Device: api.DevicePayload{
			Pubkey:      base64.RawURLEncoding.EncodeToString(devicePub),
			Name:        deviceName,
			Certificate: base64.RawURLEncoding.EncodeToString(certificate),
		},
	})
	if err != nil {
		return err
	}

	identity := &keystore.Identity{
		Username:     username,
		AccountID:    resp.AccountID,
		DeviceKID:    resp.DeviceKID,
		ServerURL:    c.serverURL,
		SessionToken: resp.AccessToken,
	}
	if err := c.store.Save(identity, devicePriv, []byte(passphrase)); err != nil {
		return fmt.Errorf("failed to save device key: %w", err)
	}
	c.apiClient.SetDeviceKey(resp.DeviceKID, devicePriv)
	c.apiClient.SetSessionToken(resp.AccessToken)

	c.io.Println("")
	c.io.Println("Login successful!")
	c.io.Printf("Device KID: %s\n", resp.DeviceKID)

	return nil
}
