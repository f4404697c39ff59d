package cli

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/iudanet/keywitness/internal/client/keystore"
	"github.com/iudanet/keywitness/internal/crypto"
	"github.com/iudanet/keywitness/pkg/api"
)

// runRegister создает аккаунт: root-ключ, первое устройство и backup
// Root-ключ живет только внутри этой функции; после signup остаются
// его backup на сервере и запечатанный ключ устройства в keystore
func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Registration ===")
	c.io.Println("")

	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}

	deviceName, err := c.io.ReadInput("Device name: ")
	if err != nil {
		return fmt.Errorf("failed to read device name: %w", err)
	}

	passphrase, err := c.readNewPassphrase()
	if err != nil {
		return err
	}

	rootPub, rootPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate root key: %w", err)
	}
	devicePub, devicePriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate device key: %w", err)
	}

	// Backup root-ключа уходит на сервер только в запечатанном виде
	envelope, err := keystore.Seal(rootPriv.Seed(), []byte(passphrase))
	if err != nil {
		return fmt.Errorf("failed to seal root key backup: %w", err)
	}

	c.io.Println("")
	c.io.Println("Registering account...")

	resp, err := c.apiClient.Signup(ctx, api.SignupRequest{
		Username:   username,
		RootPubkey: base64.RawURLEncoding.EncodeToString(rootPub),
		Backup:     api.BackupPayload{EncryptedBlob: base64.RawURLEncoding.EncodeToString(envelope)},
		Device: api.DevicePayload{
			Pubkey:      base64.RawURLEncoding.EncodeToString(devicePub),
			Name:        deviceName,
			Certificate: base64.RawURLEncoding.EncodeToString(crypto.Sign(rootPriv, devicePub)),
		},
	})
	if err != nil {
		return err
	}

	identity := &keystore.Identity{
		Username:  username,
		AccountID: resp.AccountID,
		DeviceKID: resp.DeviceKID,
		ServerURL: c.serverURL,
	}
	if err := c.store.Save(identity, devicePriv, []byte(passphrase)); err != nil {
		return fmt.Errorf("failed to save device key: %w", err)
	}
	c.apiClient.SetDeviceKey(resp.DeviceKID, devicePriv)

	c.io.Println("")
	c.io.Println("Registration successful!")
	c.io.Printf("Account ID: %s\n", resp.AccountID)
	c.io.Printf("Device KID: %s\n", resp.DeviceKID)
	c.io.Println("")
	c.io.Println("IMPORTANT: your passphrase is the only way to recover the account.")
	c.io.Println("If you lose it, the encrypted key backup on the server is useless.")

	return nil
}
