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

// runDevices печатает список устройств аккаунта
func (c *Cli) runDevices(ctx context.Context) error {
	if _, err := c.unlock(); err != nil {
		return err
	}

	list, err := c.apiClient.ListDevices(ctx)
	if err != nil {
		return err
	}

	c.io.Printf("%-24s %-20s %-10s %s\n", "KID", "NAME", "STATE", "LAST USED")
	for _, d := range list.Devices {
		state := "active"
		if d.Revoked {
			state = "revoked"
		}
		lastUsed := "never"
		if d.LastUsedAt != nil {
			lastUsed = d.LastUsedAt.Format("2006-01-02 15:04:05")
		}
		c.io.Printf("%-24s %-20s %-10s %s\n", d.DeviceKID, d.Name, state, lastUsed)
	}

	return nil
}

// runAddDevice генерирует ключ для другого устройства и регистрирует его
// Root-ключ восстанавливается из backup: только он может подписать сертификат
func (c *Cli) runAddDevice(ctx context.Context) error {
	identity, err := c.unlock()
	if err != nil {
		return err
	}

	deviceName, err := c.io.ReadInput("New device name: ")
	if err != nil {
		return fmt.Errorf("failed to read device name: %w", err)
	}

	passphrase, err := c.io.ReadPassword("Passphrase (to unlock root key backup): ")
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}

	backup, err := c.apiClient.Backup(ctx, identity.Username)
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

	resp, err := c.apiClient.AddDevice(ctx, api.AddDeviceRequest{Device: api.DevicePayload{
		Pubkey:      base64.RawURLEncoding.EncodeToString(devicePub),
		Name:        deviceName,
		Certificate: base64.RawURLEncoding.EncodeToString(crypto.Sign(rootPriv, devicePub)),
	}})
	if err != nil {
		return err
	}

	c.io.Println("")
	c.io.Println("Device enrolled!")
	c.io.Printf("Device KID: %s\n", resp.DeviceKID)
	c.io.Println("")
	c.io.Println("Transfer this seed to the new device over a secure channel:")
	c.io.Printf("  %s\n", base64.RawURLEncoding.EncodeToString(devicePriv.Seed()))

	return nil
}

// runRevoke отзывает устройство по KID
func (c *Cli) runRevoke(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: revoke KID")
	}

	if _, err := c.unlock(); err != nil {
		return err
	}

	if err := c.apiClient.RevokeDevice(ctx, args[0]); err != nil {
		return err
	}

	c.io.Printf("Device %s revoked\n", args[0])
	return nil
}

// runRename переименовывает устройство
func (c *Cli) runRename(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: rename KID NAME")
	}

	if _, err := c.unlock(); err != nil {
		return err
	}

	if err := c.apiClient.RenameDevice(ctx, args[0], args[1]); err != nil {
		return err
	}

	c.io.Printf("Device %s renamed to %q\n", args[0], args[1])
	return nil
}
