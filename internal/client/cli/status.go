package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
)

// runStatus печатает сохраненную identity и проверяет сессию
func (c *Cli) runStatus(ctx context.Context) error {
	identity, err := c.store.Identity()
	if err != nil {
		return err
	}

	c.io.Printf("Username:   %s\n", identity.Username)
	c.io.Printf("Account ID: %s\n", identity.AccountID)
	c.io.Printf("Device KID: %s\n", identity.DeviceKID)
	c.io.Printf("Server:     %s\n", identity.ServerURL)

	if identity.SessionToken == "" {
		c.io.Println("Session:    none")
		return nil
	}

	c.apiClient.SetSessionToken(identity.SessionToken)
	session, err := c.apiClient.Session(ctx)
	if err != nil {
		c.io.Println("Session:    expired or invalid")
		return nil
	}
	c.io.Printf("Session:    active (%s)\n", session.Username)

	return nil
}

// runBackup скачивает зашифрованный backup-конверт в файл
func (c *Cli) runBackup(ctx context.Context, args []string) error {
	identity, err := c.store.Identity()
	if err != nil {
		return err
	}

	path := identity.Username + "-backup.bin"
	if len(args) > 0 {
		path = args[0]
	}

	backup, err := c.apiClient.Backup(ctx, identity.Username)
	if err != nil {
		return err
	}
	envelope, err := base64.RawURLEncoding.DecodeString(backup.EncryptedBlob)
	if err != nil {
		return fmt.Errorf("server returned malformed backup: %w", err)
	}

	if err := os.WriteFile(path, envelope, 0o600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	c.io.Printf("Backup saved to %s (%d bytes)\n", path, len(envelope))
	return nil
}

// runLogout забывает сохраненное устройство
// Ключ устройства на сервере при этом не отзывается
func (c *Cli) runLogout() error {
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear keystore: %w", err)
	}
	c.io.Println("Logged out")
	return nil
}
