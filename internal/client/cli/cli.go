package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/keywitness/internal/client/api"
	"github.com/iudanet/keywitness/internal/client/iocli"
	"github.com/iudanet/keywitness/internal/client/keystore"
)

// Cli связывает команды клиента: терминал, API клиент и keystore
type Cli struct {
	io        iocli.IO
	apiClient *api.Client
	store     *keystore.Keystore
	serverURL string
}

func New(io iocli.IO, apiClient *api.Client, store *keystore.Keystore, serverURL string) *Cli {
	return &Cli{
		io:        io,
		apiClient: apiClient,
		store:     store,
		serverURL: serverURL,
	}
}

// Run выполняет команду
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "login":
		return c.runLogin(ctx)
	case "devices":
		return c.runDevices(ctx)
	case "add-device":
		return c.runAddDevice(ctx)
	case "revoke":
		return c.runRevoke(ctx, args)
	case "rename":
		return c.runRename(ctx, args)
	case "status":
		return c.runStatus(ctx)
	case "backup":
		return c.runBackup(ctx, args)
	case "logout":
		return c.runLogout()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// unlock загружает сохраненное устройство и готовит клиента
// к подписанным запросам
func (c *Cli) unlock() (*keystore.Identity, error) {
	identity, err := c.store.Identity()
	if err != nil {
		return nil, err
	}

	passphrase, err := c.io.ReadPassword("Passphrase: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}

	privkey, err := c.store.DeviceKey([]byte(passphrase))
	if err != nil {
		return nil, err
	}

	c.apiClient.SetDeviceKey(identity.DeviceKID, privkey)
	if identity.SessionToken != "" {
		c.apiClient.SetSessionToken(identity.SessionToken)
	}
	return identity, nil
}

// readNewPassphrase запрашивает passphrase с подтверждением
func (c *Cli) readNewPassphrase() (string, error) {
	passphrase, err := c.io.ReadPassword("Passphrase (protects your keys): ")
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if passphrase == "" {
		return "", fmt.Errorf("passphrase cannot be empty")
	}

	confirm, err := c.io.ReadPassword("Confirm passphrase: ")
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	if passphrase != confirm {
		return "", fmt.Errorf("passphrases do not match")
	}
	return passphrase, nil
}

// PrintUsage печатает справку по командам
func PrintUsage(io iocli.IO) {
	io.Println("Keywitness Client")
	io.Println("")
	io.Println("Usage:")
	io.Println("  keywitness [OPTIONS] COMMAND")
	io.Println("")
	io.Println("Commands:")
	io.Println("  register              Create an account with this device")
	io.Println("  login                 Enroll this device using the key backup")
	io.Println("  devices               List devices of the account")
	io.Println("  add-device            Generate and enroll a key for another device")
	io.Println("  revoke KID            Revoke a device")
	io.Println("  rename KID NAME       Rename a device")
	io.Println("  status                Show stored identity and session")
	io.Println("  backup [FILE]         Download the encrypted key backup")
	io.Println("  logout                Forget the stored device")
	io.Println("")
	io.Println("Options:")
	io.Println("  --server URL          Server URL (default: http://localhost:8080)")
	io.Println("  --db PATH             Path to local keystore (default: keywitness-client.db)")
	io.Println("  --version             Show version information")
}
