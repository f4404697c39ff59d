package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iudanet/keywitness/internal/crypto"
	"github.com/iudanet/keywitness/pkg/api"
)

// Client представляет HTTP клиент для взаимодействия с сервером
// Защищенные endpoint'ы подписываются ключом устройства (SetDeviceKey),
// session endpoint использует JWT (SetSessionToken)
type Client struct {
	httpClient   *http.Client
	baseURL      string
	deviceKID    string
	privkey      ed25519.PrivateKey
	sessionToken string
	now          func() time.Time
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		now:     time.Now,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Подписанные запросы не переживают редирект: подпись
				// привязана к path
				if len(via) >= 1 {
					return fmt.Errorf("redirects are not supported")
				}
				return nil
			},
		},
	}
}

// SetDeviceKey задает ключ устройства для подписи запросов
func (c *Client) SetDeviceKey(kid string, privkey ed25519.PrivateKey) {
	c.deviceKID = kid
	c.privkey = privkey
}

// SetSessionToken задает JWT для session endpoint'а
func (c *Client) SetSessionToken(token string) {
	c.sessionToken = token
}

// Signup регистрирует новый аккаунт с первым устройством
func (c *Client) Signup(ctx context.Context, req api.SignupRequest) (*api.SignupResponse, error) {
	var resp api.SignupResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/signup", req, &resp, false); err != nil {
		return nil, fmt.Errorf("signup request failed: %w", err)
	}
	return &resp, nil
}

// Login регистрирует устройство по сертификату root-ключа
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp, false); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Backup скачивает зашифрованный backup-конверт аккаунта
func (c *Client) Backup(ctx context.Context, username string) (*api.BackupResponse, error) {
	var resp api.BackupResponse
	path := "/api/v1/auth/backup/" + url.PathEscape(username)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp, false); err != nil {
		return nil, fmt.Errorf("backup request failed: %w", err)
	}
	return &resp, nil
}

// Session запрашивает whoami по сессионному токену
func (c *Client) Session(ctx context.Context) (*api.SessionResponse, error) {
	var resp api.SessionResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/auth/session", nil, &resp, false); err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	return &resp, nil
}

// ListDevices возвращает устройства аккаунта (подписанный запрос)
func (c *Client) ListDevices(ctx context.Context) (*api.DeviceListResponse, error) {
	var resp api.DeviceListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/auth/devices", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("list devices request failed: %w", err)
	}
	return &resp, nil
}

// AddDevice регистрирует дополнительное устройство (подписанный запрос)
func (c *Client) AddDevice(ctx context.Context, req api.AddDeviceRequest) (*api.AddDeviceResponse, error) {
	var resp api.AddDeviceResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/devices", req, &resp, true); err != nil {
		return nil, fmt.Errorf("add device request failed: %w", err)
	}
	return &resp, nil
}

// RevokeDevice отзывает устройство по KID (подписанный запрос)
func (c *Client) RevokeDevice(ctx context.Context, kid string) error {
	path := "/api/v1/auth/devices/" + url.PathEscape(kid)
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, nil, true); err != nil {
		return fmt.Errorf("revoke device request failed: %w", err)
	}
	return nil
}

// RenameDevice переименовывает устройство (подписанный запрос)
func (c *Client) RenameDevice(ctx context.Context, kid, name string) error {
	path := "/api/v1/auth/devices/" + url.PathEscape(kid)
	req := api.RenameDeviceRequest{Name: name}
	if err := c.doRequest(ctx, http.MethodPatch, path, req, nil, true); err != nil {
		return fmt.Errorf("rename device request failed: %w", err)
	}
	return nil
}

// doRequest выполняет HTTP запрос; signed добавляет подпись устройства
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}, signed bool) error {
	var bodyBytes []byte
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyBytes = jsonData
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if signed {
		if err := c.signRequest(req, method, path, bodyBytes); err != nil {
			return err
		}
	} else if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// signRequest проставляет X-Device-Kid, X-Signature и X-Timestamp
// Подписывается path без query string
func (c *Client) signRequest(req *http.Request, method, path string, body []byte) error {
	if c.privkey == nil {
		return fmt.Errorf("device key is not set, run 'register' or 'login' first")
	}

	ts := strconv.FormatInt(c.now().Unix(), 10)
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}

	message := crypto.CanonicalMessage(method, path, ts, crypto.HashBody(body))
	signature := crypto.Sign(c.privkey, message)

	req.Header.Set("X-Device-Kid", c.deviceKID)
	req.Header.Set("X-Signature", base64.RawURLEncoding.EncodeToString(signature))
	req.Header.Set("X-Timestamp", ts)
	return nil
}
