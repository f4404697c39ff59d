package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/keywitness/internal/crypto"
	"github.com/iudanet/keywitness/internal/server/storage"
)

const (
	// MaxBodySize - предел тела подписанного запроса (64 KiB)
	MaxBodySize = 64 * 1024

	// MaxTimestampSkew - допустимое расхождение X-Timestamp с часами сервера
	MaxTimestampSkew = 300 * time.Second
)

// Identity - результат успешной аутентификации запроса
type Identity struct {
	AccountID string
	DeviceKID string
}

// AuthError несет HTTP-статус и публичное сообщение для клиента.
// Reason содержит детали для логов и никогда не уходит наружу:
// все причины отказа 401 для клиента выглядят одинаково
type AuthError struct {
	Status  int
	Message string
	Reason  string
}

func (e *AuthError) Error() string {
	return e.Reason
}

func unauthorized(format string, args ...any) *AuthError {
	return &AuthError{
		Status:  http.StatusUnauthorized,
		Message: "authentication failed",
		Reason:  fmt.Sprintf(format, args...),
	}
}

// Authenticator проверяет подписанные запросы: заголовки, устройство,
// Ed25519-подпись канонического сообщения, окно времени и replay
type Authenticator struct {
	devices storage.DeviceStorage
	nonces  storage.NonceStorage
	logger  *slog.Logger
	now     func() time.Time
}

func New(devices storage.DeviceStorage, nonces storage.NonceStorage, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		devices: devices,
		nonces:  nonces,
		logger:  logger,
		now:     time.Now,
	}
}

// Authenticate выполняет фиксированный pipeline проверок
// Порядок важен: сначала устройство (неизвестное - 401, отозванное - 403),
// потом подпись, окно времени и replay. Тело уже прочитано и ограничено
// вызывающим кодом
func (a *Authenticator) Authenticate(ctx context.Context, method, path string, body []byte, header http.Header) (*Identity, *AuthError) {
	parsed, err := ParseAuthHeaders(header)
	if err != nil {
		return nil, unauthorized("header parse: %v", err)
	}

	device, err := a.devices.GetDeviceByKID(ctx, parsed.DeviceKID)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceNotFound) {
			return nil, unauthorized("unknown device kid %s", parsed.DeviceKID)
		}
		return nil, &AuthError{
			Status:  http.StatusInternalServerError,
			Message: "internal error",
			Reason:  fmt.Sprintf("device lookup: %v", err),
		}
	}

	if device.IsRevoked() {
		return nil, &AuthError{
			Status:  http.StatusForbidden,
			Message: "device has been revoked",
			Reason:  fmt.Sprintf("revoked device kid %s", parsed.DeviceKID),
		}
	}

	message := crypto.CanonicalMessage(method, path, parsed.RawTimestamp, crypto.HashBody(body))
	if !crypto.VerifySignature(device.DevicePubkey, message, parsed.Signature) {
		return nil, unauthorized("signature mismatch for kid %s", parsed.DeviceKID)
	}

	// Сравниваем секунды напрямую: конвертация в time.Duration
	// переполняется на далеких timestamp'ах. Отрицательный skew после
	// негации - переполнение int64, такой timestamp тоже вне окна
	skew := a.now().Unix() - parsed.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew < 0 || skew > int64(MaxTimestampSkew/time.Second) {
		return nil, unauthorized("timestamp outside window: skew %ds", skew)
	}

	if err := a.nonces.CheckAndRecord(ctx, crypto.NonceHash(parsed.Signature)); err != nil {
		if errors.Is(err, storage.ErrNonceReplayed) {
			return nil, unauthorized("replayed signature for kid %s", parsed.DeviceKID)
		}
		return nil, &AuthError{
			Status:  http.StatusInternalServerError,
			Message: "internal error",
			Reason:  fmt.Sprintf("nonce record: %v", err),
		}
	}

	// Best-effort: отказ отметки last_used не валит запрос
	if err := a.devices.TouchLastUsed(ctx, parsed.DeviceKID); err != nil {
		a.logger.WarnContext(ctx, "failed to touch last_used",
			slog.String("device_kid", parsed.DeviceKID),
			slog.String("error", err.Error()),
		)
	}

	return &Identity{
		AccountID: device.AccountID,
		DeviceKID: device.DeviceKID,
	}, nil
}
