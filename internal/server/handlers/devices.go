package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/keywitness/internal/crypto"
	"github.com/iudanet/keywitness/internal/models"
	"github.com/iudanet/keywitness/internal/server/authn"
	"github.com/iudanet/keywitness/internal/server/storage"
	"github.com/iudanet/keywitness/internal/validation"
	"github.com/iudanet/keywitness/pkg/api"
)

// DevicesHandler обрабатывает операции над устройствами аккаунта
// Все endpoint'ы требуют подписанный запрос: identity кладет authn middleware
type DevicesHandler struct {
	logger   *slog.Logger
	accounts storage.AccountStorage
	devices  storage.DeviceStorage
}

// NewDevicesHandler создает новый handler для устройств
func NewDevicesHandler(logger *slog.Logger, accounts storage.AccountStorage, devices storage.DeviceStorage) *DevicesHandler {
	return &DevicesHandler{
		logger:   logger,
		accounts: accounts,
		devices:  devices,
	}
}

// identity извлекает результат аутентификации из контекста
// Отсутствие identity - ошибка конфигурации routing'а, не клиента
func (h *DevicesHandler) identity(w http.ResponseWriter, r *http.Request) (*authn.Identity, bool) {
	identity, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "missing identity in request context",
			slog.String("path", r.URL.Path))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return identity, true
}

// List обрабатывает GET /api/v1/auth/devices
// Возвращает все устройства аккаунта, включая отозванные
func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	devices, err := h.devices.ListDevicesByAccount(ctx, identity.AccountID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list devices", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.DeviceListResponse{Devices: make([]api.DeviceInfo, 0, len(devices))}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, api.DeviceInfo{
			DeviceKID:  d.DeviceKID,
			Name:       d.Name,
			CreatedAt:  d.CreatedAt,
			LastUsedAt: d.LastUsedAt,
			RevokedAt:  d.RevokedAt,
			Revoked:    d.IsRevoked(),
		})
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// Add обрабатывает POST /api/v1/auth/devices
// Регистрирует дополнительное устройство; сертификат проверяется против
// root-ключа аккаунта из directory, а не из запроса
func (h *DevicesHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req api.AddDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode add device request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	device, err := decodeDevicePayload(req.Device)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := h.accounts.GetAccountByID(ctx, identity.AccountID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get account", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if !crypto.VerifyCertificate(device.pubkey, device.certificate, account.RootPubkey) {
		h.logger.WarnContext(ctx, "add device certificate verification failed",
			slog.String("account_id", identity.AccountID))
		h.sendError(w, "invalid device certificate", http.StatusBadRequest)
		return
	}

	deviceKey := &models.DeviceKey{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		DeviceKID:    crypto.DeriveKID(device.pubkey),
		DevicePubkey: device.pubkey,
		Name:         device.name,
		Certificate:  device.certificate,
		CreatedAt:    time.Now(),
	}

	if err := h.devices.RegisterDevice(ctx, deviceKey); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateDevice):
			h.sendError(w, "device key already registered", http.StatusConflict)
		case errors.Is(err, storage.ErrMaxDevicesReached):
			h.sendError(w, "maximum number of devices reached", http.StatusUnprocessableEntity)
		default:
			h.logger.ErrorContext(ctx, "failed to register device", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.logger.InfoContext(ctx, "device added",
		slog.String("account_id", account.ID),
		slog.String("device_kid", deviceKey.DeviceKID))

	h.sendJSON(w, api.AddDeviceResponse{DeviceKID: deviceKey.DeviceKID}, http.StatusCreated)
}

// Revoke обрабатывает DELETE /api/v1/auth/devices/{kid}
// Отзыв необратим; устройство, подписавшее запрос, отозвать себя не может
func (h *DevicesHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	kid := r.PathValue("kid")
	if err := crypto.ValidateKID(kid); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if kid == identity.DeviceKID {
		h.sendError(w, "cannot revoke the device used to sign this request", http.StatusUnprocessableEntity)
		return
	}

	if err := h.devices.RevokeDevice(ctx, identity.AccountID, kid); err != nil {
		switch {
		case errors.Is(err, storage.ErrDeviceNotFound):
			// Чужие устройства неотличимы от несуществующих
			h.sendError(w, "device not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrDeviceRevoked):
			h.sendError(w, "device is already revoked", http.StatusConflict)
		default:
			h.logger.ErrorContext(ctx, "failed to revoke device", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.logger.InfoContext(ctx, "device revoked",
		slog.String("account_id", identity.AccountID),
		slog.String("device_kid", kid))

	w.WriteHeader(http.StatusNoContent)
}

// Rename обрабатывает PATCH /api/v1/auth/devices/{kid}
func (h *DevicesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	kid := r.PathValue("kid")
	if err := crypto.ValidateKID(kid); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.RenameDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	name, err := validation.ValidateDeviceName(req.Name)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.devices.RenameDevice(ctx, identity.AccountID, kid, name); err != nil {
		switch {
		case errors.Is(err, storage.ErrDeviceNotFound):
			h.sendError(w, "device not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrDeviceRevoked):
			h.sendError(w, "device is revoked", http.StatusConflict)
		default:
			h.logger.ErrorContext(ctx, "failed to rename device", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sendJSON отправляет JSON ответ
func (h *DevicesHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
// Форма тела единая для всего API: {"error": "<текст>"}
func (h *DevicesHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, api.ErrorResponse{Error: message}, statusCode)
}
