package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/keywitness/internal/crypto"
	"github.com/iudanet/keywitness/internal/models"
	"github.com/iudanet/keywitness/internal/server/storage"
	"github.com/iudanet/keywitness/internal/validation"
	"github.com/iudanet/keywitness/pkg/api"
)

// AuthHandler обрабатывает незащищенные endpoint'ы: signup, login, backup
// и сессионный whoami по JWT
type AuthHandler struct {
	logger    *slog.Logger
	accounts  storage.AccountStorage
	devices   storage.DeviceStorage
	backups   storage.BackupStorage
	nonces    storage.NonceStorage
	jwtConfig JWTConfig
}

// NewAuthHandler создает новый handler для регистрации и входа
func NewAuthHandler(
	logger *slog.Logger,
	accounts storage.AccountStorage,
	devices storage.DeviceStorage,
	backups storage.BackupStorage,
	nonces storage.NonceStorage,
	jwtConfig JWTConfig,
) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		accounts:  accounts,
		devices:   devices,
		backups:   backups,
		nonces:    nonces,
		jwtConfig: jwtConfig,
	}
}

// decodeField декодирует base64url-поле фиксированной длины
func decodeField(name, value string, wantLen int) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64url: %w", name, err)
	}
	if len(raw) != wantLen {
		return nil, fmt.Errorf("%s must be %d bytes, got %d", name, wantLen, len(raw))
	}
	return raw, nil
}

// decodedDevice - распакованный DevicePayload
type decodedDevice struct {
	pubkey      []byte
	certificate []byte
	name        string
}

func decodeDevicePayload(p api.DevicePayload) (*decodedDevice, error) {
	pubkey, err := decodeField("device pubkey", p.Pubkey, crypto.PublicKeySize)
	if err != nil {
		return nil, err
	}
	cert, err := decodeField("device certificate", p.Certificate, crypto.SignatureSize)
	if err != nil {
		return nil, err
	}
	name, err := validation.ValidateDeviceName(p.Name)
	if err != nil {
		return nil, err
	}
	return &decodedDevice{pubkey: pubkey, certificate: cert, name: name}, nil
}

// Signup обрабатывает POST /api/v1/auth/signup
// Атомарно создает аккаунт, первое устройство и backup root-ключа
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode signup request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		h.logger.WarnContext(ctx, "invalid username", slog.String("username", req.Username), slog.Any("error", err))
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rootPubkey, err := decodeField("root pubkey", req.RootPubkey, crypto.PublicKeySize)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	device, err := decodeDevicePayload(req.Device)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Backup-конверт валидируется структурно, содержимое сервер не читает
	envelopeRaw, err := base64.RawURLEncoding.DecodeString(req.Backup.EncryptedBlob)
	if err != nil {
		h.sendError(w, "backup encrypted_blob is not valid base64url", http.StatusBadRequest)
		return
	}
	if _, err := crypto.ParseEnvelope(envelopeRaw); err != nil {
		h.sendError(w, fmt.Sprintf("invalid backup envelope: %v", err), http.StatusBadRequest)
		return
	}

	// Сертификат устройства должен быть подписан заявленным root-ключом
	if !crypto.VerifyCertificate(device.pubkey, device.certificate, rootPubkey) {
		h.logger.WarnContext(ctx, "signup certificate verification failed", slog.String("username", req.Username))
		h.sendError(w, "invalid device certificate", http.StatusBadRequest)
		return
	}

	now := time.Now()
	account := &models.Account{
		ID:         uuid.New().String(),
		Username:   req.Username,
		RootKID:    crypto.DeriveKID(rootPubkey),
		RootPubkey: rootPubkey,
		CreatedAt:  now,
	}
	deviceKey := &models.DeviceKey{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		DeviceKID:    crypto.DeriveKID(device.pubkey),
		DevicePubkey: device.pubkey,
		Name:         device.name,
		Certificate:  device.certificate,
		CreatedAt:    now,
	}
	backup := &models.Backup{
		AccountID: account.ID,
		Envelope:  envelopeRaw,
		CreatedAt: now,
	}

	if err := h.accounts.CreateAccount(ctx, account, deviceKey, backup); err != nil {
		switch {
		case errors.Is(err, storage.ErrAccountExists):
			h.logger.WarnContext(ctx, "username already taken", slog.String("username", req.Username))
			h.sendError(w, "username already taken", http.StatusConflict)
		case errors.Is(err, storage.ErrDuplicateDevice):
			h.logger.WarnContext(ctx, "device key already registered", slog.String("device_kid", deviceKey.DeviceKID))
			h.sendError(w, "device key already registered", http.StatusConflict)
		default:
			h.logger.ErrorContext(ctx, "failed to create account", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.logger.InfoContext(ctx, "account created",
		slog.String("username", req.Username),
		slog.String("account_id", account.ID),
		slog.String("device_kid", deviceKey.DeviceKID))

	h.sendJSON(w, api.SignupResponse{
		AccountID: account.ID,
		DeviceKID: deviceKey.DeviceKID,
	}, http.StatusCreated)
}

// Login обрабатывает POST /api/v1/auth/login
// Регистрирует новое устройство по сертификату root-ключа, привязанному
// к timestamp, и выдает сессионный JWT
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode login request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	device, err := decodeDevicePayload(req.Device)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := h.accounts.GetAccountByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			h.logger.WarnContext(ctx, "login failed: account not found", slog.String("username", req.Username))
			h.sendError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get account", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Сертификат действует в том же окне, что и подписанные запросы
	skew := time.Now().Unix() - req.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > 300 {
		h.logger.WarnContext(ctx, "login failed: certificate timestamp outside window",
			slog.String("username", req.Username), slog.Int64("skew", skew))
		h.sendError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	message := crypto.CertificateLoginMessage(device.pubkey, req.Timestamp)
	if !crypto.VerifySignature(account.RootPubkey, message, device.certificate) {
		h.logger.WarnContext(ctx, "login failed: certificate verification failed", slog.String("username", req.Username))
		h.sendError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	// Один сертификат регистрирует устройство не более одного раза
	if err := h.nonces.CheckAndRecord(ctx, crypto.NonceHash(device.certificate)); err != nil {
		if errors.Is(err, storage.ErrNonceReplayed) {
			h.logger.WarnContext(ctx, "login failed: certificate replayed", slog.String("username", req.Username))
			h.sendError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to record login nonce", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
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

	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, account.ID, account.Username, deviceKey.DeviceKID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "device logged in",
		slog.String("username", account.Username),
		slog.String("device_kid", deviceKey.DeviceKID))

	h.sendJSON(w, api.LoginResponse{
		AccountID:   account.ID,
		DeviceKID:   deviceKey.DeviceKID,
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	}, http.StatusOK)
}

// Session обрабатывает GET /api/v1/auth/session
// Whoami по сессионному JWT; claims кладет session middleware,
// отозванное устройство теряет сессию
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := SessionClaimsFromContext(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "missing session claims in request context")
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	device, err := h.devices.GetDeviceByKID(ctx, claims.DeviceKID)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceNotFound) {
			h.sendError(w, "invalid or expired access token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get device", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if device.IsRevoked() {
		h.sendError(w, "device has been revoked", http.StatusForbidden)
		return
	}

	h.sendJSON(w, api.SessionResponse{
		AccountID: claims.AccountID,
		Username:  claims.Username,
		DeviceKID: claims.DeviceKID,
	}, http.StatusOK)
}

// Backup обрабатывает GET /api/v1/auth/backup/{username}
// Возвращает зашифрованный backup-конверт для восстановления root-ключа
// Endpoint открытый: конверт бесполезен без passphrase владельца
func (h *AuthHandler) Backup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := r.PathValue("username")
	if err := validation.ValidateUsername(username); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	backup, err := h.backups.GetBackupByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) || errors.Is(err, storage.ErrBackupNotFound) {
			h.sendError(w, "backup not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get backup", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, api.BackupResponse{
		EncryptedBlob: base64.RawURLEncoding.EncodeToString(backup.Envelope),
	}, http.StatusOK)
}

// sendJSON отправляет JSON ответ
func (h *AuthHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
// Форма тела единая для всего API: {"error": "<текст>"}
func (h *AuthHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, api.ErrorResponse{Error: message}, statusCode)
}
