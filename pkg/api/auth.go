package api

import "time"

// DevicePayload описывает регистрируемое устройство
// Бинарные поля - base64url без padding
type DevicePayload struct {
	Pubkey      string `json:"pubkey"`      // Ed25519 public key устройства (32 bytes)
	Name        string `json:"name"`        // человекочитаемое имя
	Certificate string `json:"certificate"` // подпись root-ключа (64 bytes)
}

// BackupPayload описывает зашифрованный backup root-ключа
type BackupPayload struct {
	EncryptedBlob string `json:"encrypted_blob"` // envelope, base64url без padding
}

// SignupRequest представляет запрос на создание аккаунта
type SignupRequest struct {
	Username   string        `json:"username"`    // имя аккаунта, [a-zA-Z0-9_-]{3,64}
	RootPubkey string        `json:"root_pubkey"` // Ed25519 root public key (32 bytes)
	Backup     BackupPayload `json:"backup"`
	Device     DevicePayload `json:"device"` // первое устройство аккаунта
}

// SignupResponse представляет ответ на успешную регистрацию
type SignupResponse struct {
	AccountID string `json:"account_id"` // UUID аккаунта
	DeviceKID string `json:"device_kid"` // KID первого устройства
}

// LoginRequest представляет вход нового устройства по сертификату root-ключа
// Сертификат подписывает device_pubkey || timestamp (little-endian i64)
type LoginRequest struct {
	Username  string        `json:"username"`
	Timestamp int64         `json:"timestamp"` // Unix seconds, окно ±300s
	Device    DevicePayload `json:"device"`
}

// LoginResponse представляет ответ на успешный вход устройства
type LoginResponse struct {
	AccountID   string `json:"account_id"`
	DeviceKID   string `json:"device_kid"`
	AccessToken string `json:"access_token"` // JWT для сессионных запросов
	ExpiresIn   int64  `json:"expires_in"`   // время жизни токена в секундах
}

// SessionResponse представляет ответ whoami по сессионному токену
type SessionResponse struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	DeviceKID string `json:"device_kid"`
}

// BackupResponse представляет зашифрованный backup-конверт аккаунта
type BackupResponse struct {
	EncryptedBlob string `json:"encrypted_blob"` // base64url без padding
}

// DeviceInfo представляет одно устройство аккаунта
type DeviceInfo struct {
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	DeviceKID  string     `json:"device_kid"`
	Name       string     `json:"name"`
	Revoked    bool       `json:"revoked"`
}

// DeviceListResponse представляет список устройств аккаунта
type DeviceListResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

// AddDeviceRequest представляет регистрацию дополнительного устройства
// с уже аутентифицированного устройства
type AddDeviceRequest struct {
	Device DevicePayload `json:"device"`
}

// AddDeviceResponse представляет ответ на регистрацию устройства
type AddDeviceResponse struct {
	DeviceKID string `json:"device_kid"`
}

// RenameDeviceRequest представляет переименование устройства
type RenameDeviceRequest struct {
	Name string `json:"name"`
}

// ErrorResponse представляет ответ с ошибкой
// Единая форма для всех статусов: handlers, authn middleware и rate limiter
type ErrorResponse struct {
	Error string `json:"error"` // описание ошибки
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status string `json:"status"`
}
