package models

import "time"

// DeviceKey представляет делегированный ключ устройства
// Сертификат - подпись корневого ключа над публичным ключом устройства;
// после создания сертификат не изменяется (ротация = revoke + новая делегация)
// Записи никогда не удаляются физически, только помечаются revoked_at
type DeviceKey struct {
	CreatedAt    time.Time
	LastUsedAt   *time.Time // обновляется при каждом успешном подписанном запросе
	RevokedAt    *time.Time // устанавливается один раз, не сбрасывается
	ID           string     // UUID
	AccountID    string
	DeviceKID    string // глобально уникальный, производный от DevicePubkey
	Name         string
	DevicePubkey []byte // 32 байта Ed25519
	Certificate  []byte // 64 байта, подпись корневого ключа
}

// IsRevoked сообщает, отозвано ли устройство
func (d *DeviceKey) IsRevoked() bool {
	return d.RevokedAt != nil
}
