package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// CanonicalMessage строит каноническое сообщение для подписи запроса:
//
//	{METHOD}\n{PATH}\n{TIMESTAMP}\n{BODY_SHA256_HEX}
//
// METHOD - HTTP метод в верхнем регистре
// PATH - только путь запроса, без scheme/host/query string: подпись для
// /auth/devices не должна проходить для /auth/devices?admin=true
// TIMESTAMP - строка из заголовка X-Timestamp как есть (не серверное время)
// BODY_SHA256_HEX - lowercase hex SHA-256 от сырых байт тела запроса
func CanonicalMessage(method, path, timestamp, bodyHashHex string) []byte {
	msg := strings.ToUpper(method) + "\n" + path + "\n" + timestamp + "\n" + bodyHashHex
	return []byte(msg)
}

// HashBody вычисляет lowercase hex SHA-256 от тела запроса
// Пустое тело хешируется как обычно (e3b0c442...)
func HashBody(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// NonceHash вычисляет nonce для replay-защиты: SHA-256 от сырых байт подписи
// Подпись уже привязана к одному ключу устройства, поэтому
// журнал nonce не хранит идентификатор устройства
func NonceHash(signature []byte) []byte {
	hash := sha256.Sum256(signature)
	return hash[:]
}

// CertificateLoginMessage строит сообщение, которое корневой ключ
// подписывает при login: device_pubkey || timestamp (little-endian int64)
// Привязка к timestamp ограничивает окно, в котором сертификат можно
// предъявить серверу
func CertificateLoginMessage(devicePubkey []byte, timestamp int64) []byte {
	msg := make([]byte, 0, len(devicePubkey)+8)
	msg = append(msg, devicePubkey...)
	for i := 0; i < 8; i++ {
		msg = append(msg, byte(timestamp>>(8*i)))
	}
	return msg
}

// ParseTimestamp парсит значение заголовка X-Timestamp как целое число
// Unix seconds. Возвращает ошибку для пустых и нечисловых значений
func ParseTimestamp(value string) (int64, error) {
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp: %w", err)
	}
	return ts, nil
}
