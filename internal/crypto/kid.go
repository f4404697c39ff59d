package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// KIDLength - длина KID в символах (16 байт в base64url без padding)
const KIDLength = 22

// DeriveKID вычисляет идентификатор ключа (KID) из публичного ключа
// KID = base64url(SHA-256(pubkey)[0:16]) без padding
// Детерминированный: клиент и сервер всегда получают одинаковый KID
// для одного и того же ключа
func DeriveKID(pubkey []byte) string {
	hash := sha256.Sum256(pubkey)
	return base64.RawURLEncoding.EncodeToString(hash[:16])
}

// ValidateKID проверяет, что строка является корректным KID:
// ровно 22 символа из алфавита base64url [A-Za-z0-9_-]
func ValidateKID(kid string) error {
	if len(kid) != KIDLength {
		return fmt.Errorf("kid must be exactly %d characters", KIDLength)
	}
	for i := 0; i < len(kid); i++ {
		c := kid[i]
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum && c != '-' && c != '_' {
			return fmt.Errorf("kid contains invalid character at position %d", i)
		}
	}
	return nil
}
