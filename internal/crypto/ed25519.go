package crypto

import (
	"crypto/ed25519"
)

const (
	// PublicKeySize - размер публичного ключа Ed25519 в байтах
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize - размер подписи Ed25519 в байтах
	SignatureSize = ed25519.SignatureSize
)

// VerifySignature проверяет подпись Ed25519 (RFC 8032)
// Возвращает false для ключей и подписей неправильного размера
// вместо паники - входные данные приходят из сети
func VerifySignature(pubkey, message, signature []byte) bool {
	if len(pubkey) != PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey), message, signature)
}

// VerifyCertificate проверяет сертификат делегирования устройства:
// подпись корневого ключа над сырыми 32 байтами публичного ключа устройства
// (без framing, без base64). Сертификат валиден только против корневого
// ключа конкретного аккаунта
func VerifyCertificate(devicePubkey, certificate, rootPubkey []byte) bool {
	if len(devicePubkey) != PublicKeySize {
		return false
	}
	return VerifySignature(rootPubkey, devicePubkey, certificate)
}

// Sign подписывает сообщение приватным ключом Ed25519
// Используется клиентом и тестами; серверный код никогда не вызывает Sign
// с реальными ключами (сервер - "dumb witness", приватные ключи не хранит)
func Sign(privkey ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(privkey, message)
}
