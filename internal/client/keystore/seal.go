package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/iudanet/keywitness/internal/crypto"
)

// Параметры Argon2id по умолчанию для запечатывания ключей
const (
	DefaultMCost = 65536 // KiB
	DefaultTCost = 3
	DefaultPCost = 1

	sealKeyLen = 32
)

// ErrWrongPassphrase возвращается, когда конверт не расшифровывается
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted envelope")

// Seal запечатывает секрет passphrase'ом в самоописывающийся конверт:
// Argon2id деривирует AES-256 ключ, GCM шифрует секрет
// Тот же формат используется для backup root-ключа на сервере
func Seal(secret, passphrase []byte) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(passphrase, salt[:], DefaultTCost, DefaultMCost, DefaultPCost)
	if err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce[:], secret, nil)
	return crypto.BuildEnvelope(DefaultMCost, DefaultTCost, DefaultPCost, salt, nonce, ciphertext)
}

// Unseal распечатывает конверт, созданный Seal (или совместимой реализацией)
// KDF-параметры берутся из заголовка конверта
func Unseal(envelope, passphrase []byte) ([]byte, error) {
	env, err := crypto.ParseEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(passphrase, env.Salt[:], env.TCost, env.MCost, env.PCost)
	if err != nil {
		return nil, err
	}

	secret, err := gcm.Open(nil, env.Nonce[:], env.Ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return secret, nil
}

func newGCM(passphrase, salt []byte, tCost, mCost, pCost uint32) (cipher.AEAD, error) {
	if pCost > 255 {
		return nil, fmt.Errorf("parallelism %d exceeds argon2 limit", pCost)
	}

	key := argon2.IDKey(passphrase, salt, tCost, mCost, uint8(pCost), sealKeyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
