package crypto

import (
	"encoding/binary"
	"errors"
)

// Формат бинарного backup envelope (создается на клиенте, сервер
// проверяет только структуру, не расшифровывая):
//
//	offset  size  field
//	0       1     version (0x01)
//	1       1     kdf_id (0x01 = Argon2id)
//	2       4     m_cost, little-endian u32 (>= 65536)
//	6       4     t_cost, little-endian u32 (>= 3)
//	10      4     p_cost, little-endian u32 (>= 1)
//	14      16    salt
//	30      12    AEAD nonce
//	42      N     ciphertext (N >= 48)
const (
	// EnvelopeVersion - текущая версия формата envelope
	EnvelopeVersion = 0x01
	// EnvelopeKDFArgon2id - идентификатор KDF (принимается только Argon2id)
	EnvelopeKDFArgon2id = 0x01
	// EnvelopeHeaderSize - фиксированный размер заголовка
	EnvelopeHeaderSize = 42
	// EnvelopeMinCiphertext - минимум ciphertext: 32 (ключ) + 16 (тег GCM)
	EnvelopeMinCiphertext = 48
	// EnvelopeMinSize - минимальный общий размер envelope
	EnvelopeMinSize = EnvelopeHeaderSize + EnvelopeMinCiphertext // 90
	// EnvelopeMaxSize - максимальный принимаемый размер envelope
	EnvelopeMaxSize = 4096

	// Минимальные параметры Argon2id, которые сервер согласен засвидетельствовать
	envelopeMinMCost = 65536
	envelopeMinTCost = 3
	envelopeMinPCost = 1

	envelopeSaltOffset  = 14
	envelopeNonceOffset = 30
)

// Ошибки структурной валидации envelope
// Каждое нарушенное ограничение - отдельная ошибка
var (
	ErrEnvelopeTooSmall   = errors.New("encrypted backup envelope too small")
	ErrEnvelopeTooLarge   = errors.New("encrypted backup envelope too large")
	ErrEnvelopeVersion    = errors.New("unsupported backup envelope version")
	ErrEnvelopeKDF        = errors.New("unsupported KDF (only Argon2id is accepted)")
	ErrEnvelopeWeakKDF    = errors.New("KDF parameters below minimum")
	ErrCiphertextTooSmall = errors.New("ciphertext too small (minimum 48 bytes)")
)

// Envelope - разобранный и структурно валидный backup envelope
// Ciphertext никогда не интерпретируется сервером
type Envelope struct {
	MCost      uint32
	TCost      uint32
	PCost      uint32
	Salt       [16]byte
	Nonce      [12]byte
	Ciphertext []byte
	raw        []byte
}

// ParseEnvelope разбирает и валидирует сырой envelope
// Проверяет размер, версию, KDF и минимальные параметры Argon2id;
// содержимое ciphertext не проверяется
func ParseEnvelope(raw []byte) (*Envelope, error) {
	if len(raw) < EnvelopeMinSize {
		return nil, ErrEnvelopeTooSmall
	}
	if len(raw) > EnvelopeMaxSize {
		return nil, ErrEnvelopeTooLarge
	}
	if raw[0] != EnvelopeVersion {
		return nil, ErrEnvelopeVersion
	}
	if raw[1] != EnvelopeKDFArgon2id {
		return nil, ErrEnvelopeKDF
	}

	env := &Envelope{
		MCost: binary.LittleEndian.Uint32(raw[2:6]),
		TCost: binary.LittleEndian.Uint32(raw[6:10]),
		PCost: binary.LittleEndian.Uint32(raw[10:14]),
		raw:   raw,
	}
	if env.MCost < envelopeMinMCost || env.TCost < envelopeMinTCost || env.PCost < envelopeMinPCost {
		return nil, ErrEnvelopeWeakKDF
	}

	copy(env.Salt[:], raw[envelopeSaltOffset:envelopeSaltOffset+16])
	copy(env.Nonce[:], raw[envelopeNonceOffset:envelopeNonceOffset+12])
	env.Ciphertext = raw[EnvelopeHeaderSize:]

	return env, nil
}

// Bytes возвращает сырые байты envelope для сохранения в БД
func (e *Envelope) Bytes() []byte {
	return e.raw
}

// BuildEnvelope собирает envelope из отдельных полей
// Используется клиентом при регистрации и тестами
func BuildEnvelope(mCost, tCost, pCost uint32, salt [16]byte, nonce [12]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < EnvelopeMinCiphertext {
		return nil, ErrCiphertextTooSmall
	}
	total := EnvelopeHeaderSize + len(ciphertext)
	if total > EnvelopeMaxSize {
		return nil, ErrEnvelopeTooLarge
	}

	raw := make([]byte, 0, total)
	raw = append(raw, EnvelopeVersion, EnvelopeKDFArgon2id)
	raw = binary.LittleEndian.AppendUint32(raw, mCost)
	raw = binary.LittleEndian.AppendUint32(raw, tCost)
	raw = binary.LittleEndian.AppendUint32(raw, pCost)
	raw = append(raw, salt[:]...)
	raw = append(raw, nonce[:]...)
	raw = append(raw, ciphertext...)

	return raw, nil
}
