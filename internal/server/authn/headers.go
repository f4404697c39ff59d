package authn

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/iudanet/keywitness/internal/crypto"
)

// Заголовки подписанного запроса
const (
	HeaderDeviceKID = "X-Device-Kid"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// ParsedAuthHeaders - разобранные и проверенные auth-заголовки запроса
// Конструируется один раз в начале pipeline; сырые строки заголовков
// дальше не передаются
type ParsedAuthHeaders struct {
	DeviceKID    string
	RawTimestamp string // значение заголовка как есть - входит в каноническое сообщение
	Timestamp    int64
	Signature    []byte // ровно 64 байта
}

// ParseAuthHeaders извлекает и валидирует три обязательных заголовка
// Любая проблема формата - одна и та же ошибка для вызывающего кода,
// детали различаются только в возвращаемом тексте для логов
func ParseAuthHeaders(h http.Header) (*ParsedAuthHeaders, error) {
	kid := h.Get(HeaderDeviceKID)
	if kid == "" {
		return nil, fmt.Errorf("missing %s header", HeaderDeviceKID)
	}
	if err := crypto.ValidateKID(kid); err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", HeaderDeviceKID, err)
	}

	sigStr := h.Get(HeaderSignature)
	if sigStr == "" {
		return nil, fmt.Errorf("missing %s header", HeaderSignature)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s encoding: %w", HeaderSignature, err)
	}
	if len(sig) != crypto.SignatureSize {
		return nil, fmt.Errorf("%s must decode to %d bytes, got %d", HeaderSignature, crypto.SignatureSize, len(sig))
	}

	tsStr := h.Get(HeaderTimestamp)
	if tsStr == "" {
		return nil, fmt.Errorf("missing %s header", HeaderTimestamp)
	}
	ts, err := crypto.ParseTimestamp(tsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", HeaderTimestamp, err)
	}

	return &ParsedAuthHeaders{
		DeviceKID:    kid,
		Signature:    sig,
		RawTimestamp: tsStr,
		Timestamp:    ts,
	}, nil
}
