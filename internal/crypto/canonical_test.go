package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBody_EmptyBody(t *testing.T) {
	// SHA-256 пустой строки - известное значение
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBody(nil))
	assert.Equal(t, HashBody(nil), HashBody([]byte{}))
}

func TestCanonicalMessage_Format(t *testing.T) {
	msg := CanonicalMessage("GET", "/auth/devices", "1700000000", HashBody(nil))
	assert.Equal(t,
		"GET\n/auth/devices\n1700000000\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		string(msg))
}

func TestCanonicalMessage_UppercasesMethod(t *testing.T) {
	lower := CanonicalMessage("get", "/a", "1", "h")
	upper := CanonicalMessage("GET", "/a", "1", "h")
	assert.Equal(t, upper, lower)
}

func TestCanonicalMessage_Sensitivity(t *testing.T) {
	// Подпись для (GET, /a, t, h) не должна проходить при любом отклонении
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	base := CanonicalMessage("GET", "/a", "1700000000", HashBody(nil))
	sig := Sign(priv, base)
	require.True(t, VerifySignature(pub, base, sig))

	tests := []struct {
		name   string
		method string
		path   string
		ts     string
		body   []byte
	}{
		{name: "query string added", method: "GET", path: "/a?x=1", ts: "1700000000"},
		{name: "method changed", method: "POST", path: "/a", ts: "1700000000"},
		{name: "timestamp changed", method: "GET", path: "/a", ts: "1700000001"},
		{name: "body changed", method: "GET", path: "/a", ts: "1700000000", body: []byte("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := CanonicalMessage(tt.method, tt.path, tt.ts, HashBody(tt.body))
			assert.False(t, VerifySignature(pub, msg, sig))
		})
	}
}

func TestNonceHash_DeterministicAndBound(t *testing.T) {
	sig := []byte("signature-bytes")
	assert.Equal(t, NonceHash(sig), NonceHash(sig))
	assert.Len(t, NonceHash(sig), 32)
	assert.NotEqual(t, NonceHash(sig), NonceHash([]byte("other")))
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)

	_, err = ParseTimestamp("")
	assert.Error(t, err)

	_, err = ParseTimestamp("170000000x")
	assert.Error(t, err)

	_, err = ParseTimestamp("17.5")
	assert.Error(t, err)
}

func TestCertificateLoginMessage(t *testing.T) {
	pubkey := make([]byte, 32)
	msg := CertificateLoginMessage(pubkey, 0x0102030405060708)

	require.Len(t, msg, 40)
	// timestamp в little-endian после 32 байт ключа
	assert.Equal(t, byte(0x08), msg[32])
	assert.Equal(t, byte(0x01), msg[39])
}
