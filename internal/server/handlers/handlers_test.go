package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/keywitness/internal/crypto"
	"github.com/iudanet/keywitness/internal/server/storage/sqlite"
	"github.com/iudanet/keywitness/pkg/api"
)

// keyPair - пара ключей для тестов
type keyPair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return keyPair{pub: pub, priv: priv}
}

func b64(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func testJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:         []byte("test-secret-key"),
		AccessTokenTTL: 15 * time.Minute,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHandlers поднимает in-memory хранилище и оба handler'а
func newTestHandlers(t *testing.T) (*AuthHandler, *DevicesHandler, *sqlite.Storage) {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	logger := testLogger()
	auth := NewAuthHandler(logger, s, s, s, s, testJWTConfig())
	devices := NewDevicesHandler(logger, s, s)
	return auth, devices, s
}

// testEnvelopeB64 возвращает валидный backup-конверт в base64url
func testEnvelopeB64(t *testing.T) string {
	t.Helper()
	raw, err := crypto.BuildEnvelope(65536, 3, 1,
		[16]byte{0xAA}, [12]byte{0xBB}, bytes.Repeat([]byte{0xCC}, 48))
	require.NoError(t, err)
	return b64(raw)
}

// signupRequest собирает валидное signup-тело для данных ключей
func signupRequest(t *testing.T, username string, root, device keyPair) api.SignupRequest {
	t.Helper()
	return api.SignupRequest{
		Username:   username,
		RootPubkey: b64(root.pub),
		Backup:     api.BackupPayload{EncryptedBlob: testEnvelopeB64(t)},
		Device: api.DevicePayload{
			Pubkey:      b64(device.pub),
			Name:        "laptop",
			Certificate: b64(crypto.Sign(root.priv, device.pub)),
		},
	}
}

// doSignup выполняет signup и возвращает ответ
func doSignup(t *testing.T, h *AuthHandler, req api.SignupRequest) api.SignupResponse {
	t.Helper()

	w := postJSON(t, h.Signup, "/api/v1/auth/signup", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp api.SignupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// postJSON отправляет JSON body в handler
func postJSON(t *testing.T, handler http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

// loginRequest собирает валидное login-тело с timestamp-сертификатом
func loginRequest(t *testing.T, username string, root, device keyPair, ts int64) api.LoginRequest {
	t.Helper()

	message := crypto.CertificateLoginMessage(device.pub, ts)
	return api.LoginRequest{
		Username:  username,
		Timestamp: ts,
		Device: api.DevicePayload{
			Pubkey:      b64(device.pub),
			Name:        "phone",
			Certificate: b64(crypto.Sign(root.priv, message)),
		},
	}
}
