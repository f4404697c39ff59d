package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/keywitness/internal/crypto"
	"github.com/iudanet/keywitness/internal/server/authn"
	"github.com/iudanet/keywitness/pkg/api"
)

// deviceFixture - зарегистрированный аккаунт с identity его первого устройства
type deviceFixture struct {
	auth     *AuthHandler
	devices  *DevicesHandler
	root     keyPair
	identity *authn.Identity
}

func newDeviceFixture(t *testing.T, username string) *deviceFixture {
	t.Helper()

	auth, devices, _ := newTestHandlers(t)
	root := newKeyPair(t)
	device := newKeyPair(t)
	resp := doSignup(t, auth, signupRequest(t, username, root, device))

	return &deviceFixture{
		auth:    auth,
		devices: devices,
		root:    root,
		identity: &authn.Identity{
			AccountID: resp.AccountID,
			DeviceKID: resp.DeviceKID,
		},
	}
}

// do выполняет запрос от имени identity, как будто его положил authn middleware
func (f *deviceFixture) do(t *testing.T, handler http.HandlerFunc, method, target, kid string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, target, reader)
	if kid != "" {
		r.SetPathValue("kid", kid)
	}
	r = r.WithContext(authn.ContextWithIdentity(r.Context(), f.identity))

	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

// addDevice регистрирует дополнительное устройство и возвращает его KID
func (f *deviceFixture) addDevice(t *testing.T, device keyPair, name string) string {
	t.Helper()

	req := api.AddDeviceRequest{Device: api.DevicePayload{
		Pubkey:      b64(device.pub),
		Name:        name,
		Certificate: b64(crypto.Sign(f.root.priv, device.pub)),
	}}
	w := f.do(t, f.devices.Add, http.MethodPost, "/api/v1/auth/devices", "", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp api.AddDeviceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.DeviceKID
}

func TestDevices_List(t *testing.T) {
	f := newDeviceFixture(t, "alice")

	second := newKeyPair(t)
	secondKID := f.addDevice(t, second, "tablet")

	w := f.do(t, f.devices.List, http.MethodGet, "/api/v1/auth/devices", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.DeviceListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Devices, 2)
	assert.Equal(t, f.identity.DeviceKID, resp.Devices[0].DeviceKID)
	assert.Equal(t, secondKID, resp.Devices[1].DeviceKID)
	assert.False(t, resp.Devices[1].Revoked)

	// Отозванное устройство остается в списке с пометкой
	require.Equal(t, http.StatusNoContent,
		f.do(t, f.devices.Revoke, http.MethodDelete, "/api/v1/auth/devices/"+secondKID, secondKID, nil).Code)

	w = f.do(t, f.devices.List, http.MethodGet, "/api/v1/auth/devices", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Devices, 2)
	assert.True(t, resp.Devices[1].Revoked)
	assert.NotNil(t, resp.Devices[1].RevokedAt)
}

func TestDevices_Add_Validation(t *testing.T) {
	f := newDeviceFixture(t, "alice")
	device := newKeyPair(t)

	tests := []struct {
		name string
		req  api.AddDeviceRequest
		want int
	}{
		{
			"certificate from foreign root",
			api.AddDeviceRequest{Device: api.DevicePayload{
				Pubkey:      b64(device.pub),
				Name:        "tablet",
				Certificate: b64(crypto.Sign(newKeyPair(t).priv, device.pub)),
			}},
			http.StatusBadRequest,
		},
		{
			"wrong pubkey length",
			api.AddDeviceRequest{Device: api.DevicePayload{
				Pubkey:      b64([]byte("short")),
				Name:        "tablet",
				Certificate: b64(make([]byte, 64)),
			}},
			http.StatusBadRequest,
		},
		{
			"blank name",
			api.AddDeviceRequest{Device: api.DevicePayload{
				Pubkey:      b64(device.pub),
				Name:        "  ",
				Certificate: b64(crypto.Sign(f.root.priv, device.pub)),
			}},
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, f.devices.Add, http.MethodPost, "/api/v1/auth/devices", "", tt.req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestDevices_Add_DuplicateAndCap(t *testing.T) {
	f := newDeviceFixture(t, "alice")

	device := newKeyPair(t)
	f.addDevice(t, device, "tablet")

	// Повторная регистрация того же ключа
	req := api.AddDeviceRequest{Device: api.DevicePayload{
		Pubkey:      b64(device.pub),
		Name:        "tablet again",
		Certificate: b64(crypto.Sign(f.root.priv, device.pub)),
	}}
	w := f.do(t, f.devices.Add, http.MethodPost, "/api/v1/auth/devices", "", req)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Добиваем лимит: уже 2 активных устройства
	for i := 0; i < 8; i++ {
		f.addDevice(t, newKeyPair(t), "extra")
	}

	over := newKeyPair(t)
	req = api.AddDeviceRequest{Device: api.DevicePayload{
		Pubkey:      b64(over.pub),
		Name:        "one too many",
		Certificate: b64(crypto.Sign(f.root.priv, over.pub)),
	}}
	w = f.do(t, f.devices.Add, http.MethodPost, "/api/v1/auth/devices", "", req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDevices_Revoke(t *testing.T) {
	f := newDeviceFixture(t, "alice")

	kid := f.addDevice(t, newKeyPair(t), "tablet")

	w := f.do(t, f.devices.Revoke, http.MethodDelete, "/api/v1/auth/devices/"+kid, kid, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Повторный отзыв
	w = f.do(t, f.devices.Revoke, http.MethodDelete, "/api/v1/auth/devices/"+kid, kid, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDevices_Revoke_Self(t *testing.T) {
	f := newDeviceFixture(t, "alice")

	kid := f.identity.DeviceKID
	w := f.do(t, f.devices.Revoke, http.MethodDelete, "/api/v1/auth/devices/"+kid, kid, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDevices_Revoke_CrossAccount(t *testing.T) {
	alice := newDeviceFixture(t, "alice")

	// Устройство из другого аккаунта того же хранилища
	bobRoot := newKeyPair(t)
	bobDevice := newKeyPair(t)
	bob := doSignup(t, alice.auth, signupRequest(t, "bob", bobRoot, bobDevice))

	// Для alice устройство bob'а выглядит несуществующим
	w := alice.do(t, alice.devices.Revoke, http.MethodDelete, "/api/v1/auth/devices/"+bob.DeviceKID, bob.DeviceKID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	// Тело ошибки в той же форме, что и у authn middleware
	assert.JSONEq(t, `{"error":"device not found"}`, w.Body.String())
}

func TestDevices_Revoke_BadKID(t *testing.T) {
	f := newDeviceFixture(t, "alice")

	w := f.do(t, f.devices.Revoke, http.MethodDelete, "/api/v1/auth/devices/nope", "nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDevices_Rename(t *testing.T) {
	f := newDeviceFixture(t, "alice")

	kid := f.addDevice(t, newKeyPair(t), "tablet")

	w := f.do(t, f.devices.Rename, http.MethodPatch, "/api/v1/auth/devices/"+kid, kid,
		api.RenameDeviceRequest{Name: "kitchen tablet"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	list := f.do(t, f.devices.List, http.MethodGet, "/api/v1/auth/devices", "", nil)
	var resp api.DeviceListResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	assert.Equal(t, "kitchen tablet", resp.Devices[1].Name)

	// Отозванное устройство не переименовывается
	require.Equal(t, http.StatusNoContent,
		f.do(t, f.devices.Revoke, http.MethodDelete, "/api/v1/auth/devices/"+kid, kid, nil).Code)
	w = f.do(t, f.devices.Rename, http.MethodPatch, "/api/v1/auth/devices/"+kid, kid,
		api.RenameDeviceRequest{Name: "too late"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDevices_MissingIdentity(t *testing.T) {
	_, devices, _ := newTestHandlers(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/devices", nil)
	w := httptest.NewRecorder()
	devices.List(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
