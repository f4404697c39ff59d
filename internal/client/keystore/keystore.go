package keystore

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	// BoltDB bucket and key names
	bucketDevice  = []byte("device")
	keyIdentity   = []byte("identity")
	keySealedSeed = []byte("sealed_seed")
)

// ErrNotLoggedIn возвращается, когда в keystore нет сохраненного устройства
var ErrNotLoggedIn = errors.New("not logged in, run 'register' or 'login' first")

// Identity - данные устройства, хранимые в открытом виде
// Приватный ключ хранится отдельно, запечатанный passphrase'ом
type Identity struct {
	Username     string `json:"username"`
	AccountID    string `json:"account_id"`
	DeviceKID    string `json:"device_kid"`
	ServerURL    string `json:"server_url"`
	SessionToken string `json:"session_token,omitempty"`
}

// Keystore represents BoltDB-backed client key storage
type Keystore struct {
	db *bbolt.DB
}

// Open creates or opens a keystore at the given path
func Open(path string) (*Keystore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	ks := &Keystore{db: db}
	if err := ks.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return ks, nil
}

// Close closes the underlying database
func (k *Keystore) Close() error {
	if k.db == nil {
		return nil
	}
	return k.db.Close()
}

func (k *Keystore) initBuckets() error {
	return k.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDevice)
		return err
	})
}

// Save сохраняет identity и приватный ключ устройства, запечатанный passphrase'ом
// Хранится только seed: полный ключ восстанавливается при загрузке
func (k *Keystore) Save(identity *Identity, privkey ed25519.PrivateKey, passphrase []byte) error {
	identityRaw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	sealed, err := Seal(privkey.Seed(), passphrase)
	if err != nil {
		return fmt.Errorf("failed to seal device key: %w", err)
	}

	return k.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDevice)
		if err := b.Put(keyIdentity, identityRaw); err != nil {
			return err
		}
		return b.Put(keySealedSeed, sealed)
	})
}

// Identity возвращает сохраненную identity без расшифровки ключа
func (k *Keystore) Identity() (*Identity, error) {
	var raw []byte
	err := k.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketDevice).Get(keyIdentity); v != nil {
			raw = append(raw, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotLoggedIn
	}

	var identity Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	return &identity, nil
}

// DeviceKey распечатывает приватный ключ устройства
func (k *Keystore) DeviceKey(passphrase []byte) (ed25519.PrivateKey, error) {
	var sealed []byte
	err := k.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketDevice).Get(keySealedSeed); v != nil {
			sealed = append(sealed, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sealed == nil {
		return nil, ErrNotLoggedIn
	}

	seed, err := Unseal(sealed, passphrase)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("sealed seed has wrong size %d", len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// SetSessionToken обновляет сессионный токен в сохраненной identity
func (k *Keystore) SetSessionToken(token string) error {
	identity, err := k.Identity()
	if err != nil {
		return err
	}
	identity.SessionToken = token

	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	return k.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDevice).Put(keyIdentity, raw)
	})
}

// Clear удаляет сохраненное устройство (logout)
func (k *Keystore) Clear() error {
	return k.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDevice)
		if err := b.Delete(keyIdentity); err != nil {
			return err
		}
		return b.Delete(keySealedSeed)
	})
}
