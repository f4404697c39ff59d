package models

import "time"

// Account представляет корневую identity пользователя
// Создается один раз при регистрации и не изменяется
type Account struct {
	CreatedAt  time.Time
	ID         string // UUID
	Username   string
	RootKID    string // производный от RootPubkey, см. crypto.DeriveKID
	RootPubkey []byte // 32 байта Ed25519
}
