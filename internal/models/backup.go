package models

import "time"

// Backup представляет зашифрованный backup envelope аккаунта
// Сервер хранит envelope как непрозрачный блоб: структура проверяется
// при загрузке, содержимое никогда не расшифровывается
type Backup struct {
	CreatedAt time.Time
	AccountID string
	Envelope  []byte
}
