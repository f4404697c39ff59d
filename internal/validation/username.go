package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// UsernamePattern определяет допустимый формат username
// Латинские буквы (a-z, A-Z), цифры (0-9), дефис (-), нижнее подчеркивание (_)
// Длина: 3-64 символа
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)

const (
	// MinUsernameLen минимальная длина username
	MinUsernameLen = 3
	// MaxUsernameLen максимальная длина username
	MaxUsernameLen = 64
)

// reservedUsernames - имена, которые нельзя регистрировать:
// служебные пути и слова, вводящие в заблуждение
var reservedUsernames = map[string]struct{}{
	"admin":         {},
	"administrator": {},
	"root":          {},
	"system":        {},
	"mod":           {},
	"moderator":     {},
	"support":       {},
	"help":          {},
	"api":           {},
	"auth":          {},
	"signup":        {},
	"login":         {},
	"backup":        {},
	"null":          {},
	"undefined":     {},
	"anonymous":     {},
}

// ValidateUsername проверяет, что username соответствует требованиям
// Формат: латинские буквы, цифры, дефис, нижнее подчеркивание
// Длина: 3-64 символа; зарезервированные имена запрещены
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if len(username) < MinUsernameLen {
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLen)
	}

	if len(username) > MaxUsernameLen {
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLen)
	}

	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("username can only contain letters (a-z, A-Z), numbers (0-9), hyphens (-), and underscores (_)")
	}

	if _, ok := reservedUsernames[strings.ToLower(username)]; ok {
		return fmt.Errorf("this username is reserved")
	}

	return nil
}
