package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxDeviceNameLen максимальная длина имени устройства в Unicode символах
const MaxDeviceNameLen = 128

// ValidateDeviceName проверяет человекочитаемое имя устройства
// После trim: 1-128 Unicode символов (считаем руны, не байты)
// Возвращает нормализованное (trimmed) имя
func ValidateDeviceName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return "", fmt.Errorf("device name cannot be empty")
	}

	if utf8.RuneCountInString(trimmed) > MaxDeviceNameLen {
		return "", fmt.Errorf("device name must not exceed %d characters", MaxDeviceNameLen)
	}

	return trimmed, nil
}
