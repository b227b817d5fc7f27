package keystore

import (
	"crypto/rand"
	"encoding/hex"
)

// KeyBytes — число случайных байт в ключе (120 бит, 30 hex-символов)
const KeyBytes = 15

// KeyLength — длина текстового представления ключа
const KeyLength = KeyBytes * 2

// RandomKey возвращает новый случайный ключ из crypto/rand
func RandomKey() string {
	b := make([]byte, KeyBytes)
	// crypto/rand.Read не возвращает ошибок начиная с Go 1.24
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// IsWellFormed проверяет, что строка может быть ключом: 30 символов в нижнем hex.
// Ключ правильной формы всё равно может быть неизвестен пулу.
func IsWellFormed(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
