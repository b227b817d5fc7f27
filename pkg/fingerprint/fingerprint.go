package fingerprint

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Size — длина отпечатка в байтах (16 hex-символов)
const Size = 8

// Of возвращает короткий необратимый отпечаток значения ключа.
// Отпечаток стабилен в пределах процесса и между процессами, поэтому по нему
// можно сопоставлять записи логов и события, не раскрывая сам ключ.
func Of(key string) string {
	h, err := blake2b.New(Size, nil)
	if err != nil {
		// blake2b.New возвращает ошибку только для недопустимого размера или ключа
		panic(err)
	}
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}
