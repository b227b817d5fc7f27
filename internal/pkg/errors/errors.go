package errors

import "errors"

// Ошибки пула ключей. Обе являются штатными исходами операций, а не сбоями.
var (
	// ErrInvalidKey возвращается, когда ключа нет среди живых: он никогда не
	// выпускался, был удалён или истёк.
	ErrInvalidKey = errors.New("invalid key")

	// ErrNoKeyAvailable возвращается serve, если нет ни одного незаблокированного ключа.
	ErrNoKeyAvailable = errors.New("no key available")
)
