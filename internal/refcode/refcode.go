// Package refcode генерирует и проверяет реферальные коды аккаунтов.
package refcode

import (
	"crypto/rand"
	"math/big"
)

// Length — длина реферального кода.
const Length = 8

const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Generate возвращает новый случайный реферальный код.
// Уникальность кода гарантирует не генератор, а уникальный индекс в БД:
// при коллизии вызывающая сторона генерирует код заново.
func Generate() string {
	buf := make([]byte, Length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand на поддерживаемых платформах не возвращает ошибок
			panic(err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf)
}

// IsValid проверяет, что строка имеет формат реферального кода.
func IsValid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !contains(code[i]) {
			return false
		}
	}
	return true
}

func contains(c byte) bool {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == c {
			return true
		}
	}
	return false
}
