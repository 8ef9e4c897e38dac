package utils

import "golang.org/x/crypto/bcrypt"

// passwordCost pins the bcrypt work factor. Login latency scales with it.
const passwordCost = bcrypt.DefaultCost

// HashPassword derives a bcrypt hash suitable for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	return string(hash), err
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
