package identity

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// hashCost is the bcrypt work factor for stored digests.
const hashCost = 14

// HashPassword derives the digest stored on the user record. Empty
// passwords are rejected before touching the hasher.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}

	return string(digest), nil
}

// ComparePasswordAndHash checks a cleartext password against the stored
// digest, mapping a mismatch to the module sentinel.
func ComparePasswordAndHash(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatchedHashAndPassword
	}
	return err
}

// RandomPasswordHash produces a valid digest of a throwaway password,
// for accounts provisioned without credentials.
func RandomPasswordHash() string {
	digest, err := HashPassword(uuid.NewString())
	if err != nil {
		return RandomPasswordHash()
	}
	return digest
}
