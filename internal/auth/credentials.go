package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier derives and checks one-way password verifiers.
type CredentialVerifier interface {
	Derive(password string) (string, error)
	Verify(password, verifier string) bool
}

// BcryptVerifier implements CredentialVerifier with bcrypt.
type BcryptVerifier struct {
	Cost int
}

// NewBcryptVerifier uses bcrypt.DefaultCost when cost is zero.
func NewBcryptVerifier(cost int) BcryptVerifier {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return BcryptVerifier{Cost: cost}
}

// Derive hashes the password.
func (v BcryptVerifier) Derive(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches the stored verifier.
func (v BcryptVerifier) Verify(password, verifier string) bool {
	return bcrypt.CompareHashAndPassword([]byte(verifier), []byte(password)) == nil
}
