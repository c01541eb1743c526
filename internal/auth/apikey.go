/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefix marks a plaintext Sonorium control-surface key.
const APIKeyPrefix = "snm_"

// APIKeyRandomBytes is the entropy of a generated key (192 bits).
const APIKeyRandomBytes = 24

// ErrAPIKeyInvalid is returned when a presented API key does not match
// the configured hash.
var ErrAPIKeyInvalid = errors.New("auth: invalid api key")

// GenerateAPIKey creates a new plaintext control-surface key and its
// bcrypt hash, for an operator to store as SONORIUM_API_KEY_HASH.
func GenerateAPIKey() (plaintext string, hash string, err error) {
	randomBytes := make([]byte, APIKeyRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	plaintext = APIKeyPrefix + hex.EncodeToString(randomBytes)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return plaintext, string(hashed), nil
}

// APIKeyAuthenticator validates presented keys against a single
// configured bcrypt hash: Sonorium's control surface has one operator
// key, not a multi-tenant key store.
type APIKeyAuthenticator struct {
	hash []byte
}

// NewAPIKeyAuthenticator builds an authenticator from a bcrypt hash.
func NewAPIKeyAuthenticator(hash string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{hash: []byte(hash)}
}

// Validate reports whether plaintext matches the configured hash.
func (a *APIKeyAuthenticator) Validate(plaintext string) error {
	if len(a.hash) == 0 {
		return ErrAPIKeyInvalid
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(plaintext)); err != nil {
		return ErrAPIKeyInvalid
	}
	return nil
}
