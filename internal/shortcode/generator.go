// Package shortcode derives fixed-length short codes from target URLs.
package shortcode

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Length is the fixed length of every generated code.
	Length = 6
	// saltLength is the number of characters appended to the URL before
	// rehashing on a collision.
	saltLength = 4
)

// Generate derives a short code from the URL and an optional salt.
// The result is deterministic for a given (url, salt) pair: the hex digest of
// sha256(url + salt) truncated to Length characters.
func Generate(url, salt string) string {
	sum := sha256.Sum256([]byte(url + salt))
	return hex.EncodeToString(sum[:])[:Length]
}

// NewSalt returns a fresh random salt for collision retries.
func NewSalt() (string, error) {
	const op = "shortcode.NewSalt"

	salt, err := gonanoid.New(saltLength)
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate salt: %w", op, err)
	}

	return salt, nil
}
