package apikey

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/blake2b"
)

const (
	Prefix       = "sk_live_"
	BodyLength   = 40
	DisplayChars = 12
	alphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var ErrMalformed = errors.New("malformed api key")

// Generated holds a fresh key. Plaintext is never stored.
type Generated struct {
	Plaintext string
	Hash      string
	Display   string
}

func Generate() (Generated, error) {
	body, err := nanoid.Generate(alphabet, BodyLength)
	if err != nil {
		return Generated{}, fmt.Errorf("apikey: %w", err)
	}
	raw := Prefix + body
	return Generated{Plaintext: raw, Hash: Hash(raw), Display: DisplayPrefix(raw)}, nil
}

// Hash is the hex BLAKE2b-256 digest stored in api_key.key_hash.
func Hash(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func DisplayPrefix(raw string) string {
	if len(raw) <= DisplayChars {
		return raw
	}
	return raw[:DisplayChars]
}

// Parse trims raw and checks prefix, length and alphabet.
func Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, Prefix) || len(raw) != len(Prefix)+BodyLength {
		return "", ErrMalformed
	}
	for _, c := range raw[len(Prefix):] {
		if !strings.ContainsRune(alphabet, c) {
			return "", ErrMalformed
		}
	}
	return raw, nil
}

// FromAuthorization extracts a key from an "Authorization: Bearer ..." value.
func FromAuthorization(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", ErrMalformed
	}
	return Parse(header[7:])
}
