package token

import (
	"encoding/hex"
	"errors"

	"github.com/grafana/regexp"
	"golang.org/x/crypto/blake2b"
)

// Tokens are 128-bit BLAKE2b digests of the provider file id, hex encoded.
// The same file id always derives the same token, so stream links stay stable
// across requests and restarts without any coordination.
const TokenLength = 32

// ErrInvalidFileID is returned when a token is requested for an empty or
// structurally unusable provider file id.
var ErrInvalidFileID = errors.New("invalid provider file id")

// tokenPattern matches the exact public token format. Anything else is
// rejected before a registry lookup is ever attempted.
var tokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Derive computes the public stream token for a provider file id.
func Derive(fileID string) (string, error) {
	if fileID == "" {
		return "", ErrInvalidFileID
	}

	h, err := blake2b.New(16, nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte(fileID))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Valid reports whether s has the shape of a stream token. It says nothing
// about whether the token is actually registered.
func Valid(s string) bool {
	return len(s) == TokenLength && tokenPattern.MatchString(s)
}
