package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	// DefaultSalt is used when no salt is configured.
	DefaultSalt = "default-salt"
	// Unknown is the key for callers without an identity.
	Unknown = "unknown"

	keyLen = 8
)

// Hasher derives short pseudonymous keys from platform identifiers.
// Keys are one-way and collisions are tolerated.
type Hasher struct {
	salt string
}

// NewHasher creates a Hasher. An empty salt falls back to DefaultSalt.
func NewHasher(salt string) *Hasher {
	if salt == "" {
		salt = DefaultSalt
	}
	return &Hasher{salt: salt}
}

// UserKey returns the key for a user ID. Zero means the update carried no
// user and maps to Unknown.
func (h *Hasher) UserKey(userID int64) string {
	if userID == 0 {
		return Unknown
	}
	return h.sum(strconv.FormatInt(userID, 10))
}

// DomainKey returns the key under which a domain rule is stored.
func (h *Hasher) DomainKey(domain string) string {
	if domain == "" {
		return Unknown
	}
	return h.sum(strings.ToLower(domain))
}

func (h *Hasher) sum(value string) string {
	sum := sha256.Sum256([]byte(h.salt + value))
	return hex.EncodeToString(sum[:])[:keyLen]
}
