// Package crypto provides Argon2id field hashing, ECDSA-P256 file signing,
// environment-unlocked password-based file wrapping, and post-quantum
// placeholder stubs for nexuslite.
package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/nexuslite/nexuslite/internal/engine"
)

const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// HashSecretFields replaces the named top-level string fields of doc with
// their Argon2id hash, discarding the salt the way a one-way redaction pass
// is expected to. Fields that are missing or not strings are left untouched.
func HashSecretFields(doc *engine.BSONMap, fields []string) error {
	for _, field := range fields {
		v, ok := doc.Get(field)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		salt := make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("crypto: generate salt: %w", err)
		}
		hash := argon2.IDKey([]byte(s), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
		doc.Set(field, hash)
	}
	return nil
}
