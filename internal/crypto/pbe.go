package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
)

const (
	pbeSaltLen  = 16
	pbeNonceLen = 12
)

// deriveWrapKey derives an AES-256 key from NEXUSLITE_USERNAME/PASSWORD-style
// credentials and a per-file salt.
func deriveWrapKey(username, password string, salt []byte) []byte {
	return argon2.IDKey([]byte(username+":"+password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

// WrapFile encrypts the file at srcPath with a key derived from username
// and password, writing salt || nonce || ciphertext to destPath. This is
// the format consumed by a .wasp.enc sidecar.
func WrapFile(srcPath, destPath, username, password string) error {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("crypto: read source: %w", err)
	}

	salt := make([]byte, pbeSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("crypto: generate salt: %w", err)
	}
	nonce := make([]byte, pbeNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("crypto: generate nonce: %w", err)
	}

	gcm, err := newGCM(deriveWrapKey(username, password, salt))
	if err != nil {
		return err
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)

	return os.WriteFile(destPath, out, 0o600)
}

// UnwrapFile reverses WrapFile, writing the recovered plaintext to
// destPath. A wrong username/password or corrupted file is reported as an
// authentication failure rather than a partial decode.
func UnwrapFile(srcPath, destPath, username, password string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("crypto: read source: %w", err)
	}
	if len(data) < pbeSaltLen+pbeNonceLen {
		return errors.New("crypto: wrapped file too short")
	}

	salt := data[:pbeSaltLen]
	nonce := data[pbeSaltLen : pbeSaltLen+pbeNonceLen]
	ciphertext := data[pbeSaltLen+pbeNonceLen:]

	gcm, err := newGCM(deriveWrapKey(username, password, salt))
	if err != nil {
		return err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return errors.New("crypto: wrong credentials or corrupted file")
	}

	return os.WriteFile(destPath, plaintext, 0o600)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: init gcm: %w", err)
	}
	return gcm, nil
}

// CredentialsFromEnv reads NEXUSLITE_USERNAME and NEXUSLITE_PASSWORD, and
// reports whether both were set.
func CredentialsFromEnv() (username, password string, ok bool) {
	username = os.Getenv("NEXUSLITE_USERNAME")
	password = os.Getenv("NEXUSLITE_PASSWORD")
	return username, password, username != "" && password != ""
}
