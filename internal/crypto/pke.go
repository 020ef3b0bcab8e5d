package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

const ecdhP256PublicKeyLen = 65 // uncompressed point: 0x04 || X(32) || Y(32)

// EncryptForPublicKey encrypts plaintext so only the holder of the P-256
// private key matching pubPEM can recover it. An ephemeral P-256 key is
// generated per call, ECDH against pubPEM derives a shared secret, and
// SHA-256 of that secret becomes the AES-256-GCM key. Wire format is
// ephemeralPublicKey(65) || nonce(12) || ciphertext. This is the payload
// behind checkpoint_encrypted: opaque to its caller, recoverable only via
// DecryptWithPrivateKey.
func EncryptForPublicKey(pubPEM string, plaintext []byte) ([]byte, error) {
	recipientECDSA, err := parseP256PublicKey(pubPEM)
	if err != nil {
		return nil, err
	}
	recipient, err := recipientECDSA.ECDH()
	if err != nil {
		return nil, fmt.Errorf("crypto: recipient key unsuitable for ECDH: %w", err)
	}

	ephPriv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate ephemeral key: %w", err)
	}
	shared, err := ephPriv.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("crypto: ecdh: %w", err)
	}
	key := sha256.Sum256(shared)

	gcm, err := newGCM(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, pbeNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	ephPub := ephPriv.PublicKey().Bytes()
	out := make([]byte, 0, len(ephPub)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, ephPub...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// DecryptWithPrivateKey reverses EncryptForPublicKey using the
// recipient's P-256 private key. A wrong key or corrupted payload is
// reported as a decryption failure rather than a partial decode.
func DecryptWithPrivateKey(privPEM string, data []byte) ([]byte, error) {
	recipientECDSA, err := parseP256PrivateKey(privPEM)
	if err != nil {
		return nil, err
	}
	recipient, err := recipientECDSA.ECDH()
	if err != nil {
		return nil, fmt.Errorf("crypto: private key unsuitable for ECDH: %w", err)
	}

	if len(data) < ecdhP256PublicKeyLen+pbeNonceLen {
		return nil, errors.New("crypto: encrypted data too short")
	}
	ephPub, err := ecdh.P256().NewPublicKey(data[:ecdhP256PublicKeyLen])
	if err != nil {
		return nil, errors.New("crypto: invalid ephemeral public key")
	}
	nonce := data[ecdhP256PublicKeyLen : ecdhP256PublicKeyLen+pbeNonceLen]
	ciphertext := data[ecdhP256PublicKeyLen+pbeNonceLen:]

	shared, err := recipient.ECDH(ephPub)
	if err != nil {
		return nil, fmt.Errorf("crypto: ecdh: %w", err)
	}
	key := sha256.Sum256(shared)

	gcm, err := newGCM(key[:])
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("crypto: decryption failed")
	}
	return plaintext, nil
}
