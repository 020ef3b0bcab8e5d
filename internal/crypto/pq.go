package crypto

import (
	"fmt"

	"github.com/nexuslite/nexuslite/internal/engine"
)

// FeatureNotImplementedError reports a post-quantum primitive that has no
// real implementation yet, naming the feature the caller tried to use.
type FeatureNotImplementedError struct {
	Feature string
}

func (e *FeatureNotImplementedError) Error() string {
	return fmt.Sprintf("crypto: feature not implemented: %s", e.Feature)
}

// ErrPQCNotImplemented is the Kyber stub's error, kept for callers that
// only care whether PQC file encryption is available.
var ErrPQCNotImplemented = &FeatureNotImplementedError{Feature: "kyber"}

// ErrDilithiumNotImplemented is HashSecretFieldsDilithium's error.
var ErrDilithiumNotImplemented = &FeatureNotImplementedError{Feature: "dilithium"}

// ErrSphincsNotImplemented is SphincsVerify's error.
var ErrSphincsNotImplemented = &FeatureNotImplementedError{Feature: "sphincs"}

// KemDeriveSharedSecret is a placeholder for ML-KEM (Kyber) key exchange
// used in file-encryption flows. It errors unconditionally, regardless
// of any feature flag state, matching the original's stub.
func KemDeriveSharedSecret() error {
	return ErrPQCNotImplemented
}

// HashSecretFieldsDilithium is a placeholder for ML-DSA (Dilithium) hashing
// of secret fields. It errors unconditionally, regardless of any feature
// flag state, matching the original's stub.
func HashSecretFieldsDilithium(doc *engine.BSONMap, fields []string) error {
	return ErrDilithiumNotImplemented
}

// SphincsVerify is a placeholder for SPHINCS+ signature verification. It
// errors unconditionally, regardless of any feature flag state, matching
// the original's stub.
func SphincsVerify(msg, sig []byte) (bool, error) {
	return false, ErrSphincsNotImplemented
}
