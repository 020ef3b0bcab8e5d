package crypto

import "testing"

func TestEncryptForPublicKeyRoundTrips(t *testing.T) {
	priv, pub, err := GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("GenerateP256KeyPair: %v", err)
	}

	want := []byte("checkpoint snapshot bytes, pretend")
	ciphertext, err := EncryptForPublicKey(pub, want)
	if err != nil {
		t.Fatalf("EncryptForPublicKey: %v", err)
	}

	got, err := DecryptWithPrivateKey(priv, ciphertext)
	if err != nil {
		t.Fatalf("DecryptWithPrivateKey: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("expected round-tripped plaintext %q, got %q", want, got)
	}
}

func TestEncryptForPublicKeyProducesDistinctCiphertexts(t *testing.T) {
	_, pub, err := GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("GenerateP256KeyPair: %v", err)
	}
	plaintext := []byte("same plaintext every time")

	a, err := EncryptForPublicKey(pub, plaintext)
	if err != nil {
		t.Fatalf("EncryptForPublicKey (a): %v", err)
	}
	b, err := EncryptForPublicKey(pub, plaintext)
	if err != nil {
		t.Fatalf("EncryptForPublicKey (b): %v", err)
	}
	if string(a) == string(b) {
		t.Fatal("expected distinct ciphertexts from fresh ephemeral keys and nonces")
	}
}

func TestDecryptWithPrivateKeyRejectsWrongKey(t *testing.T) {
	_, pubA, err := GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("GenerateP256KeyPair (a): %v", err)
	}
	privB, _, err := GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("GenerateP256KeyPair (b): %v", err)
	}

	ciphertext, err := EncryptForPublicKey(pubA, []byte("secret"))
	if err != nil {
		t.Fatalf("EncryptForPublicKey: %v", err)
	}
	if _, err := DecryptWithPrivateKey(privB, ciphertext); err == nil {
		t.Fatal("expected decryption with the wrong private key to fail")
	}
}
