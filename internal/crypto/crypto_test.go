package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nexuslite/nexuslite/internal/engine"
)

func TestHashSecretFieldsReplacesStringWithHash(t *testing.T) {
	doc := engine.NewBSONMap(map[string]interface{}{"ssn": "123-45-6789", "name": "alice"})
	if err := HashSecretFields(doc, []string{"ssn"}); err != nil {
		t.Fatalf("HashSecretFields: %v", err)
	}
	v, ok := doc.Get("ssn")
	if !ok {
		t.Fatal("expected ssn field to survive hashing")
	}
	hashed, ok := v.([]byte)
	if !ok {
		t.Fatalf("expected ssn to become []byte, got %T", v)
	}
	if len(hashed) != argon2KeyLen {
		t.Fatalf("expected a %d-byte hash, got %d", argon2KeyLen, len(hashed))
	}
	name, _ := doc.Get("name")
	if name != "alice" {
		t.Fatalf("expected untouched field to survive, got %v", name)
	}
}

func TestHashSecretFieldsSkipsMissingAndNonStringFields(t *testing.T) {
	doc := engine.NewBSONMap(map[string]interface{}{"age": int64(30)})
	if err := HashSecretFields(doc, []string{"ghost", "age"}); err != nil {
		t.Fatalf("HashSecretFields: %v", err)
	}
	age, _ := doc.Get("age")
	if age != int64(30) {
		t.Fatalf("expected non-string field untouched, got %v", age)
	}
}

func TestSignAndVerifyFileRoundTrips(t *testing.T) {
	priv, pub, err := GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("GenerateP256KeyPair: %v", err)
	}

	path := filepath.Join(t.TempDir(), "data.db")
	if err := os.WriteFile(path, []byte("hello durable world"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	sig, err := SignFile(priv, path)
	if err != nil {
		t.Fatalf("SignFile: %v", err)
	}

	ok, err := VerifyFile(pub, path, sig)
	if err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify against the signed file")
	}

	if err := os.WriteFile(path, []byte("tampered content"), 0o600); err != nil {
		t.Fatalf("tamper file: %v", err)
	}
	ok, err = VerifyFile(pub, path, sig)
	if err != nil {
		t.Fatalf("VerifyFile after tamper: %v", err)
	}
	if ok {
		t.Fatal("expected signature to fail to verify against tampered content")
	}
}

func TestWrapUnwrapFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "plain.wasp")
	encPath := filepath.Join(dir, "plain.wasp.enc")
	restoredPath := filepath.Join(dir, "restored.wasp")

	want := []byte("wasp page contents, pretend")
	if err := os.WriteFile(srcPath, want, 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if err := WrapFile(srcPath, encPath, "alice", "hunter2"); err != nil {
		t.Fatalf("WrapFile: %v", err)
	}
	if err := UnwrapFile(encPath, restoredPath, "alice", "hunter2"); err != nil {
		t.Fatalf("UnwrapFile: %v", err)
	}

	got, err := os.ReadFile(restoredPath)
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("expected round-tripped contents %q, got %q", want, got)
	}
}

func TestUnwrapFileRejectsWrongPassword(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "plain.wasp")
	encPath := filepath.Join(dir, "plain.wasp.enc")
	restoredPath := filepath.Join(dir, "restored.wasp")

	if err := os.WriteFile(srcPath, []byte("secret"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := WrapFile(srcPath, encPath, "alice", "hunter2"); err != nil {
		t.Fatalf("WrapFile: %v", err)
	}
	if err := UnwrapFile(encPath, restoredPath, "alice", "wrong-password"); err == nil {
		t.Fatal("expected wrong password to fail decryption")
	}
}

func TestPQStubsAlwaysReturnNotImplemented(t *testing.T) {
	if err := KemDeriveSharedSecret(); err != ErrPQCNotImplemented {
		t.Fatalf("expected ErrPQCNotImplemented, got %v", err)
	}
	if _, err := SphincsVerify([]byte("m"), []byte("s")); err != ErrSphincsNotImplemented {
		t.Fatalf("expected ErrSphincsNotImplemented, got %v", err)
	}
	doc := engine.NewBSONMap(map[string]interface{}{"ssn": "123"})
	if err := HashSecretFieldsDilithium(doc, []string{"ssn"}); err != ErrDilithiumNotImplemented {
		t.Fatalf("expected ErrDilithiumNotImplemented, got %v", err)
	}
}
