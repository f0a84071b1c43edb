package crypto

import (
	"strings"
	"testing"
)

func TestBox_RoundTrip(t *testing.T) {
	box := New("test-secret-key")

	sealed, err := box.Encrypt("refresh-token-value")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if !strings.HasPrefix(sealed, "enc:") {
		t.Errorf("Expected enc: prefix, got %s", sealed)
	}
	if strings.Contains(sealed, "refresh-token-value") {
		t.Error("Expected ciphertext, found plaintext in stored value")
	}

	got, err := box.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != "refresh-token-value" {
		t.Errorf("Expected round-trip, got %q", got)
	}
}

func TestBox_NoncesDiffer(t *testing.T) {
	box := New("test-secret-key")
	a, _ := box.Encrypt("same")
	b, _ := box.Encrypt("same")
	if a == b {
		t.Error("Expected distinct ciphertexts for repeated plaintext")
	}
}

func TestBox_WrongKey(t *testing.T) {
	sealed, err := New("key-one").Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New("key-two").Decrypt(sealed); err == nil {
		t.Error("Expected decryption failure with wrong key")
	}
}

func TestBox_Passthrough(t *testing.T) {
	box := New("")
	if box.Sealed() {
		t.Error("Expected unsealed box without a key")
	}

	stored, err := box.Encrypt("token")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if stored != "plain:token" {
		t.Errorf("Expected plain: marker, got %s", stored)
	}
	got, err := box.Decrypt(stored)
	if err != nil || got != "token" {
		t.Errorf("Expected passthrough round-trip, got %q, %v", got, err)
	}

	if _, err := box.Decrypt("enc:abc"); err == nil {
		t.Error("Expected error decrypting sealed value without a key")
	}
}

func TestBox_LegacyUnmarkedValue(t *testing.T) {
	got, err := New("key").Decrypt("bare-legacy-token")
	if err != nil || got != "bare-legacy-token" {
		t.Errorf("Expected legacy value unchanged, got %q, %v", got, err)
	}
}

func TestBox_Tampered(t *testing.T) {
	box := New("key")
	sealed, _ := box.Encrypt("secret")
	tampered := sealed[:len(sealed)-5] + "AAAA="
	if _, err := box.Decrypt(tampered); err == nil {
		t.Error("Expected error for tampered ciphertext")
	}
}
