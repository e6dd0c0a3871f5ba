package cryptutil

import (
	"bytes"
	"testing"
)

func TestDeriveKeysIsDeterministic(t *testing.T) {
	salt := []byte("fixed-salt")
	k1, err := DeriveKeys("hunter2", salt)
	if err != nil {
		t.Fatalf("DeriveKeys: %v", err)
	}
	k2, err := DeriveKeys("hunter2", salt)
	if err != nil {
		t.Fatalf("DeriveKeys: %v", err)
	}
	if !bytes.Equal(k1.CipherKey, k2.CipherKey) || !bytes.Equal(k1.MacKey, k2.MacKey) {
		t.Fatal("expected identical keys for identical passphrase+salt")
	}
	if len(k1.CipherKey) != KeySize || len(k1.MacKey) != KeySize {
		t.Fatalf("got cipher key len %d, mac key len %d, want both %d", len(k1.CipherKey), len(k1.MacKey), KeySize)
	}
}

func TestDeriveKeysDiffersBySalt(t *testing.T) {
	k1, err := DeriveKeys("hunter2", []byte("salt-a"))
	if err != nil {
		t.Fatalf("DeriveKeys: %v", err)
	}
	k2, err := DeriveKeys("hunter2", []byte("salt-b"))
	if err != nil {
		t.Fatalf("DeriveKeys: %v", err)
	}
	if bytes.Equal(k1.CipherKey, k2.CipherKey) {
		t.Fatal("expected different cipher keys for different salts")
	}
}

func TestDeriveKeysDiffersByPassphrase(t *testing.T) {
	salt := []byte("fixed-salt")
	k1, err := DeriveKeys("correct-horse", salt)
	if err != nil {
		t.Fatalf("DeriveKeys: %v", err)
	}
	k2, err := DeriveKeys("wrong-passphrase", salt)
	if err != nil {
		t.Fatalf("DeriveKeys: %v", err)
	}
	if bytes.Equal(k1.CipherKey, k2.CipherKey) && bytes.Equal(k1.MacKey, k2.MacKey) {
		t.Fatal("expected different keys for different passphrases")
	}
}

func TestKeysZero(t *testing.T) {
	k, err := DeriveKeys("hunter2", []byte("salt"))
	if err != nil {
		t.Fatalf("DeriveKeys: %v", err)
	}
	k.Zero()
	for _, b := range k.CipherKey {
		if b != 0 {
			t.Fatal("expected cipher key to be zeroed")
		}
	}
	for _, b := range k.MacKey {
		if b != 0 {
			t.Fatal("expected mac key to be zeroed")
		}
	}
}
