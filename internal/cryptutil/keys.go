// Package cryptutil implements the backup's key derivation and the
// per-frame / per-attached-file authenticated decryption described in
// SPEC_FULL.md §4.2, grounded on the teacher's types/backup.go.
package cryptutil

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeyRounds is the number of SHA-512 stretching iterations applied
	// to the passphrase (and salt) before HKDF expansion.
	KeyRounds = 250000

	// hkdfInfo is the fixed HKDF context string used by Signal Android.
	hkdfInfo = "Backup Export"

	// KeySize is the length, in bytes, of each of CipherKey and MacKey.
	KeySize = 32
)

// Keys holds the two secrets derived once per backup: the AES-256
// cipher key and the HMAC-SHA256 MAC key.
type Keys struct {
	CipherKey []byte
	MacKey    []byte
}

// Zero overwrites both keys in place so they do not linger in memory
// after the Reader that owns them is closed (spec.md §3 "Lifecycle",
// §9 "Zeroization").
func (k *Keys) Zero() {
	for i := range k.CipherKey {
		k.CipherKey[i] = 0
	}
	for i := range k.MacKey {
		k.MacKey[i] = 0
	}
}

// DeriveKeys runs the passphrase through 250,000 rounds of SHA-512
// stretching (seeded with salt, if present) and then HKDF-SHA256 to
// produce the cipher and MAC keys.
func DeriveKeys(passphrase string, salt []byte) (*Keys, error) {
	pre := backupKey(passphrase, salt)
	okm, err := deriveSecrets(pre, []byte(hkdfInfo))
	if err != nil {
		return nil, errors.Wrap(err, "hkdf expand")
	}
	return &Keys{
		CipherKey: okm[:KeySize],
		MacKey:    okm[KeySize:],
	}, nil
}

func newSHA256() hash.Hash { return sha256.New() }

// backupKey runs the SHA-512 iterated stretch: h0 = SHA512(salt || P || P)
// (or SHA512(P || P) with no salt), then h_i = SHA512(h_{i-1} || P) for
// the remaining rounds. Only the first 32 bytes of the final hash feed
// into HKDF.
func backupKey(passphrase string, salt []byte) []byte {
	input := []byte(passphrase)

	digest := sha512.New()
	if salt != nil {
		digest.Write(salt)
	}
	digest.Write(input)
	digest.Write(input)
	hash := digest.Sum(nil)

	for i := 1; i < KeyRounds; i++ {
		digest.Reset()
		digest.Write(hash)
		digest.Write(input)
		hash = digest.Sum(nil)
	}

	return hash[:KeySize]
}

// deriveSecrets expands pre-key input into 64 bytes (cipherkey ||
// mackey) via HKDF-SHA256 with an empty salt and the fixed info string.
func deriveSecrets(input, info []byte) ([]byte, error) {
	okm := make([]byte, 64)
	r := hkdf.New(newSHA256, input, nil, info)
	if _, err := io.ReadFull(r, okm); err != nil {
		return nil, err
	}
	return okm, nil
}
