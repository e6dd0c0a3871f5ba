package backup

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sigbak-go/sigbak/internal/cryptutil"
	"github.com/sigbak-go/sigbak/internal/wire"
)

// Field numbers from internal/frame, per SPEC_FULL.md §3. Duplicated
// here (rather than imported, since they're unexported) to build raw
// frame plaintext for round-trip tests against the encrypted stream.
const (
	testFieldHeader = 1
	testFieldEnd    = 6
)

func encodeHeaderPlaintext(iv, salt []byte) []byte {
	var inner []byte
	inner = wire.AppendTag(inner, 1, wire.LengthDelimited)
	inner = wire.AppendBytes(inner, iv)
	inner = wire.AppendTag(inner, 2, wire.LengthDelimited)
	inner = wire.AppendBytes(inner, salt)

	var buf []byte
	buf = wire.AppendTag(buf, testFieldHeader, wire.LengthDelimited)
	buf = wire.AppendBytes(buf, inner)
	return buf
}

func encodeEndPlaintext() []byte {
	var buf []byte
	buf = wire.AppendTag(buf, testFieldEnd, wire.Varint)
	buf = wire.AppendVarint(buf, 1)
	return buf
}

func writeLengthPrefixed(f *os.File, buf []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := f.Write(buf)
	return err
}

// buildBackup writes a syntactically valid backup file to a temp
// directory: a plaintext Header frame followed by each of plainFrames,
// encrypted and authenticated under keys derived from passphrase+salt.
func buildBackup(t *testing.T, passphrase string, salt, ivTail []byte, startCounter uint32, plainFrames [][]byte) string {
	t.Helper()

	iv := make([]byte, cryptutil.IVSize)
	binary.BigEndian.PutUint32(iv[:4], startCounter)
	copy(iv[4:], ivTail)

	path := filepath.Join(t.TempDir(), "backup.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()

	if err := writeLengthPrefixed(f, encodeHeaderPlaintext(iv, salt)); err != nil {
		t.Fatalf("write header: %v", err)
	}

	keys, err := cryptutil.DeriveKeys(passphrase, salt)
	if err != nil {
		t.Fatalf("derive keys: %v", err)
	}

	counter := startCounter
	for _, plain := range plainFrames {
		frameIV, err := cryptutil.CounterIV(counter, ivTail)
		if err != nil {
			t.Fatalf("counter iv: %v", err)
		}
		stream, err := cryptutil.Stream(keys.CipherKey, frameIV)
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		ciphertext := make([]byte, len(plain))
		stream.XORKeyStream(ciphertext, plain)

		mac := cryptutil.NewFrameMAC(keys.MacKey)
		mac.Write(ciphertext)
		trailer := mac.Sum(nil)[:cryptutil.MacSize]

		if err := writeLengthPrefixed(f, append(ciphertext, trailer...)); err != nil {
			t.Fatalf("write frame: %v", err)
		}
		counter++
	}

	return path
}

func TestOpenAndReadHeaderOnlyBackup(t *testing.T) {
	path := buildBackup(t, "hunter2", []byte("salt"), make([]byte, 12), 0, [][]byte{encodeEndPlaintext()})

	r, err := Open(path, "hunter2")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	bf, _, err := r.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if !bf.GetEnd() {
		t.Fatal("expected End frame")
	}

	if _, _, err := r.NextFrame(); err != io.EOF {
		t.Fatalf("got err %v, want io.EOF", err)
	}
}

func TestOpenWrongPassphraseFailsAuth(t *testing.T) {
	path := buildBackup(t, "hunter2", []byte("salt"), make([]byte, 12), 0, [][]byte{encodeEndPlaintext()})

	r, err := Open(path, "wrong-passphrase")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	_, _, err = r.NextFrame()
	if err == nil {
		t.Fatal("expected auth failure decoding first frame with wrong passphrase")
	}
	berr, ok := err.(*Error)
	if !ok {
		t.Fatalf("got error of type %T, want *Error", err)
	}
	if berr.Kind != KindAuthFailed {
		t.Fatalf("got kind %v, want KindAuthFailed", berr.Kind)
	}
}

func TestRewindReplaysSameFrames(t *testing.T) {
	path := buildBackup(t, "hunter2", []byte("salt"), make([]byte, 12), 5, [][]byte{encodeEndPlaintext()})

	r, err := Open(path, "hunter2")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, _, err := r.NextFrame(); err != nil {
		t.Fatalf("NextFrame (pass 1): %v", err)
	}
	if _, _, err := r.NextFrame(); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}

	if err := r.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	bf, _, err := r.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame (pass 2): %v", err)
	}
	if !bf.GetEnd() {
		t.Fatal("expected End frame again after rewind")
	}
}
