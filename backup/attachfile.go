package backup

import (
	"bytes"
	"io"

	"github.com/sigbak-go/sigbak/internal/cryptutil"
)

// WriteFile decrypts the attached file at loc and copies its
// plaintext to w, verifying the trailing MAC. It seeks the reader
// to loc.FilePosition first, so it may be called in any order once
// materialization has populated the locator index (spec.md §4.4).
//
// If w is nil the file's bytes are discarded but still authenticated,
// matching the teacher's DecryptAttachment(length, nil) skip mode.
func (r *Reader) WriteFile(loc *Locator, w io.Writer) error {
	if _, err := r.file.Seek(loc.FilePosition, io.SeekStart); err != nil {
		return wrap(KindIO, err, "seek to attached file")
	}

	iv, err := cryptutil.CounterIV(loc.Counter, r.ivTail)
	if err != nil {
		return wrap(KindCrypto, err, "build file iv")
	}

	stream, err := cryptutil.Stream(r.keys.CipherKey, iv)
	if err != nil {
		return wrap(KindCrypto, err, "build file stream")
	}
	mac := cryptutil.NewFileMAC(r.keys.MacKey, iv)

	remaining := loc.Length
	buf := make([]byte, attachBufferSize)
	out := make([]byte, attachBufferSize)
	for remaining > 0 {
		chunk := buf
		outChunk := out
		if remaining < attachBufferSize {
			chunk = buf[:remaining]
			outChunk = out[:remaining]
		}
		n, err := io.ReadFull(r.file, chunk)
		if err != nil {
			return wrap(KindTruncated, err, "read attached file data")
		}
		mac.Write(chunk)
		if w != nil {
			stream.XORKeyStream(outChunk, chunk)
			if _, err := w.Write(outChunk); err != nil {
				return wrap(KindIO, err, "write attached file data")
			}
		}
		remaining -= uint32(n)
	}

	trailer := make([]byte, cryptutil.MacSize)
	if _, err := io.ReadFull(r.file, trailer); err != nil {
		return wrap(KindTruncated, err, "read attached file mac")
	}
	if !cryptutil.CheckMAC(mac, trailer) {
		return wrap(KindAuthFailed, nil, "attached file mac mismatch")
	}
	return nil
}

// FileAsBytes is a convenience wrapper around WriteFile that returns
// the decrypted plaintext directly, for callers building in-memory
// outputs (recipient avatars embedded into JSON/XML exports, etc.).
func (r *Reader) FileAsBytes(loc *Locator) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteFile(loc, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
