// Package wire decodes the tag-length-value subset used to encode a
// single backup frame: varint tags, varint/fixed64 numeric fields, and
// length-delimited bytes/strings. The format is fixed and closed: an
// unrecognised wire type or an oversize/truncated varint is an error,
// never silently skipped.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// WireType identifies how a field's value is encoded.
type WireType uint8

const (
	Varint WireType = 0
	Fixed64 WireType = 1
	LengthDelimited WireType = 2
)

// ErrInvalidFrame is the sentinel cause for any malformed encoding:
// bad varint, unknown wire type, length overrun, or truncated tag.
var ErrInvalidFrame = errors.New("invalid frame encoding")

// maxVarintBytes bounds a varint to 10 groups of 7 bits, enough to
// hold a full 64-bit value: the final group carries only the top bit.
const maxVarintBytes = 10

// Field is one decoded field: its number, its wire type, and its value,
// held in Varint, Fixed64 or Bytes depending on Type.
type Field struct {
	Num  uint32
	Type WireType
	// Varint holds the decoded value when Type == Varint.
	Varint uint64
	// Fixed64 holds the 8 bytes read as a little-endian uint64 when
	// Type == Fixed64.
	Fixed64 uint64
	// Bytes holds the payload when Type == LengthDelimited.
	Bytes []byte
}

// Decoder walks the fields of a single frame buffer in order.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential field decoding.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Done reports whether every byte of the buffer has been consumed.
func (d *Decoder) Done() bool {
	return d.pos >= len(d.buf)
}

// Next decodes the next tag and its value. It returns io.EOF-like
// ErrInvalidFrame-wrapped errors on truncation; callers should stop
// iterating once Done() is true rather than calling Next() again.
func (d *Decoder) Next() (Field, error) {
	tag, n, err := d.varint()
	if err != nil {
		return Field{}, errors.Wrap(err, "decode tag")
	}
	_ = n

	num := uint32(tag >> 3)
	wt := WireType(tag & 0x7)
	if num == 0 {
		return Field{}, errors.Wrap(ErrInvalidFrame, "field number zero")
	}

	f := Field{Num: num, Type: wt}

	switch wt {
	case Varint:
		v, _, err := d.varint()
		if err != nil {
			return Field{}, errors.Wrap(err, "decode varint field")
		}
		f.Varint = v

	case Fixed64:
		if len(d.buf)-d.pos < 8 {
			return Field{}, errors.Wrap(ErrInvalidFrame, "truncated fixed64")
		}
		f.Fixed64 = binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8])
		d.pos += 8

	case LengthDelimited:
		ln, _, err := d.varint()
		if err != nil {
			return Field{}, errors.Wrap(err, "decode length")
		}
		if ln > uint64(len(d.buf)-d.pos) {
			return Field{}, errors.Wrap(ErrInvalidFrame, "length-delimited field overruns buffer")
		}
		f.Bytes = d.buf[d.pos : d.pos+int(ln)]
		d.pos += int(ln)

	default:
		return Field{}, errors.Wrapf(ErrInvalidFrame, "unknown wire type %d", wt)
	}

	return f, nil
}

// varint decodes a base-128 varint starting at d.pos, advancing pos
// past it. It returns the decoded value and the number of bytes read.
func (d *Decoder) varint() (uint64, int, error) {
	var (
		result uint64
		shift  uint
	)
	for i := 0; i < maxVarintBytes; i++ {
		if d.pos >= len(d.buf) {
			return 0, 0, errors.Wrap(ErrInvalidFrame, "truncated varint")
		}
		b := d.buf[d.pos]
		d.pos++

		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errors.Wrap(ErrInvalidFrame, "varint too long")
}

// AppendTag encodes a field tag (used only by tests to build canonical
// frames for round-trip checks; the production decoder never encodes).
func AppendTag(buf []byte, num uint32, wt WireType) []byte {
	return AppendVarint(buf, uint64(num)<<3|uint64(wt))
}

// AppendVarint encodes v as a base-128 varint and appends it to buf.
func AppendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// AppendFixed64 appends the little-endian 8-byte encoding of v.
func AppendFixed64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// AppendBytes appends a length-delimited field's length prefix and payload.
func AppendBytes(buf []byte, v []byte) []byte {
	buf = AppendVarint(buf, uint64(len(v)))
	return append(buf, v...)
}

// Float64FromBits reinterprets a fixed64 field's bits as an IEEE-754 double.
func Float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}

// Float64Bits reinterprets an IEEE-754 double as fixed64 bits.
func Float64Bits(f float64) uint64 {
	return math.Float64bits(f)
}
