package wire

import (
	"testing"
)

func TestDecodeVarint(t *testing.T) {
	var buf []byte
	buf = AppendTag(buf, 3, Varint)
	buf = AppendVarint(buf, 300)

	d := NewDecoder(buf)
	f, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Num != 3 || f.Type != Varint {
		t.Fatalf("got num=%d type=%d, want num=3 type=Varint", f.Num, f.Type)
	}
	if f.Varint != 300 {
		t.Fatalf("got varint %d, want 300", f.Varint)
	}
	if !d.Done() {
		t.Fatal("expected decoder to be done")
	}
}

func TestDecodeLengthDelimited(t *testing.T) {
	var buf []byte
	buf = AppendTag(buf, 5, LengthDelimited)
	buf = AppendBytes(buf, []byte("hello"))

	d := NewDecoder(buf)
	f, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(f.Bytes) != "hello" {
		t.Fatalf("got bytes %q, want %q", f.Bytes, "hello")
	}
}

func TestDecodeFixed64(t *testing.T) {
	want := Float64Bits(3.5)

	var buf []byte
	buf = AppendTag(buf, 1, Fixed64)
	buf = AppendFixed64(buf, want)

	d := NewDecoder(buf)
	f, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if Float64FromBits(f.Fixed64) != 3.5 {
		t.Fatalf("got %v, want 3.5", Float64FromBits(f.Fixed64))
	}
}

func TestDecodeMultipleFields(t *testing.T) {
	var buf []byte
	buf = AppendTag(buf, 1, Varint)
	buf = AppendVarint(buf, 1)
	buf = AppendTag(buf, 2, LengthDelimited)
	buf = AppendBytes(buf, []byte("x"))

	d := NewDecoder(buf)
	var nums []uint32
	for !d.Done() {
		f, err := d.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		nums = append(nums, f.Num)
	}
	if len(nums) != 2 || nums[0] != 1 || nums[1] != 2 {
		t.Fatalf("got %v, want [1 2]", nums)
	}
}

func TestTruncatedVarintIsInvalid(t *testing.T) {
	buf := []byte{0x80}
	d := NewDecoder(buf)
	if _, err := d.Next(); err == nil {
		t.Fatal("expected error decoding truncated varint")
	}
}

func TestUnknownWireTypeIsInvalid(t *testing.T) {
	var buf []byte
	buf = AppendVarint(buf, uint64(1)<<3|0x6) // wire type 6 does not exist
	d := NewDecoder(buf)
	if _, err := d.Next(); err == nil {
		t.Fatal("expected error decoding unknown wire type")
	}
}

func TestLengthOverrunIsInvalid(t *testing.T) {
	var buf []byte
	buf = AppendTag(buf, 1, LengthDelimited)
	buf = AppendVarint(buf, 100) // declares 100 bytes, but none follow
	d := NewDecoder(buf)
	if _, err := d.Next(); err == nil {
		t.Fatal("expected error decoding length overrun")
	}
}

func TestFieldNumberZeroIsInvalid(t *testing.T) {
	var buf []byte
	buf = AppendVarint(buf, uint64(0)<<3|uint64(Varint))
	d := NewDecoder(buf)
	if _, err := d.Next(); err == nil {
		t.Fatal("expected error decoding field number zero")
	}
}
