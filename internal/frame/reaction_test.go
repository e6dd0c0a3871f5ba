package frame

import (
	"testing"

	"github.com/sigbak-go/sigbak/internal/wire"
)

func buildReaction(author uint64, emoji string, sentTime, receivedTime uint64) []byte {
	var buf []byte
	buf = wire.AppendTag(buf, 1, wire.Varint)
	buf = wire.AppendVarint(buf, author)
	buf = wire.AppendTag(buf, 2, wire.LengthDelimited)
	buf = wire.AppendBytes(buf, []byte(emoji))
	buf = wire.AppendTag(buf, 3, wire.Varint)
	buf = wire.AppendVarint(buf, sentTime)
	buf = wire.AppendTag(buf, 4, wire.Varint)
	buf = wire.AppendVarint(buf, receivedTime)
	return buf
}

func TestDecodeReactionList(t *testing.T) {
	r1 := buildReaction(5, "\U0001F44D", 100, 200)
	r2 := buildReaction(6, "❤", 300, 400)

	var buf []byte
	buf = wire.AppendTag(buf, 1, wire.LengthDelimited)
	buf = wire.AppendBytes(buf, r1)
	buf = wire.AppendTag(buf, 1, wire.LengthDelimited)
	buf = wire.AppendBytes(buf, r2)

	rl, err := DecodeReactionList(buf)
	if err != nil {
		t.Fatalf("DecodeReactionList: %v", err)
	}
	if len(rl.Reactions) != 2 {
		t.Fatalf("got %d reactions, want 2", len(rl.Reactions))
	}
	if *rl.Reactions[0].Author != 5 || *rl.Reactions[0].Emoji != "\U0001F44D" {
		t.Fatalf("got %+v", rl.Reactions[0])
	}
	if *rl.Reactions[1].SentTime != 300 || *rl.Reactions[1].ReceivedTime != 400 {
		t.Fatalf("got %+v", rl.Reactions[1])
	}
}

func TestDecodeReactionListRejectsUnknownField(t *testing.T) {
	var buf []byte
	buf = wire.AppendTag(buf, 2, wire.Varint)
	buf = wire.AppendVarint(buf, 1)

	if _, err := DecodeReactionList(buf); err == nil {
		t.Fatal("expected error decoding reaction list with unknown field")
	}
}

func TestDecodeReactionRejectsWrongWireType(t *testing.T) {
	var inner []byte
	inner = wire.AppendTag(inner, 1, wire.LengthDelimited)
	inner = wire.AppendBytes(inner, []byte("not a varint"))

	var buf []byte
	buf = wire.AppendTag(buf, 1, wire.LengthDelimited)
	buf = wire.AppendBytes(buf, inner)

	if _, err := DecodeReactionList(buf); err == nil {
		t.Fatal("expected error decoding reaction.author with wrong wire type")
	}
}
