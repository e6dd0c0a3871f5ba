package backup

import (
	"github.com/sigbak-go/sigbak/internal/wire"
)

// Additional field numbers from internal/frame §3, beyond the
// header/end ones declared in reader_test.go.
const (
	testFieldStatement  = 2
	testFieldAttachment = 4
	testFieldVersion    = 5
)

type testSQLParam struct {
	str *string
	i   *uint64
}

func stringParam(s string) testSQLParam { return testSQLParam{str: &s} }
func intParam(i uint64) testSQLParam    { return testSQLParam{i: &i} }

func encodeStatementPlaintext(stmt string, params []testSQLParam) []byte {
	var inner []byte
	inner = wire.AppendTag(inner, 1, wire.LengthDelimited)
	inner = wire.AppendBytes(inner, []byte(stmt))

	for _, p := range params {
		var pbuf []byte
		switch {
		case p.str != nil:
			pbuf = wire.AppendTag(pbuf, 1, wire.LengthDelimited)
			pbuf = wire.AppendBytes(pbuf, []byte(*p.str))
		case p.i != nil:
			pbuf = wire.AppendTag(pbuf, 2, wire.Varint)
			pbuf = wire.AppendVarint(pbuf, *p.i)
		}
		inner = wire.AppendTag(inner, 2, wire.LengthDelimited)
		inner = wire.AppendBytes(inner, pbuf)
	}

	var buf []byte
	buf = wire.AppendTag(buf, testFieldStatement, wire.LengthDelimited)
	buf = wire.AppendBytes(buf, inner)
	return buf
}

func encodeVersionPlaintext(version uint32) []byte {
	var inner []byte
	inner = wire.AppendTag(inner, 1, wire.Varint)
	inner = wire.AppendVarint(inner, uint64(version))

	var buf []byte
	buf = wire.AppendTag(buf, testFieldVersion, wire.LengthDelimited)
	buf = wire.AppendBytes(buf, inner)
	return buf
}

func encodeAttachmentPlaintext(rowID, attachmentID uint64, length uint32) []byte {
	var inner []byte
	inner = wire.AppendTag(inner, 1, wire.Varint)
	inner = wire.AppendVarint(inner, rowID)
	inner = wire.AppendTag(inner, 2, wire.Varint)
	inner = wire.AppendVarint(inner, attachmentID)
	inner = wire.AppendTag(inner, 3, wire.Varint)
	inner = wire.AppendVarint(inner, uint64(length))

	var buf []byte
	buf = wire.AppendTag(buf, testFieldAttachment, wire.LengthDelimited)
	buf = wire.AppendBytes(buf, inner)
	return buf
}
