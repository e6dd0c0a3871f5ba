// Package frame defines the Signal Android backup frame schema (the
// tagged union of Header / SqlStatement / SharedPreference /
// Attachment / DatabaseVersion / End / Avatar / Sticker, plus the
// nested ReactionList/Reaction record stored as a blob column) and
// decodes frame bytes produced by internal/wire into it.
//
// Field numbers are part of the wire format; see SPEC_FULL.md §3.
package frame

import (
	"github.com/pkg/errors"

	"github.com/sigbak-go/sigbak/internal/wire"
)

// Header carries the per-backup IV and salt. Present only in the
// unencrypted first frame of the stream.
type Header struct {
	Iv   []byte
	Salt []byte
}

// SqlParameter holds exactly one of five alternatives, mirroring
// SQLite's loose column typing (spec.md §3, SqlStatement invariant).
type SqlParameter struct {
	StringParameter  *string
	IntegerParameter *uint64
	DoubleParameter  *float64
	BlobParameter    []byte
	NullParameter    *bool
}

// SqlStatement is a recorded SQL statement plus its bound parameters,
// in positional order.
type SqlStatement struct {
	Statement  *string
	Parameters []*SqlParameter
}

// SharedPreference is a single Android SharedPreferences key/value.
type SharedPreference struct {
	File  *string
	Key   *string
	Value *string
}

// Attachment announces (and, in-stream, carries) one attachment blob.
type Attachment struct {
	RowId        *uint64
	AttachmentId *uint64
	Length       *uint32
}

// DatabaseVersion records the schema ("user_version") of the backup.
type DatabaseVersion struct {
	Version *uint32
}

// Avatar announces (and carries) one recipient avatar image.
type Avatar struct {
	Name        *string
	Length      *uint32
	RecipientId *string
}

// Sticker announces (and carries) one sticker image.
type Sticker struct {
	RowId  *uint64
	Length *uint32
}

// BackupFrame is the tagged union decoded from one frame buffer.
// Exactly one of the eight fields is non-nil after a successful Decode.
type BackupFrame struct {
	Header     *Header
	Statement  *SqlStatement
	Preference *SharedPreference
	Attachment *Attachment
	Version    *DatabaseVersion
	End        *bool
	Avatar     *Avatar
	Sticker    *Sticker
}

// Reaction is one entry of a ReactionList blob column.
type Reaction struct {
	Author        *uint64
	Emoji         *string
	SentTime      *uint64
	ReceivedTime  *uint64
}

// ReactionList is the nested record stored in a message row's
// reactions BLOB column (schema version >= REACTIONS).
type ReactionList struct {
	Reactions []*Reaction
}

// Field numbers for BackupFrame, per SPEC_FULL.md §3.
const (
	fieldHeader     = 1
	fieldStatement  = 2
	fieldPreference = 3
	fieldAttachment = 4
	fieldVersion    = 5
	fieldEnd        = 6
	fieldAvatar     = 7
	fieldSticker    = 8
)

// Decode parses one frame's plaintext bytes into a BackupFrame. Any
// unknown tag, unknown wire type, duplicate singleton field, length
// overrun, or zero/multiple populated alternatives is reported as
// ErrInvalidFrame via wire.ErrInvalidFrame.
func Decode(buf []byte) (*BackupFrame, error) {
	d := wire.NewDecoder(buf)
	f := &BackupFrame{}
	set := 0

	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}

		switch fld.Num {
		case fieldHeader:
			if f.Header != nil {
				return nil, dup("header")
			}
			h, err := decodeHeader(fld)
			if err != nil {
				return nil, err
			}
			f.Header = h
			set++

		case fieldStatement:
			if f.Statement != nil {
				return nil, dup("statement")
			}
			s, err := decodeSqlStatement(fld, nil)
			if err != nil {
				return nil, err
			}
			f.Statement = s
			set++

		case fieldPreference:
			if f.Preference != nil {
				return nil, dup("preference")
			}
			p, err := decodeSharedPreference(fld)
			if err != nil {
				return nil, err
			}
			f.Preference = p
			set++

		case fieldAttachment:
			if f.Attachment != nil {
				return nil, dup("attachment")
			}
			a, err := decodeAttachment(fld)
			if err != nil {
				return nil, err
			}
			f.Attachment = a
			set++

		case fieldVersion:
			if f.Version != nil {
				return nil, dup("version")
			}
			v, err := decodeDatabaseVersion(fld)
			if err != nil {
				return nil, err
			}
			f.Version = v
			set++

		case fieldEnd:
			if f.End != nil {
				return nil, dup("end")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "end: expected varint")
			}
			end := fld.Varint != 0
			f.End = &end
			set++

		case fieldAvatar:
			if f.Avatar != nil {
				return nil, dup("avatar")
			}
			a, err := decodeAvatar(fld)
			if err != nil {
				return nil, err
			}
			f.Avatar = a
			set++

		case fieldSticker:
			if f.Sticker != nil {
				return nil, dup("sticker")
			}
			s, err := decodeSticker(fld)
			if err != nil {
				return nil, err
			}
			f.Sticker = s
			set++

		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "unknown field %d", fld.Num)
		}
	}

	if set != 1 {
		return nil, errors.Wrapf(wire.ErrInvalidFrame, "frame populates %d alternatives, want 1", set)
	}

	return f, nil
}

func dup(name string) error {
	return errors.Wrapf(wire.ErrInvalidFrame, "duplicate %s field", name)
}

func expectLengthDelimited(fld wire.Field, what string) error {
	if fld.Type != wire.LengthDelimited {
		return errors.Wrapf(wire.ErrInvalidFrame, "%s: expected length-delimited", what)
	}
	return nil
}

func decodeHeader(outer wire.Field) (*Header, error) {
	if err := expectLengthDelimited(outer, "header"); err != nil {
		return nil, err
	}
	h := &Header{}
	d := wire.NewDecoder(outer.Bytes)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch fld.Num {
		case 1:
			if h.Iv != nil {
				return nil, dup("header.iv")
			}
			if err := expectLengthDelimited(fld, "header.iv"); err != nil {
				return nil, err
			}
			h.Iv = fld.Bytes
		case 2:
			if h.Salt != nil {
				return nil, dup("header.salt")
			}
			if err := expectLengthDelimited(fld, "header.salt"); err != nil {
				return nil, err
			}
			h.Salt = fld.Bytes
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "header: unknown field %d", fld.Num)
		}
	}
	if len(h.Iv) != 16 {
		return nil, errors.Wrap(wire.ErrInvalidFrame, "header: iv must be 16 bytes")
	}
	return h, nil
}

func decodeSqlStatement(outer wire.Field, existing *SqlStatement) (*SqlStatement, error) {
	if err := expectLengthDelimited(outer, "statement"); err != nil {
		return nil, err
	}
	s := existing
	if s == nil {
		s = &SqlStatement{}
	}
	d := wire.NewDecoder(outer.Bytes)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch fld.Num {
		case 1:
			if s.Statement != nil {
				return nil, dup("statement.statement")
			}
			if err := expectLengthDelimited(fld, "statement.statement"); err != nil {
				return nil, err
			}
			str := string(fld.Bytes)
			s.Statement = &str
		case 2:
			if err := expectLengthDelimited(fld, "statement.parameters"); err != nil {
				return nil, err
			}
			p, err := decodeSqlParameter(fld.Bytes)
			if err != nil {
				return nil, err
			}
			s.Parameters = append(s.Parameters, p)
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "statement: unknown field %d", fld.Num)
		}
	}
	if s.Statement == nil {
		return nil, errors.Wrap(wire.ErrInvalidFrame, "statement: missing statement text")
	}
	return s, nil
}

func decodeSqlParameter(buf []byte) (*SqlParameter, error) {
	p := &SqlParameter{}
	set := 0
	d := wire.NewDecoder(buf)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch fld.Num {
		case 1:
			if p.StringParameter != nil {
				return nil, dup("parameter.string")
			}
			if err := expectLengthDelimited(fld, "parameter.string"); err != nil {
				return nil, err
			}
			str := string(fld.Bytes)
			p.StringParameter = &str
			set++
		case 2:
			if p.IntegerParameter != nil {
				return nil, dup("parameter.integer")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "parameter.integer: expected varint")
			}
			v := fld.Varint
			p.IntegerParameter = &v
			set++
		case 3:
			if p.DoubleParameter != nil {
				return nil, dup("parameter.double")
			}
			if fld.Type != wire.Fixed64 {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "parameter.double: expected fixed64")
			}
			v := wire.Float64FromBits(fld.Fixed64)
			p.DoubleParameter = &v
			set++
		case 4:
			if p.BlobParameter != nil {
				return nil, dup("parameter.blob")
			}
			if err := expectLengthDelimited(fld, "parameter.blob"); err != nil {
				return nil, err
			}
			p.BlobParameter = fld.Bytes
			set++
		case 5:
			if p.NullParameter != nil {
				return nil, dup("parameter.null")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "parameter.null: expected varint")
			}
			v := fld.Varint != 0
			p.NullParameter = &v
			set++
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "parameter: unknown field %d", fld.Num)
		}
	}
	if set != 1 {
		return nil, errors.Wrapf(wire.ErrInvalidFrame, "parameter populates %d alternatives, want 1", set)
	}
	return p, nil
}

func decodeSharedPreference(outer wire.Field) (*SharedPreference, error) {
	if err := expectLengthDelimited(outer, "preference"); err != nil {
		return nil, err
	}
	p := &SharedPreference{}
	d := wire.NewDecoder(outer.Bytes)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		var target **string
		switch fld.Num {
		case 1:
			target = &p.File
		case 2:
			target = &p.Key
		case 3:
			target = &p.Value
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "preference: unknown field %d", fld.Num)
		}
		if *target != nil {
			return nil, dup("preference field")
		}
		if err := expectLengthDelimited(fld, "preference field"); err != nil {
			return nil, err
		}
		str := string(fld.Bytes)
		*target = &str
	}
	return p, nil
}

func decodeAttachment(outer wire.Field) (*Attachment, error) {
	if err := expectLengthDelimited(outer, "attachment"); err != nil {
		return nil, err
	}
	a := &Attachment{}
	d := wire.NewDecoder(outer.Bytes)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch fld.Num {
		case 1:
			if a.RowId != nil {
				return nil, dup("attachment.rowid")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "attachment.rowid: expected varint")
			}
			v := fld.Varint
			a.RowId = &v
		case 2:
			if a.AttachmentId != nil {
				return nil, dup("attachment.attachmentid")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "attachment.attachmentid: expected varint")
			}
			v := fld.Varint
			a.AttachmentId = &v
		case 3:
			if a.Length != nil {
				return nil, dup("attachment.length")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "attachment.length: expected varint")
			}
			v := uint32(fld.Varint)
			a.Length = &v
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "attachment: unknown field %d", fld.Num)
		}
	}
	return a, nil
}

func decodeDatabaseVersion(outer wire.Field) (*DatabaseVersion, error) {
	if err := expectLengthDelimited(outer, "version"); err != nil {
		return nil, err
	}
	v := &DatabaseVersion{}
	d := wire.NewDecoder(outer.Bytes)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch fld.Num {
		case 1:
			if v.Version != nil {
				return nil, dup("version.version")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "version.version: expected varint")
			}
			n := uint32(fld.Varint)
			v.Version = &n
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "version: unknown field %d", fld.Num)
		}
	}
	if v.Version == nil {
		return nil, errors.Wrap(wire.ErrInvalidFrame, "version: missing version field")
	}
	return v, nil
}

func decodeAvatar(outer wire.Field) (*Avatar, error) {
	if err := expectLengthDelimited(outer, "avatar"); err != nil {
		return nil, err
	}
	a := &Avatar{}
	d := wire.NewDecoder(outer.Bytes)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch fld.Num {
		case 1:
			if a.Name != nil {
				return nil, dup("avatar.name")
			}
			if err := expectLengthDelimited(fld, "avatar.name"); err != nil {
				return nil, err
			}
			s := string(fld.Bytes)
			a.Name = &s
		case 2:
			if a.Length != nil {
				return nil, dup("avatar.length")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "avatar.length: expected varint")
			}
			v := uint32(fld.Varint)
			a.Length = &v
		case 3:
			if a.RecipientId != nil {
				return nil, dup("avatar.recipientid")
			}
			if err := expectLengthDelimited(fld, "avatar.recipientid"); err != nil {
				return nil, err
			}
			s := string(fld.Bytes)
			a.RecipientId = &s
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "avatar: unknown field %d", fld.Num)
		}
	}
	return a, nil
}

func decodeSticker(outer wire.Field) (*Sticker, error) {
	if err := expectLengthDelimited(outer, "sticker"); err != nil {
		return nil, err
	}
	s := &Sticker{}
	d := wire.NewDecoder(outer.Bytes)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch fld.Num {
		case 1:
			if s.RowId != nil {
				return nil, dup("sticker.rowid")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "sticker.rowid: expected varint")
			}
			v := fld.Varint
			s.RowId = &v
		case 2:
			if s.Length != nil {
				return nil, dup("sticker.length")
			}
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "sticker.length: expected varint")
			}
			v := uint32(fld.Varint)
			s.Length = &v
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "sticker: unknown field %d", fld.Num)
		}
	}
	return s, nil
}

// DecodeReactionList parses a message row's reactions BLOB column.
func DecodeReactionList(buf []byte) (*ReactionList, error) {
	rl := &ReactionList{}
	d := wire.NewDecoder(buf)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch fld.Num {
		case 1:
			if err := expectLengthDelimited(fld, "reactionlist.reaction"); err != nil {
				return nil, err
			}
			r, err := decodeReaction(fld.Bytes)
			if err != nil {
				return nil, err
			}
			rl.Reactions = append(rl.Reactions, r)
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "reactionlist: unknown field %d", fld.Num)
		}
	}
	return rl, nil
}

func decodeReaction(buf []byte) (*Reaction, error) {
	r := &Reaction{}
	d := wire.NewDecoder(buf)
	for !d.Done() {
		fld, err := d.Next()
		if err != nil {
			return nil, err
		}
		switch fld.Num {
		case 1:
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "reaction.author: expected varint")
			}
			v := fld.Varint
			r.Author = &v
		case 2:
			if err := expectLengthDelimited(fld, "reaction.emoji"); err != nil {
				return nil, err
			}
			s := string(fld.Bytes)
			r.Emoji = &s
		case 3:
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "reaction.senttime: expected varint")
			}
			v := fld.Varint
			r.SentTime = &v
		case 4:
			if fld.Type != wire.Varint {
				return nil, errors.Wrap(wire.ErrInvalidFrame, "reaction.receivedtime: expected varint")
			}
			v := fld.Varint
			r.ReceivedTime = &v
		default:
			return nil, errors.Wrapf(wire.ErrInvalidFrame, "reaction: unknown field %d", fld.Num)
		}
	}
	return r, nil
}

// GetHeader returns f.Header, or nil if this alternative isn't set.
func (f *BackupFrame) GetHeader() *Header { if f == nil { return nil }; return f.Header }

// GetStatement returns f.Statement, or nil if this alternative isn't set.
func (f *BackupFrame) GetStatement() *SqlStatement { if f == nil { return nil }; return f.Statement }

// GetAttachment returns f.Attachment, or nil if this alternative isn't set.
func (f *BackupFrame) GetAttachment() *Attachment { if f == nil { return nil }; return f.Attachment }

// GetAvatar returns f.Avatar, or nil if this alternative isn't set.
func (f *BackupFrame) GetAvatar() *Avatar { if f == nil { return nil }; return f.Avatar }

// GetSticker returns f.Sticker, or nil if this alternative isn't set.
func (f *BackupFrame) GetSticker() *Sticker { if f == nil { return nil }; return f.Sticker }

// GetVersion returns f.Version, or nil if this alternative isn't set.
func (f *BackupFrame) GetVersion() *DatabaseVersion { if f == nil { return nil }; return f.Version }

// GetPreference returns f.Preference, or nil if this alternative isn't set.
func (f *BackupFrame) GetPreference() *SharedPreference { if f == nil { return nil }; return f.Preference }

// GetEnd reports whether the end flag is set (defaults to false if absent).
func (f *BackupFrame) GetEnd() bool {
	if f == nil || f.End == nil {
		return false
	}
	return *f.End
}

// GetLength returns a.Length, or 0 if absent.
func (a *Attachment) GetLength() uint32 {
	if a == nil || a.Length == nil {
		return 0
	}
	return *a.Length
}

// GetLength returns a.Length, or 0 if absent.
func (a *Avatar) GetLength() uint32 {
	if a == nil || a.Length == nil {
		return 0
	}
	return *a.Length
}

// GetLength returns s.Length, or 0 if absent.
func (s *Sticker) GetLength() uint32 {
	if s == nil || s.Length == nil {
		return 0
	}
	return *s.Length
}
