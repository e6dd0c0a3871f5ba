package backup

import (
	"database/sql"
	"fmt"
	"io"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sigbak-go/sigbak/internal/frame"
)

// Database is the result of materializing a backup stream: an
// in-memory SQLite database holding every replayed SQL statement, the
// locator index needed to fetch attached files afterward, and the
// schema ("PRAGMA user_version") the backup declared.
type Database struct {
	DB          *sql.DB
	Locators    *locatorIndex
	UserVersion uint32
}

// Close releases the underlying SQLite connection. It does not touch
// the Reader that produced the Database.
func (d *Database) Close() error {
	return d.DB.Close()
}

// Materialize replays a backup's SQL frames into a fresh in-memory
// SQLite database and builds the locator index used to fetch attached
// files afterward (spec.md §4.5).
//
// It reads the stream twice: once to build the locator index (so that
// any later WriteFile/FileAsBytes call can seek straight to its file
// rather than decoding every frame again), and once, after Rewind, to
// replay SQL statements inside a single transaction. The transaction
// commits only if a terminal End frame was observed in the first
// pass; otherwise the stream is considered truncated and nothing is
// committed (spec.md §8 scenario 6).
//
// Grounded on the teacher's cmd.WriteDatabase and cmd.ExtractFiles,
// generalized from a one-pass Consume callback into an explicit
// two-pass replay so attached files can be fetched independently of
// database materialization order.
//
// Materialize opens its working database with the "sqlite" driver
// using dsn verbatim, so callers choose between an ephemeral
// ":memory:" database (used by `extract --database`) and a file path
// (the `decrypt` subcommand's output, and `extract`'s signal.db).
func Materialize(r *Reader, dsn string) (*Database, error) {
	idx := newLocatorIndex()
	sawEnd := false

	for {
		bf, fileCounter, err := r.NextFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := registerAndSkip(r, bf, fileCounter, idx); err != nil {
			return nil, err
		}
		if bf.GetEnd() {
			sawEnd = true
		}
	}
	if !sawEnd {
		return nil, wrap(KindTruncated, nil, "backup stream has no terminal End frame")
	}

	if err := r.Rewind(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrap(KindSQL, err, "open database")
	}
	db.SetMaxOpenConns(1)

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, wrap(KindSQL, err, "begin transaction")
	}

	var userVersion uint32
	sections := make(map[string]bool)

	for {
		bf, _, err := r.NextFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			tx.Rollback()
			db.Close()
			return nil, err
		}

		if stmt := bf.GetStatement(); stmt != nil {
			if err := execStatement(tx, stmt, sections); err != nil {
				tx.Rollback()
				db.Close()
				return nil, err
			}
		}
		if v := bf.GetVersion(); v != nil {
			userVersion = *v.Version
			if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", userVersion)); err != nil {
				tx.Rollback()
				db.Close()
				return nil, wrap(KindSQL, err, "set user_version")
			}
		}
		if err := lookupAndSkip(r, bf, idx); err != nil {
			tx.Rollback()
			db.Close()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, wrap(KindSQL, err, "commit transaction")
	}

	return &Database{DB: db, Locators: idx, UserVersion: userVersion}, nil
}

// registerAndSkip records a Locator for bf (first pass) if it
// announces an attachment, avatar, or sticker, then skips the
// corresponding ciphertext so the stream lands on the next frame.
func registerAndSkip(r *Reader, bf *frame.BackupFrame, fileCounter uint32, idx *locatorIndex) error {
	pos, err := r.Offset()
	if err != nil {
		return err
	}

	switch {
	case bf.GetAttachment() != nil:
		a := bf.GetAttachment()
		loc := &Locator{FilePosition: pos, Length: a.GetLength(), Counter: fileCounter}
		if err := idx.putAttachment(deref64(a.RowId), deref64(a.AttachmentId), loc); err != nil {
			return err
		}
		return r.WriteFile(loc, nil)

	case bf.GetAvatar() != nil:
		a := bf.GetAvatar()
		loc := &Locator{FilePosition: pos, Length: a.GetLength(), Counter: fileCounter}
		idx.putAvatar(derefStr(a.RecipientId), loc)
		return r.WriteFile(loc, nil)

	case bf.GetSticker() != nil:
		s := bf.GetSticker()
		loc := &Locator{FilePosition: pos, Length: s.GetLength(), Counter: fileCounter}
		idx.putSticker(deref64(s.RowId), loc)
		return r.WriteFile(loc, nil)
	}
	return nil
}

// lookupAndSkip re-finds the Locator built during the first pass for
// bf (if it announces an attachment, avatar, or sticker) and skips its
// ciphertext during the replay pass.
func lookupAndSkip(r *Reader, bf *frame.BackupFrame, idx *locatorIndex) error {
	var loc *Locator
	var ok bool

	switch {
	case bf.GetAttachment() != nil:
		a := bf.GetAttachment()
		loc, ok = idx.attachment(deref64(a.RowId), deref64(a.AttachmentId))
	case bf.GetAvatar() != nil:
		a := bf.GetAvatar()
		loc, ok = idx.avatar(derefStr(a.RecipientId))
	case bf.GetSticker() != nil:
		s := bf.GetSticker()
		loc, ok = idx.sticker(deref64(s.RowId))
	default:
		return nil
	}
	if !ok {
		return wrap(KindNotFound, nil, "attached file locator missing on replay pass")
	}
	return r.WriteFile(loc, nil)
}

func deref64(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// execStatement runs one replayed SQL statement against tx, skipping
// CREATE TABLE statements for SQLite's own reserved tables (spec.md
// §4.5 edge case), matching the teacher's WriteDatabase.
func execStatement(tx *sql.Tx, stmt *frame.SqlStatement, sections map[string]bool) error {
	if stmt.Statement == nil {
		return wrap(KindInvalidFrame, nil, "sql statement frame missing text")
	}
	text := *stmt.Statement

	table, isCreate, isInsert := classifyStatement(text)
	if isCreate && strings.HasPrefix(strings.ToLower(table), "sqlite_") {
		return nil
	}
	if isInsert {
		sections[table] = true
	}

	params := make([]interface{}, len(stmt.Parameters))
	for i, p := range stmt.Parameters {
		params[i] = parameterValue(p)
	}

	if _, err := tx.Exec(text, params...); err != nil {
		return wrapf(KindSQL, err, "exec %q", text)
	}
	return nil
}

// classifyStatement extracts the table name from a CREATE TABLE or
// INSERT INTO statement, matching the teacher's ad hoc parse (splitting
// on the first three spaces rather than using a SQL parser, since the
// backup format only ever emits these two canonical forms). The prefix
// match is case-insensitive (spec.md §4.5: "create table sqlite_").
func classifyStatement(stmt string) (table string, isCreate, isInsert bool) {
	lower := strings.ToLower(stmt)
	switch {
	case strings.HasPrefix(lower, "create table "):
		isCreate = true
	case strings.HasPrefix(lower, "insert into "):
		isInsert = true
	default:
		return "", false, false
	}
	parts := strings.SplitN(stmt, " ", 4)
	if len(parts) < 3 {
		return "", isCreate, isInsert
	}
	return unwrapDelim(parts[2], `""`), isCreate, isInsert
}

// unwrapDelim strips a leading/trailing delimiter pair, e.g. `"foo"` -> `foo`.
func unwrapDelim(s, delim string) string {
	if len(s) > 2 && s[0] == delim[0] && s[len(s)-1] == delim[1] {
		return s[1 : len(s)-1]
	}
	return s
}

// parameterValue converts one bound SQL parameter's oneof encoding
// into a concrete Go value database/sql can bind. Integer parameters
// are re-signed because the wire format carries them as uint64 even
// though SQLite (and the backup producer) treats them as signed.
func parameterValue(p *frame.SqlParameter) interface{} {
	switch {
	case p.StringParameter != nil:
		return *p.StringParameter
	case p.IntegerParameter != nil:
		return int64(*p.IntegerParameter)
	case p.DoubleParameter != nil:
		return *p.DoubleParameter
	case p.BlobParameter != nil:
		return p.BlobParameter
	default:
		return nil
	}
}
