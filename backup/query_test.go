package backup

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecipientsPostSplitProfileNames(t *testing.T) {
	db := openTestDB(t)
	exec(t, db, `CREATE TABLE recipient (_id TEXT, phone TEXT, email TEXT,
		system_display_name TEXT, system_phone_label TEXT, signal_profile_name TEXT,
		profile_family_name TEXT, profile_joined_name TEXT)`)
	exec(t, db, `CREATE TABLE groups (group_id TEXT, title TEXT, recipient_id TEXT)`)
	exec(t, db, `INSERT INTO recipient VALUES ('1', '+15551234567', NULL, 'Alice', 'mobile', 'Alice P', 'Smith', 'Alice Smith')`)

	recipients, err := Recipients(db, versionSplitProfileNames)
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	if len(recipients) != 1 {
		t.Fatalf("got %d recipients, want 1", len(recipients))
	}
	r := recipients[0]
	if r.ID != "1" || r.ProfileJoinedName.String != "Alice Smith" {
		t.Fatalf("got %+v", r)
	}
	if r.IsGroup() {
		t.Fatal("expected non-group recipient")
	}
}

func TestRecipientsPreRecipientIDs(t *testing.T) {
	db := openTestDB(t)
	exec(t, db, `CREATE TABLE recipient_preferences (recipient_ids TEXT, system_display_name TEXT,
		system_phone_label TEXT, signal_profile_name TEXT)`)
	exec(t, db, `CREATE TABLE groups (group_id TEXT, title TEXT)`)
	exec(t, db, `INSERT INTO recipient_preferences VALUES ('42', 'Bob', 'home', 'Bobby')`)

	recipients, err := Recipients(db, versionRecipientIDs-1)
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	if len(recipients) != 1 || recipients[0].ID != "42" {
		t.Fatalf("got %+v", recipients)
	}
}

func TestMessagesUnionsSMSAndMMS(t *testing.T) {
	db := openTestDB(t)
	exec(t, db, `CREATE TABLE sms (address TEXT, body TEXT, date_sent INTEGER, date INTEGER, type INTEGER, thread_id INTEGER)`)
	exec(t, db, `CREATE TABLE mms (address TEXT, body TEXT, date INTEGER, date_received INTEGER, msg_box INTEGER, thread_id INTEGER, part_count INTEGER, _id INTEGER)`)
	exec(t, db, `INSERT INTO sms VALUES ('111', 'hi', 100, 100, 1, 9)`)
	exec(t, db, `INSERT INTO mms VALUES ('222', 'pic', 200, 200, 1, 9, 1, 55)`)

	msgs, err := Messages(db, versionReactions-1)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].DateReceived > msgs[1].DateReceived {
		t.Fatal("expected messages ordered by date received")
	}
}

func TestMessagesForThreadFilters(t *testing.T) {
	db := openTestDB(t)
	exec(t, db, `CREATE TABLE sms (address TEXT, body TEXT, date_sent INTEGER, date INTEGER, type INTEGER, thread_id INTEGER)`)
	exec(t, db, `CREATE TABLE mms (address TEXT, body TEXT, date INTEGER, date_received INTEGER, msg_box INTEGER, thread_id INTEGER, part_count INTEGER, _id INTEGER)`)
	exec(t, db, `INSERT INTO sms VALUES ('111', 'hi', 100, 100, 1, 9)`)
	exec(t, db, `INSERT INTO sms VALUES ('111', 'other thread', 100, 100, 1, 10)`)

	msgs, err := MessagesForThread(db, versionReactions-1, 9)
	if err != nil {
		t.Fatalf("MessagesForThread: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ThreadID != 9 {
		t.Fatalf("got %+v", msgs)
	}
}

func TestMentionsBelowThresholdReturnsNil(t *testing.T) {
	db := openTestDB(t)
	mentions, err := MentionsForMessage(db, versionMentions-1, 1)
	if err != nil {
		t.Fatalf("MentionsForMessage: %v", err)
	}
	if mentions != nil {
		t.Fatalf("got %v, want nil", mentions)
	}
}

func TestMentionsAtThreshold(t *testing.T) {
	db := openTestDB(t)
	exec(t, db, `CREATE TABLE mention (recipient_id TEXT, message_id INTEGER, range_start INTEGER)`)
	exec(t, db, `INSERT INTO mention VALUES ('5', 1, 0)`)
	exec(t, db, `INSERT INTO mention VALUES ('6', 1, 10)`)

	mentions, err := MentionsForMessage(db, versionMentions, 1)
	if err != nil {
		t.Fatalf("MentionsForMessage: %v", err)
	}
	if len(mentions) != 2 || mentions[0] != "5" || mentions[1] != "6" {
		t.Fatalf("got %v", mentions)
	}
}

func exec(t *testing.T, db *sql.DB, stmt string) {
	t.Helper()
	if _, err := db.Exec(stmt); err != nil {
		t.Fatalf("exec %q: %v", stmt, err)
	}
}
