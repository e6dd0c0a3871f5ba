package backup

import (
	"database/sql"
	"strings"
)

// Schema version thresholds at which the backup's recipient/message
// table layout changed shape. A Database's UserVersion is compared
// against these to pick the matching query template, the same way the
// reference reader keys its query selection off these exact
// thresholds.
const (
	versionRecipientIDs       = 24
	versionReactions          = 37
	versionSplitProfileNames  = 43
	versionMentions           = 68
)

// Recipient is one row of the recipient/contact table, normalized
// across the pre- and post-recipient_ids schema shapes.
type Recipient struct {
	ID                 string
	Phone              sql.NullString
	Email              sql.NullString
	SystemDisplayName  sql.NullString
	SystemPhoneLabel   sql.NullString
	ProfileName        sql.NullString
	ProfileFamilyName  sql.NullString
	ProfileJoinedName  sql.NullString
	GroupID            sql.NullString
	GroupTitle         sql.NullString
}

// IsGroup reports whether this recipient row represents a group
// rather than a contact, mirroring the reference reader's GroupID-null check.
func (r *Recipient) IsGroup() bool {
	return r.GroupID.Valid
}

// recipientsQuery returns the SELECT used to enumerate every known
// recipient, chosen by schema version exactly as original_source/sbk.c's
// sbk_build_recipient_tree does.
func recipientsQuery(userVersion uint32) string {
	switch {
	case userVersion < versionRecipientIDs:
		return `SELECT ` +
			`r.recipient_ids, ` +
			`NULL, ` +
			`NULL, ` +
			`r.system_display_name, ` +
			`r.system_phone_label, ` +
			`r.signal_profile_name, ` +
			`NULL, ` +
			`NULL, ` +
			`g.group_id, ` +
			`g.title ` +
			`FROM recipient_preferences AS r ` +
			`LEFT JOIN groups AS g ON r.recipient_ids = g.group_id`
	case userVersion < versionSplitProfileNames:
		return `SELECT ` +
			`r._id, r.phone, r.email, r.system_display_name, r.system_phone_label, ` +
			`r.signal_profile_name, NULL, NULL, g.group_id, g.title ` +
			`FROM recipient AS r ` +
			`LEFT JOIN groups AS g ON r._id = g.recipient_id`
	default:
		return `SELECT ` +
			`r._id, r.phone, r.email, r.system_display_name, r.system_phone_label, ` +
			`r.signal_profile_name, r.profile_family_name, r.profile_joined_name, ` +
			`g.group_id, g.title ` +
			`FROM recipient AS r ` +
			`LEFT JOIN groups AS g ON r._id = g.recipient_id`
	}
}

// Recipients enumerates every recipient row in db, using the query
// template appropriate for userVersion.
func Recipients(db *sql.DB, userVersion uint32) ([]*Recipient, error) {
	rows, err := db.Query(recipientsQuery(userVersion))
	if err != nil {
		return nil, wrap(KindSQL, err, "query recipients")
	}
	defer rows.Close()

	var out []*Recipient
	for rows.Next() {
		r := &Recipient{}
		var id sql.NullString
		if err := rows.Scan(&id, &r.Phone, &r.Email, &r.SystemDisplayName,
			&r.SystemPhoneLabel, &r.ProfileName, &r.ProfileFamilyName,
			&r.ProfileJoinedName, &r.GroupID, &r.GroupTitle); err != nil {
			return nil, wrap(KindSQL, err, "scan recipient")
		}
		r.ID = id.String
		if userVersion < versionRecipientIDs && !r.IsGroup() {
			// The old schema has one opaque id: an email if it holds '@',
			// otherwise a phone number.
			if strings.Contains(r.ID, "@") {
				r.Email = sql.NullString{String: r.ID, Valid: true}
			} else {
				r.Phone = sql.NullString{String: r.ID, Valid: true}
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(KindSQL, err, "iterate recipients")
	}
	return out, nil
}

// Message is one row of the unified sms/mms message view.
type Message struct {
	Address      sql.NullString
	Body         sql.NullString
	DateSent     int64
	DateReceived int64
	Type         int64
	ThreadID     int64
	PartCount    int64
	MmsID        int64
	Reactions    []byte
}

// messagesQuery returns the SELECT used to read every message (or
// every message in one thread, if threadFilter is set), unioning the
// sms and mms tables the way original_source/sbk.c's
// SBK_MESSAGES_QUERY_ALL/THREAD macros do, with a reactions column
// added once the schema supports it.
func messagesQuery(userVersion uint32, threadFilter bool) string {
	selectSMS := `SELECT address, body, date_sent, date AS date_received, ` +
		`type, thread_id, 0, -1, `
	selectMMS := `SELECT address, body, date, date_received, ` +
		`msg_box, thread_id, part_count, _id, `
	if userVersion < versionReactions {
		selectSMS += `NULL FROM sms `
		selectMMS += `NULL FROM mms `
	} else {
		selectSMS += `reactions FROM sms `
		selectMMS += `reactions FROM mms `
	}

	where := ""
	if threadFilter {
		where = `WHERE thread_id = ? `
	}

	return selectSMS + where + `UNION ALL ` + selectMMS + where + `ORDER BY date_received`
}

// Messages returns every message in db, across both the sms and mms
// tables, ordered by date received.
func Messages(db *sql.DB, userVersion uint32) ([]*Message, error) {
	return queryMessages(db, messagesQuery(userVersion, false))
}

// MessagesForThread returns every message belonging to threadID.
func MessagesForThread(db *sql.DB, userVersion uint32, threadID int64) ([]*Message, error) {
	return queryMessages(db, messagesQuery(userVersion, true), threadID, threadID)
}

func queryMessages(db *sql.DB, query string, args ...interface{}) ([]*Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, wrap(KindSQL, err, "query messages")
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.Address, &m.Body, &m.DateSent, &m.DateReceived,
			&m.Type, &m.ThreadID, &m.PartCount, &m.MmsID, &m.Reactions); err != nil {
			return nil, wrap(KindSQL, err, "scan message")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(KindSQL, err, "iterate messages")
	}
	return out, nil
}

// mentionsQuery is the fixed lookup of @mention recipients for one
// mms message, only meaningful once userVersion >= versionMentions.
const mentionsQuery = `SELECT recipient_id FROM mention WHERE message_id = ? ORDER BY range_start`

// MentionsForMessage returns the recipient ids mentioned in mmsID,
// in range order. It returns an empty slice (not an error) for
// backups predating the mention table.
func MentionsForMessage(db *sql.DB, userVersion uint32, mmsID int64) ([]string, error) {
	if userVersion < versionMentions {
		return nil, nil
	}

	rows, err := db.Query(mentionsQuery, mmsID)
	if err != nil {
		return nil, wrap(KindSQL, err, "query mentions")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap(KindSQL, err, "scan mention")
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(KindSQL, err, "iterate mentions")
	}
	return out, nil
}
