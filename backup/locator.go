package backup

// locatorKey identifies one attached blob by the (rowid, attachmentid)
// pair recorded on its SQL row, matching the key Signal Android itself
// uses to join a message/attachment row to its on-disk blob.
type locatorKey struct {
	RowID        uint64
	AttachmentID uint64
}

// Locator records where one attached file's ciphertext begins in the
// backup stream and the AES-CTR counter value needed to decrypt it,
// so the file can be fetched on demand after the first pass without
// re-reading every frame that precedes it (spec.md §4.4).
type Locator struct {
	FilePosition int64
	Length       uint32
	Counter      uint32
}

// locatorIndex maps attachment/avatar/sticker identity to its Locator.
// Avatars and stickers, which carry no (rowid, attachmentid) pair, are
// keyed by a synthetic identity built from their own announce fields.
type locatorIndex struct {
	byKey map[locatorKey]*Locator
	// avatars keyed by recipient id, stickers by rowid: both backups
	// carry at most one current avatar/sticker per identity, so a
	// plain string/uint64 map is sufficient.
	avatarsByRecipient map[string]*Locator
	stickersByRowID    map[uint64]*Locator
}

func newLocatorIndex() *locatorIndex {
	return &locatorIndex{
		byKey:              make(map[locatorKey]*Locator),
		avatarsByRecipient: make(map[string]*Locator),
		stickersByRowID:    make(map[uint64]*Locator),
	}
}

// putAttachment registers loc under (rowID, attachmentID). Keys are
// unique; a second Attachment frame announcing the same pair is a
// file-format error (spec.md §3, §4.4), not a last-write-wins update.
func (idx *locatorIndex) putAttachment(rowID, attachmentID uint64, loc *Locator) error {
	key := locatorKey{RowID: rowID, AttachmentID: attachmentID}
	if _, exists := idx.byKey[key]; exists {
		return wrapf(KindInvalidFrame, nil, "duplicate attachment locator for rowid=%d attachmentid=%d", rowID, attachmentID)
	}
	idx.byKey[key] = loc
	return nil
}

func (idx *locatorIndex) attachment(rowID, attachmentID uint64) (*Locator, bool) {
	loc, ok := idx.byKey[locatorKey{RowID: rowID, AttachmentID: attachmentID}]
	return loc, ok
}

func (idx *locatorIndex) putAvatar(recipientID string, loc *Locator) {
	idx.avatarsByRecipient[recipientID] = loc
}

func (idx *locatorIndex) avatar(recipientID string) (*Locator, bool) {
	loc, ok := idx.avatarsByRecipient[recipientID]
	return loc, ok
}

func (idx *locatorIndex) putSticker(rowID uint64, loc *Locator) {
	idx.stickersByRowID[rowID] = loc
}

func (idx *locatorIndex) sticker(rowID uint64) (*Locator, bool) {
	loc, ok := idx.stickersByRowID[rowID]
	return loc, ok
}

// Attachment looks up the Locator for the attachment identified by
// rowID/attachmentID, for use by callers outside this package once a
// Database has been materialized.
func (idx *locatorIndex) Attachment(rowID, attachmentID uint64) (*Locator, bool) {
	return idx.attachment(rowID, attachmentID)
}

// Avatar looks up the Locator for recipientID's avatar.
func (idx *locatorIndex) Avatar(recipientID string) (*Locator, bool) {
	return idx.avatar(recipientID)
}

// Sticker looks up the Locator for the sticker identified by rowID.
func (idx *locatorIndex) Sticker(rowID uint64) (*Locator, bool) {
	return idx.sticker(rowID)
}
