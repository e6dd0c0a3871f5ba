package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
	filetype_types "github.com/h2non/filetype/types"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/sigbak-go/sigbak/backup"
)

var filenameDB = "signal.db"
var FolderAttachment = "Attachments"
var FolderAvatar = "Avatars"
var FolderSticker = "Stickers"
var FolderSettings = "Settings"
var stickerInfoFilename = "pack_info.json"

// Extract fulfils the `extract` subcommand.
var Extract = cli.Command{
	Name:               "extract",
	Usage:              "Decrypt contents into individual files",
	UsageText:          "Decrypt the backup and extract all files inside it.",
	CustomHelpTemplate: SubcommandHelp,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "outdir, o",
			Usage: "output files to `DIRECTORY` (default current directory)",
		},
		&cli.BoolFlag{
			Name:  "attachments",
			Usage: "Skip extracting attachments",
		},
		&cli.BoolFlag{
			Name:  "avatars",
			Usage: "Skip extracting avatars",
		},
		&cli.BoolFlag{
			Name:  "stickers",
			Usage: "Skip extracting stickers",
		},
		&cli.BoolFlag{
			Name:  "settings",
			Usage: "Skip extracting settings",
		},
		&cli.BoolFlag{
			Name:  "database",
			Usage: "Skip extracting database",
		},
	}, coreFlags...),
	Action: func(c *cli.Context) error {
		r, err := setup(c)
		if err != nil {
			return err
		}

		basePath := c.String("outdir")

		if basePath != "" {
			if err := os.MkdirAll(basePath, 0755); err != nil {
				return errors.Wrap(err, "unable to create output directory")
			}
		}
		if !c.Bool("attachments") {
			if err := os.MkdirAll(path.Join(basePath, FolderAttachment), 0755); err != nil {
				return errors.Wrap(err, "unable to create attachment directory")
			}
		}
		if !c.Bool("avatars") {
			if err := os.MkdirAll(path.Join(basePath, FolderAvatar), 0755); err != nil {
				return errors.Wrap(err, "unable to create avatar directory")
			}
		}
		if !c.Bool("stickers") {
			if err := os.MkdirAll(path.Join(basePath, FolderSticker), 0755); err != nil {
				return errors.Wrap(err, "unable to create sticker directory")
			}
		}
		if !c.Bool("settings") {
			if err := os.MkdirAll(path.Join(basePath, FolderSettings), 0755); err != nil {
				return errors.Wrap(err, "unable to create settings directory")
			}
		}
		if err := ExtractFiles(r, c, basePath); err != nil {
			return errors.Wrap(err, "failed to extract attachment")
		}

		return nil
	},
}

type attachmentInfo struct {
	rowID        uint64
	attachmentID uint64
	mime         string
	size         int64
	name         string
}

type avatarInfo struct {
	recipientID string
	displayName string
	profileName string
	fetchTime   int64
}

type stickerInfo struct {
	rowID     uint64
	PackID    string `json:"pack_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	size      int64
	stickerID int64
	cover     bool
}

// ExtractFiles materializes the backup into a working database (either
// persisted alongside the extracted files, or transient if --database
// is set to skip it), then walks the part/recipient/sticker tables to
// recover each attached file's Locator and write it to disk.
func ExtractFiles(r *backup.Reader, c *cli.Context, base string) error {
	dsn := ":memory:"
	if !c.Bool("database") {
		dsn = path.Join(base, filenameDB)
		log.Printf("Begin decrypt into %s", dsn)
		if err := os.Remove(dsn); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "creating fresh database")
		}
	}

	db, err := backup.Materialize(r, dsn)
	if err != nil {
		return errors.Wrap(err, "failed to materialize database")
	}
	defer db.Close()

	if !c.Bool("attachments") {
		infos, err := loadAttachmentInfo(db.DB)
		if err != nil {
			return errors.Wrap(err, "reading part table")
		}
		for _, info := range infos {
			loc, ok := db.Locators.Attachment(info.rowID, info.attachmentID)
			if !ok {
				log.Printf("attachment `%d/%d` has no locator", info.rowID, info.attachmentID)
				continue
			}
			if info.size != 0 && info.size != int64(loc.Length) {
				log.Printf("attachment length (%d) mismatches SQL entry.size (%d)", loc.Length, info.size)
			}
			fileName := fmt.Sprintf("%v", info.attachmentID)
			if info.name != "" {
				fileName += "." + info.name
			}
			safeFileName := escapeFileName(fileName)
			pathName := path.Join(base, FolderAttachment, safeFileName)
			if err := writeAttachment(pathName, loc, r); err != nil {
				return errors.Wrap(err, "attachment")
			} else if newName, err := fixFileExtension(pathName, info.mime); err != nil {
				return errors.Wrap(err, "attachment")
			} else if err := setFileTimestamp(newName, info.rowID); err != nil {
				return errors.Wrap(err, "attachment")
			}
		}
	}

	if !c.Bool("avatars") {
		infos, err := loadAvatarInfo(db.DB)
		if err != nil {
			return errors.Wrap(err, "reading recipient table")
		}
		for _, info := range infos {
			loc, ok := db.Locators.Avatar(info.recipientID)
			if !ok {
				continue
			}
			fileName := info.recipientID
			if info.displayName != "" {
				fileName += fmt.Sprintf(" (%s)", info.displayName)
			} else if info.profileName != "" {
				fileName += fmt.Sprintf(" (%s)", info.profileName)
			}
			pathName := path.Join(base, FolderAvatar, escapeFileName(fileName))
			if err := writeAttachment(pathName, loc, r); err != nil {
				return errors.Wrap(err, "avatar")
			} else if newName, err := fixFileExtension(pathName, ""); err != nil {
				return errors.Wrap(err, "avatar")
			} else if err := setFileTimestamp(newName, uint64(info.fetchTime)); err != nil {
				return errors.Wrap(err, "avatar")
			}
		}
	}

	if !c.Bool("stickers") {
		infos, err := loadStickerInfo(db.DB)
		if err != nil {
			return errors.Wrap(err, "reading sticker table")
		}
		for _, info := range infos {
			loc, ok := db.Locators.Sticker(info.rowID)
			if !ok {
				log.Printf("sticker `%d` has no locator", info.rowID)
				continue
			}
			if info.size != 0 && info.size != int64(loc.Length) {
				log.Printf("sticker length (%d) mismatches SQL entry.size (%d)", loc.Length, info.size)
			}

			packPath := path.Join(base, FolderSticker, info.PackID)
			if err := os.MkdirAll(packPath, 0755); err != nil {
				return errors.Wrapf(err, "unable to create sticker pack directory: %s", packPath)
			}

			infoPath := path.Join(packPath, stickerInfoFilename)
			if err := writeJson(infoPath, info); err != nil {
				return errors.Wrap(err, "sticker pack info")
			}

			pathName := path.Join(packPath, fmt.Sprintf("%d", info.stickerID))
			if err := writeAttachment(pathName, loc, r); err != nil {
				return errors.Wrap(err, "sticker")
			} else if _, err := fixFileExtension(pathName, ""); err != nil {
				return errors.Wrap(err, "sticker")
			}
		}
	}

	if !c.Bool("settings") {
		prefs, err := loadPreferences(db.DB)
		if err != nil {
			return errors.Wrap(err, "reading preference table")
		}
		for fileName, kv := range prefs {
			pathName := path.Join(base, FolderSettings, fileName+".json")
			if err := writeJson(pathName, kv); err != nil {
				return errors.Wrap(err, "settings")
			}
		}
	}

	log.Println("Done!")
	return nil
}

func loadAttachmentInfo(db *sql.DB) ([]*attachmentInfo, error) {
	rows, err := db.Query(`SELECT mid, unique_id, ct, data_size, file_name FROM part`)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []*attachmentInfo
	for rows.Next() {
		var mid, uniqueID, size int64
		var ct, name sql.NullString
		if err := rows.Scan(&mid, &uniqueID, &ct, &size, &name); err != nil {
			return nil, err
		}
		out = append(out, &attachmentInfo{
			rowID:        uint64(mid),
			attachmentID: uint64(uniqueID),
			mime:         ct.String,
			size:         size,
			name:         name.String,
		})
	}
	return out, rows.Err()
}

func loadAvatarInfo(db *sql.DB) ([]*avatarInfo, error) {
	rows, err := db.Query(`SELECT _id, system_display_name, signal_profile_name, last_profile_fetch FROM recipient`)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []*avatarInfo
	for rows.Next() {
		var id int64
		var displayName, profileName sql.NullString
		var fetchTime sql.NullInt64
		if err := rows.Scan(&id, &displayName, &profileName, &fetchTime); err != nil {
			return nil, err
		}
		out = append(out, &avatarInfo{
			recipientID: fmt.Sprintf("%d", id),
			displayName: displayName.String,
			profileName: profileName.String,
			fetchTime:   fetchTime.Int64,
		})
	}
	return out, rows.Err()
}

func loadStickerInfo(db *sql.DB) ([]*stickerInfo, error) {
	rows, err := db.Query(`SELECT _id, pack_id, pack_title, pack_author, file_length, sticker_id, cover FROM sticker`)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []*stickerInfo
	for rows.Next() {
		var id, size, stickerID, cover int64
		var packID, title, author string
		if err := rows.Scan(&id, &packID, &title, &author, &size, &stickerID, &cover); err != nil {
			return nil, err
		}
		out = append(out, &stickerInfo{
			rowID:     uint64(id),
			PackID:    packID,
			Title:     title,
			Author:    author,
			size:      size,
			stickerID: stickerID,
			cover:     cover != 0,
		})
	}
	return out, rows.Err()
}

func loadPreferences(db *sql.DB) (map[string]map[string]interface{}, error) {
	prefs := make(map[string]map[string]interface{})

	rows, err := db.Query(`SELECT file, key, value FROM shared_preference`)
	if err != nil {
		if isNoSuchTable(err) {
			return prefs, nil
		}
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var file, key string
		var value sql.NullString
		if err := rows.Scan(&file, &key, &value); err != nil {
			return nil, err
		}
		m, ok := prefs[file]
		if !ok {
			m = make(map[string]interface{})
			prefs[file] = m
		}
		m[key] = value.String
	}
	return prefs, rows.Err()
}

// isNoSuchTable reports whether a query failed because a backup simply
// never populated that table (older schema versions, or a backup with
// nothing of that kind), rather than a genuine query error.
func isNoSuchTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}

func writeJson(pathName string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "\t")
	if err != nil {
		return errors.Wrap(err, "json marshal error")
	}
	return writeFile(pathName, func(file io.Writer) error {
		_, err := file.Write(data)
		return err
	})
}

func writeAttachment(pathName string, loc *backup.Locator, r *backup.Reader) error {
	return writeFile(pathName, func(file io.Writer) error {
		return r.WriteFile(loc, file)
	})
}

func writeFile(pathName string, write func(w io.Writer) error) error {
	file, err := os.OpenFile(pathName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.ModePerm)
	if err != nil {
		return errors.Wrap(err, "failed to create "+pathName)
	}
	defer file.Close()
	if err := write(file); err != nil {
		return errors.Wrap(err, "failed to write "+pathName)
	}
	if err = file.Close(); err != nil {
		return errors.Wrap(err, "failed to close "+pathName)
	}
	return nil
}

func setFileTimestamp(pathName string, milliseconds uint64) error {
	if milliseconds != 0 {
		atime := time.UnixMilli(0)
		mtime := time.UnixMilli(int64(milliseconds))

		if err := os.Chtimes(pathName, atime, mtime); err != nil {
			return errors.Wrap(err, "failed to change timestamp of attachment file")
		}
	}
	return nil
}

// escapeFileName converts illegal filename characters into url-style
// %XX substrings.
func escapeFileName(fileName string) string {
	const illegal = `<>:"/\|?*`
	s := ""
	for _, c := range fileName {
		if c < ' ' || strings.IndexRune(illegal, c) >= 0 {
			s += fmt.Sprintf("%%%02X", c)
		} else {
			s += string(c)
		}
	}
	return s
}

func fixFileExtension(pathName string, mimeType string) (string, error) {
	ext := ""
	if mimeType != "" {
		mimeExt, hasExt := GetExtension(mimeType)
		if hasExt {
			ext = mimeExt
		} else {
			log.Printf("mime type `%s` not recognised", mimeType)
		}
	}

	if kind, err := filetype.MatchFile(pathName); err != nil {
		log.Println("MatchFile:", err.Error())
	} else {
		if kind != filetype.Unknown {
			if ext != "" && (kind.MIME.Value != mimeType || kind.Extension != ext) {
				log.Printf("detected file type: %s (.%s)", kind.MIME.Value, kind.Extension)
				log.Printf("mismatches declared type: %s (.%s)", mimeType, ext)
			}
			ext = kind.Extension
		} else {
			log.Printf("unable to detect file type of %v", pathName)
			if ext != "" {
				log.Printf("using declared MIME type: %s (.%s)", mimeType, ext)
			}
		}
	}

	givenExt := path.Ext(pathName)
	if givenExt == ".jpeg" {
		givenExt = ".jpg"
	}
	if givenExt == "."+ext {
		ext = ""
	}

	newName := pathName
	if ext != "" {
		newName += "." + ext
		if err := os.Rename(pathName, newName); err != nil {
			return "", errors.Wrap(err, "change extension")
		}
	}
	return newName, nil
}

// GetExtension finds the file extension registered for mime, modeled
// after filetype.IsMIMESupported (no simple lookup API is exposed by
// github.com/h2non/filetype).
func GetExtension(mime string) (string, bool) {
	found := false
	ext := ""

	filetype.Types.Range(func(k, v interface{}) bool {
		kind := v.(filetype_types.Type)
		if kind.MIME.Value == mime {
			ext = kind.Extension
			found = true
		}
		return !found
	})

	return ext, found
}
