package cmd

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/sigbak-go/sigbak/backup"
)

// Decrypt fulfills the `decrypt` subcommand.
var Decrypt = cli.Command{
	Name:               "decrypt",
	Usage:              "Decrypt the backup file",
	UsageText:          "Parse and extract the contents of the backup file into a sqlite3 database file.",
	CustomHelpTemplate: SubcommandHelp,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "output, o",
			Usage: "write decrypted database to `FILE`",
			Value: "backup.db",
		},
	}, coreFlags...),
	Action: func(c *cli.Context) error {
		r, err := setup(c)
		if err != nil {
			return err
		}

		fileName := c.String("output")
		log.Printf("Begin decrypt into %s", fileName)

		if err := os.Remove(fileName); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "creating fresh database")
		}

		db, err := backup.Materialize(r, fileName)
		if err != nil {
			return errors.Wrap(err, "failed to materialize database")
		}
		defer db.Close()

		log.Println("Done!")
		return nil
	},
}
