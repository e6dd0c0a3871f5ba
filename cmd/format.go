package cmd

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	_ "modernc.org/sqlite"
)

// Format fulfils the `format` subcommand.
var Format = cli.Command{
	Name:               "format",
	Usage:              "Export messages from a signal database",
	UsageText:          "Parse and transform a materialized database table into another format.",
	CustomHelpTemplate: SubcommandHelp,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "output, o",
			Usage: "Write formatted data to `FILE` (default is console)",
		},
		&cli.StringFlag{
			Name:  "format, f",
			Usage: "Output messages as `FORMAT` (csv, json). " +
				"Default matches --output file extension, or json if no output file specified.",
		},
		&cli.StringFlag{
			Name:  "table, t",
			Usage: "Choose which table to format (e.g. message, sms). " +
				"Default matches --output file basename, or 'message' if no output file specified.",
		},
		&cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "Enable verbose logging output",
		},
	},
	Action: func(c *cli.Context) error {
		if c.Bool("verbose") {
			log.SetOutput(os.Stderr)
		} else {
			log.SetOutput(io.Discard)
		}

		var (
			db  *sql.DB
			err error
			out io.Writer
		)
		if dbfile := c.Args().Get(0); dbfile == "" {
			return errors.New("must specify a Signal database file")
		} else if db, err = sql.Open("sqlite", dbfile); err != nil {
			return errors.Wrap(err, "cannot open database file")
		}

		output := c.String("output")
		table := strings.ToLower(c.String("table"))
		format := strings.ToLower(c.String("format"))

		if output == "" {
			if format == "" {
				format = "json"
			}
			if table == "" {
				table = "message"
			}
			out = os.Stdout
		} else {
			ext := filepath.Ext(output)
			base := filepath.Base(output)
			base = base[:len(base)-len(ext)]

			if format == "" && len(ext) > 0 {
				format = ext[1:]
			}
			if table == "" {
				table = base
			}

			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return errors.Wrap(err, "unable to open output file")
			}
			out = io.Writer(file)
			defer func() {
				if file.Close() != nil {
					log.Fatalf("unable to close output file: %s", err.Error())
				}
			}()
		}

		switch format {
		case "json":
			err = JSON(db, table, out)
		case "csv":
			err = CSV(db, table, out)
		default:
			return errors.Errorf("format '%s' not recognised", format)
		}
		if err != nil {
			return errors.Wrap(err, "failed to format output")
		}

		return nil
	},
}

// JSON dumps an entire table into a JSON format.
func JSON(db *sql.DB, table string, out io.Writer) error {
	headers, rows, err := SelectEntireTable(db, table)
	if err != nil {
		return errors.Wrap(err, "selecting table")
	}

	n := len(headers)
	records := make([]map[string]interface{}, 0, len(rows))

	for _, row := range rows {
		values := make(map[string]interface{}, n)
		for i, name := range headers {
			values[name] = row[i]
		}
		records = append(records, values)
	}

	jsonEncoder := json.NewEncoder(out)
	jsonEncoder.SetEscapeHTML(false)
	jsonEncoder.SetIndent("", "\t")
	if err := jsonEncoder.Encode(records); err != nil {
		return errors.Wrap(err, "json encode")
	}

	return nil
}

// CSV dumps an entire table into a comma-separated value format.
func CSV(db *sql.DB, table string, out io.Writer) error {
	headers, rowsI, err := SelectEntireTable(db, table)
	if err != nil {
		return errors.Wrap(err, "selecting table")
	}

	w := csv.NewWriter(out)
	if err := w.Write(headers); err != nil {
		return errors.Wrap(err, "unable to write CSV headers")
	}

	rows := StringifyRows(rowsI)
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrap(err, "unable to format CSV")
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return errors.Wrap(err, "writing CSV")
	}

	return nil
}
