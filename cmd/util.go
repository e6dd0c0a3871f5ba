package cmd

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/sigbak-go/sigbak/backup"
)

// AppHelp is the help template.
const AppHelp = `About:
  {{.Name}}{{if .Usage}}: {{.Usage}}{{end}}{{if .Version}}{{if not .HideVersion}}
  Version {{.Version}}{{end}}{{end}}

Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} COMMAND [OPTION...] {{.ArgsUsage}}{{end}}

  {{range .VisibleFlags}}{{.}}
  {{end}}{{if .VisibleCommands}}
Commands:
{{range .VisibleCommands}}  {{index .Names 0}}{{ "\t"}}{{.Usage}}
{{end}}{{end}}
`

// SubcommandHelp is the subcommand help template.
const SubcommandHelp = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} [OPTION...] {{.ArgsUsage}}{{end}}{{if .Description}}

{{.Description}}{{end}}{{if .VisibleFlags}}

  {{range .VisibleFlags}}{{.}}
  {{end}}{{end}}
`

var coreFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "password, p",
		Usage: "use `PASS` as password for backup file",
	},
	&cli.StringFlag{
		Name:  "pwdfile, P",
		Usage: "read password from `FILE`",
	},
	&cli.BoolFlag{
		Name:  "verbose, v",
		Usage: "enable verbose logging output",
	},
}

// setup opens the backup file named by the subcommand's first
// argument, reading the passphrase from the password/pwdfile flags or
// interactively from the terminal.
func setup(c *cli.Context) (*backup.Reader, error) {
	if c.Bool("verbose") {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(ioutil.Discard)
	}

	if c.Args().Get(0) == "" {
		return nil, errors.New("must specify a Signal backup file")
	}

	pass, err := readPassword(c)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read password")
	}

	r, err := backup.Open(c.Args().Get(0), pass)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open backup file")
	}

	return r, nil
}

func readPassword(c *cli.Context) (string, error) {
	var pass string

	if c.String("password") != "" {
		pass = c.String("password")
	} else if c.String("pwdfile") != "" {
		bs, err := ioutil.ReadFile(c.String("pwdfile"))
		if err != nil {
			return "", errors.Wrap(err, "unable to read file")
		}
		pass = string(bs)
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", errors.Wrap(err, "unable to read from stdin")
		}
		fmt.Fprint(os.Stderr, "\n")
		pass = string(raw)
	}
	return pass, nil
}
