package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/multierr"

	"github.com/VolantMQ/alarmping/persistence"
)

func audit(_ *cli.Context) (err error) {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	p, a, err := loadPersistence(config.Audit)
	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, p.Shutdown())
	}()

	entries, err := a.List(auditLimit)
	if err != nil {
		return err
	}

	return printAudit(os.Stdout, entries)
}

func printAudit(out io.Writer, entries []*persistence.Entry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tAT\tOPERATION\tTAG\tLEASE\tHELD\tREASON") // nolint: errcheck

	for _, e := range entries {
		held := "-"
		if e.Operation == persistence.OpRelease {
			held = e.Held.String()
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", // nolint: errcheck
			e.ID, e.At.Local().Format(time.RFC3339), e.Operation, e.Tag, e.LeaseID, held, e.Reason)
	}

	return w.Flush()
}
