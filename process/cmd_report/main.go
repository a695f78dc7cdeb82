package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"resumepay/pkg/config"
	"resumepay/pkg/logger"
	"resumepay/process/report"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := ff.NewFlagSet("cmd_report")
	storage := config.RegisterStorage(fs)
	month := fs.StringLong("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	list := fs.BoolLong("list", "list matching attempts")
	if err := config.Parse(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return err
	}

	st, err := storage.Open(logger.Must("warn", ""))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := report.Run(context.Background(), st, *month, *list, os.Stdout); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
