package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/GiGurra/boa/pkg/boa"

	"entrate/internal/cli"
	"entrate/internal/core"
	applog "entrate/internal/log"
	"entrate/internal/report"
	"entrate/internal/store"
)

// Params are the command line arguments.
type Params struct {
	UserID string `descr:"User whose income record is printed" positional:"true"`
	Format string `descr:"Output format" alts:"table,json,xlsx" default:"table"`
	Output string `descr:"Write to this file instead of stdout" optional:"true"`
}

func main() {
	boa.NewCmdT[Params]("entrate-report").
		WithShort("Print a user's income record").
		WithLong("Reads the stored income record of one user from the configured backend and prints it as a table, JSON document or xlsx workbook.").
		WithRunFunc(func(params *Params) {
			if err := run(params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(params *Params) error {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	// Logs go to stderr so they never mix with the report.
	logger := cli.SetupLoggerTo(os.Stderr, cfg, applog.ComponentReport)

	ctx := context.Background()
	be := cli.InitBackend(ctx, logger, cfg)
	defer be.Close()

	rec, err := be.Store.Get(ctx, params.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = core.UserIncomeRecord{UserID: params.UserID}
	case err != nil:
		return fmt.Errorf("load record for %s: %w", params.UserID, err)
	}

	var out io.Writer = os.Stdout
	if params.Output != "" {
		f, err := os.Create(params.Output)
		if err != nil {
			return fmt.Errorf("create %s: %w", params.Output, err)
		}
		defer f.Close()
		out = f
	} else if params.Format == report.FormatXLSX {
		return errors.New("xlsx output needs --output")
	}

	if err := report.Write(out, params.Format, rec); err != nil {
		return err
	}
	logger.Info("Report written", applog.FieldUserID, params.UserID, "format", params.Format, "incomes", len(rec.Incomes))
	return nil
}
