// Command village-admin runs one-shot maintenance tasks against the configured
// record store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/tartampluch/smart-village/internal/app"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/workbook"
)

var errUsage = errors.New(config.ErrUnknownCommand)

// options are the per-command flags.
type options struct {
	strategy   string
	offsetDays int
	confirm    bool
}

func main() {
	os.Exit(runMain(os.Args[1:], os.Stdout))
}

func runMain(args []string, out io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(os.Stderr, config.MsgAdminUsage)
		return config.ExitCodeUsage
	}
	cmd := args[0]

	var opts options
	flags := flag.NewFlagSet(cmd, flag.ContinueOnError)
	config.RegisterFlags(flags)
	flags.StringVar(&opts.strategy, config.FlagStrategy, config.StrategySkip, config.FlagDescStrategy)
	flags.IntVar(&opts.offsetDays, config.FlagOffsetDays, 0, config.FlagDescOffsetDays)
	flags.BoolVar(&opts.confirm, config.FlagConfirm, false, config.FlagDescConfirm)
	if err := flags.Parse(args[1:]); err != nil {
		return config.ExitCodeUsage
	}

	settings, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return config.ExitCodeUsage
	}
	if logCloser := app.SetupLogging(settings.Debug, settings.LogFile); logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, settings)
	if err != nil {
		slog.Error(config.ErrAppFailed, config.LogKeyComponent, config.CompAdmin, config.LogKeyError, err)
		return config.ExitCodeError
	}
	defer a.Close()

	err = execute(ctx, a, cmd, flags.Args(), opts, out)
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "%v: %s\n\n%s", err, cmd, config.MsgAdminUsage)
		return config.ExitCodeUsage
	case err != nil:
		slog.Error(config.ErrAppFailed, config.LogKeyComponent, config.CompAdmin, config.LogKeyError, err)
		return config.ExitCodeError
	}
	return config.ExitCodeSuccess
}

// execute runs one command and prints its report as JSON on out.
func execute(ctx context.Context, a *app.App, cmd string, args []string, opts options, out io.Writer) error {
	ref := a.Clock.Reference()

	var report any
	var err error
	switch cmd {
	case config.CmdImport:
		if len(args) == 0 {
			return fmt.Errorf("%w: %s", errUsage, config.ErrMissingArg)
		}
		report, err = importFile(ctx, a, ref, args[0], opts.strategy)

	case config.CmdRecompute:
		report, err = a.Records.RecomputeFlags(ctx, ref)

	case config.CmdBackfill:
		req := records.BackfillRequest{OffsetDays: opts.offsetDays}
		if opts.confirm {
			req.Confirm = config.BackfillConfirmToken
		}
		report, err = a.Records.BackfillBirthDates(ctx, ref, req)

	case config.CmdBackupExport:
		doc, err := a.Backup.Export(ctx, ref)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return writeJSON(out, doc)
		}
		return writeFile(args[0], doc)

	case config.CmdSnapshot:
		report, err = a.Backup.Snapshot(ctx, ref)

	default:
		return errUsage
	}

	if err != nil {
		if errors.Is(err, records.ErrDuplicateAborted) {
			_ = writeJSON(out, report)
		}
		return err
	}
	return writeJSON(out, report)
}

func importFile(ctx context.Context, a *app.App, ref engine.Reference, path, strategy string) (records.ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return records.ImportReport{}, err
	}
	defer func() { _ = f.Close() }()

	rows, err := workbook.ReadRows(f)
	if err != nil {
		return records.ImportReport{}, err
	}
	return a.Records.Import(ctx, ref, rows, records.ImportOptions{Strategy: strategy})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFile(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, config.FilePermUserRW)
	if err != nil {
		return err
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
