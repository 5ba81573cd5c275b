package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/tartampluch/smart-village/internal/app"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/server"
)

// main delegates to runMain so deferred calls (closing the log file, the
// database) run before the process exits.
func main() {
	os.Exit(runMain(os.Args[1:]))
}

func runMain(args []string) int {
	// -------------------------------------------------------------------------
	// 1. CLI Argument Parsing
	// -------------------------------------------------------------------------
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	showVersion := flags.Bool(config.FlagVersion, false, config.FlagDescVersion)
	config.RegisterFlags(flags)
	if err := flags.Parse(args); err != nil {
		return config.ExitCodeUsage
	}

	if *showVersion {
		printVersion()
		return config.ExitCodeSuccess
	}

	settings, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return config.ExitCodeUsage
	}

	// -------------------------------------------------------------------------
	// 2. Logging Initialization
	// -------------------------------------------------------------------------
	if logCloser := app.SetupLogging(settings.Debug, settings.LogFile); logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	// -------------------------------------------------------------------------
	// 3. Context & Signal Handling
	// -------------------------------------------------------------------------
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logStartupInfo(settings)

	// -------------------------------------------------------------------------
	// 4. Application Logic
	// -------------------------------------------------------------------------
	if err := run(ctx, settings); err != nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
		return config.ExitCodeError
	}

	slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
	return config.ExitCodeSuccess
}

// run builds the services and serves the API until ctx is cancelled.
func run(ctx context.Context, s config.Settings) error {
	a, err := app.Build(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Deps{
		Records:     a.Records,
		SMS:         a.SMS,
		Backup:      a.Backup,
		Catalog:     a.Catalog,
		Clock:       a.Clock,
		Fetcher:     a.Fetcher,
		CountryCode: s.CountryCode,
	}, server.Options{
		Host:              s.Host,
		Port:              s.Port,
		CORSOrigins:       s.CORSOrigins,
		RecomputeInterval: s.RecomputeInterval,
	})
	return srv.Start(ctx)
}

func printVersion() {
	fmt.Printf(config.MsgVersionOutput,
		config.AppName,
		config.Version,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// logStartupInfo logs environment details useful for debugging.
func logStartupInfo(s config.Settings) {
	slog.Info(config.MsgAppStarting,
		config.LogKeyComponent, config.CompMain,
		slog.Group(config.LogKeyBuild,
			slog.String(config.LogKeyApp, config.AppName),
			slog.String(config.LogKeyVersion, config.Version),
			slog.String(config.LogKeyGoVer, runtime.Version()),
		),
		slog.Group(config.LogKeyEnv,
			slog.String(config.LogKeyOS, runtime.GOOS),
			slog.String(config.LogKeyArch, runtime.GOARCH),
			slog.Int(config.LogKeyPID, os.Getpid()),
		),
		config.LogKeyStore, s.Store,
		config.LogKeyTestMode, s.SMSTestMode || s.TwilioSID == "",
	)
}
