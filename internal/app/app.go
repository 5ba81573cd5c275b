// Package app wires the configured backends into the services shared by the
// API server and the admin CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tartampluch/smart-village/internal/backup"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
	"github.com/tartampluch/smart-village/internal/locale"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/sms"
	"github.com/tartampluch/smart-village/internal/store"
)

// backend is implemented by both record stores.
type backend interface {
	records.Store
	records.AuditLog
	sms.HistoryStore
}

// App holds the services built from Settings.
type App struct {
	Records *records.Service
	SMS     *sms.Service
	Backup  *backup.Service
	Catalog *locale.Catalog
	Clock   *engine.CivilClock
	Fetcher engine.Fetcher

	closers []func()
}

// Build connects every configured backend. Optional backends (Redis, MongoDB,
// MinIO, Twilio) fall back to in-process implementations when unset.
func Build(ctx context.Context, s config.Settings) (*App, error) {
	a := &App{Fetcher: engine.NewHTTPFetcher()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	loc, err := engine.LoadCivilLocation(s.Timezone)
	if err != nil {
		return nil, err
	}
	a.Clock = engine.NewCivilClock(nil, loc)

	if a.Catalog, err = locale.NewCatalog(); err != nil {
		return nil, err
	}

	db, err := a.openStore(ctx, s)
	if err != nil {
		return nil, err
	}

	var locker records.Locker = store.NewLocalLocker()
	if s.RedisAddr != "" {
		rdb, err := store.NewRedisClient(ctx, s.RedisAddr, s.RedisPassword)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		locker = store.NewRedisLocker(rdb)
	}
	a.Records = records.NewService(db, db, locker)

	var history sms.HistoryStore = db
	if s.MongoURI != "" {
		client, err := store.ConnectMongo(ctx, s.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		history = store.NewMongoSMSHistory(client.Database(s.MongoDB))
	}

	notifier, err := newNotifier(s)
	if err != nil {
		return nil, err
	}
	a.SMS = sms.NewService(notifier, history, a.Catalog, engine.RealClock{}, sms.Options{
		CountryCode:   s.CountryCode,
		RatePerSecond: s.SMSRate,
	})

	var archive backup.Archive
	if s.MinioEndpoint != "" {
		m, err := store.NewMinioArchive(ctx, store.MinioConfig{
			Endpoint:  s.MinioEndpoint,
			AccessKey: s.MinioAccessKey,
			SecretKey: s.MinioSecretKey,
			Bucket:    s.MinioBucket,
			UseSSL:    s.MinioSSL,
		})
		if err != nil {
			return nil, err
		}
		archive = m
	}
	a.Backup = backup.NewService(a.Records, archive)

	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, s config.Settings) (backend, error) {
	switch s.Store {
	case config.StoreModeMemory:
		slog.Info(config.MsgStoreReady,
			config.LogKeyComponent, config.CompStore,
			config.LogKeyStore, config.StoreModeMemory,
		)
		return store.NewMemoryStore(), nil
	case config.StoreModePostgres:
		pg, err := store.OpenPostgres(ctx, s.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = pg.Close() })
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("%s: %q", config.ErrStoreMode, s.Store)
	}
}

func newNotifier(s config.Settings) (sms.Notifier, error) {
	if s.SMSTestMode || s.TwilioSID == "" {
		return &sms.ConsoleNotifier{}, nil
	}
	return sms.NewTwilioNotifier(sms.TwilioConfig{
		AccountSid: s.TwilioSID,
		AuthToken:  s.TwilioToken,
		FromNumber: s.TwilioFrom,
	})
}

// Close releases the backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// SetupLogging installs the default JSON slog logger on stdout, and on logFile
// when set. The returned closer is nil when no file was opened.
func SetupLogging(debug bool, logFile string) io.Closer {
	writers := []io.Writer{os.Stdout}
	var file *os.File

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, config.FilePermUserRW)
		if err == nil {
			writers = append(writers, f)
			file = f
		} else {
			fmt.Fprintf(os.Stderr, config.MsgLogWarning, config.ErrLogFile, logFile, err)
		}
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	}))
	slog.SetDefault(logger)

	if file == nil {
		return nil
	}
	return file
}
