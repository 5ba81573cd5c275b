// Package server exposes the village records, birthdays, files and SMS features
// over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tartampluch/smart-village/internal/backup"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
	"github.com/tartampluch/smart-village/internal/locale"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/sms"
)

// Deps are the services behind the API.
type Deps struct {
	Records *records.Service
	SMS     *sms.Service
	Backup  *backup.Service
	Catalog *locale.Catalog
	Clock   *engine.CivilClock
	Fetcher engine.Fetcher
	// CountryCode normalizes phone numbers in exported contacts.
	CountryCode string
}

// Options configure the listener and background jobs.
type Options struct {
	Host        string
	Port        int
	CORSOrigins []string
	// RecomputeInterval refreshes the stored birthday flags; 0 disables it.
	RecomputeInterval time.Duration
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	opts    Options
	metrics *Metrics
	router  chi.Router

	// calendars caches the rendered feed per language.
	calendars sync.Map
}

// New builds the router.
func New(deps Deps, opts Options) *Server {
	s := &Server{deps: deps, opts: opts, metrics: NewMetrics()}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Metrics returns the collectors, e.g. for tests.
func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(s.metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{config.HeaderContentType, config.HeaderIfNoneMatch},
		ExposedHeaders: []string{config.HeaderContentDisposition, config.HeaderETag},
		MaxAge:         config.CORSMaxAge,
	}))

	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.withReference)

		r.Get("/", s.handleRoot)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Post("/", s.handleCreateRecord)
			r.Post("/bulk-delete", s.handleBulkDelete)
			r.Get("/mandal/{mandal}", s.handleByMandal)
			r.Get("/village/{village}", s.handleByVillage)
			r.Get("/{id}", s.handleGetRecord)
			r.Put("/{id}", s.handleUpdateRecord)
			r.Delete("/{id}", s.handleDeleteRecord)
		})
		r.Delete("/delete-village/{village}", s.handleDeleteVillage)
		r.Get("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)

		r.Route("/birthdays", func(r chi.Router) {
			r.Get("/week", s.handleBirthdaysWeek)
			r.Get("/month", s.handleBirthdaysMonth)
			r.Get("/today", s.handleBirthdaysToday)
			r.Get("/upcoming", s.handleUpcoming)
			r.Get("/calendar.ics", s.handleCalendar)
		})

		r.Post("/import", s.handleImport)
		r.Post("/import/url", s.handleImportURL)
		r.Get("/export", s.handleExport)
		r.Get("/export/contacts.vcf", s.handleExportContacts)
		r.Get("/download-template", s.handleTemplate)

		r.Route("/backup", func(r chi.Router) {
			r.Get("/export", s.handleBackupExport)
			r.Post("/restore", s.handleBackupRestore)
			r.Post("/snapshot", s.handleSnapshot)
			r.Get("/snapshots", s.handleSnapshots)
		})

		r.Post("/send-sms-bulk", s.handleSendBulk)
		r.Post("/send-sms-birthday", s.handleSendBirthday)
		r.Get("/sms-templates", s.handleSMSTemplates)
		r.Get("/sms-history", s.handleSMSHistory)
		r.Get("/sms-stats", s.handleSMSStats)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/recompute-flags", s.handleRecomputeFlags)
			r.Post("/fix-birth-dates", s.handleFixBirthDates)
		})
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully. The flag
// recomputation worker runs alongside when enabled.
func (s *Server) Start(ctx context.Context) error {
	if s.opts.Port <= 0 || s.opts.Port > 65535 {
		return errors.New(config.ErrPortRange)
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port)),
		Handler:      s.router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	serverError := make(chan error, config.ChannelBufferSize)

	go func() {
		slog.Info(config.MsgServerListen,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyAddr, srv.Addr,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
	}()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.recomputeWorker(ctx)
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgServerStop, config.LogKeyComponent, config.CompServer)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		<-workerDone
		if err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil

	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

type ctxKey int

const referenceKey ctxKey = iota

// withReference pins one Reference per request; every date decision of the
// request uses it.
func (s *Server) withReference(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), referenceKey, s.deps.Clock.Reference())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func referenceFrom(ctx context.Context) engine.Reference {
	ref, _ := ctx.Value(referenceKey).(engine.Reference)
	return ref
}

// requestLogger logs each request at DEBUG through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug(config.MsgRequest,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyMethod, r.Method,
			config.LogKeyPath, r.URL.Path,
			config.LogKeyStatus, ww.Status(),
			config.LogKeyDuration, time.Since(start).Milliseconds(),
		)
	})
}
