// Package sms sends bulk and birthday text messages and keeps their history.
package sms

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
	"github.com/tartampluch/smart-village/internal/locale"
	"golang.org/x/time/rate"
)

var (
	ErrNoRecipients = errors.New(config.ErrSMSNoRecipients)
	ErrEmptyMessage = errors.New(config.ErrSMSEmptyMessage)
)

// Options tunes the service.
type Options struct {
	// CountryCode selects the region local numbers are read in, e.g. "+91".
	CountryCode string
	// RatePerSecond caps deliveries; zero or negative means unlimited.
	RatePerSecond float64
}

// BulkRequest is one message to many numbers.
type BulkRequest struct {
	Numbers []string `json:"numbers"`
	Message string   `json:"message"`
}

// Recipient is a named addressee of a personalized message.
type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// BulkResult reports a send request.
type BulkResult struct {
	Success        bool     `json:"success"`
	BatchID        string   `json:"batchId"`
	TotalNumbers   int      `json:"totalNumbers"`
	Sent           int      `json:"sent"`
	Failed         int      `json:"failed"`
	InvalidNumbers []string `json:"invalidNumbers"`
	TestMode       bool     `json:"testMode"`
}

// Service sends messages through a Notifier.
type Service struct {
	notifier    Notifier
	history     HistoryStore
	catalog     *locale.Catalog
	clock       engine.Clock
	limiter     *rate.Limiter
	countryCode string
}

// NewService wires the service. A nil clock uses the real one.
func NewService(n Notifier, h HistoryStore, c *locale.Catalog, clock engine.Clock, opts Options) *Service {
	if clock == nil {
		clock = engine.RealClock{}
	}
	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	cc := opts.CountryCode
	if cc == "" {
		cc = config.DefaultCountryCode
	}
	return &Service{
		notifier:    n,
		history:     h,
		catalog:     c,
		clock:       clock,
		limiter:     rate.NewLimiter(limit, burst),
		countryCode: cc,
	}
}

func (s *Service) logger() *slog.Logger {
	return slog.With(config.LogKeyComponent, config.CompSMS)
}

// TestMode reports whether messages are only logged.
func (s *Service) TestMode() bool { return s.notifier.TestMode() }

// SendBulk sends the same message to every valid number once.
func (s *Service) SendBulk(ctx context.Context, req BulkRequest) (BulkResult, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return BulkResult{}, ErrEmptyMessage
	}
	numbers, invalid := NormalizeNumbers(req.Numbers, s.countryCode)
	if len(numbers) == 0 {
		return BulkResult{InvalidNumbers: invalid, TestMode: s.TestMode()}, ErrNoRecipients
	}

	deliveries := make([]delivery, len(numbers))
	for i, n := range numbers {
		deliveries[i] = delivery{to: n, body: msg}
	}
	return s.dispatch(ctx, KindBulk, msg, deliveries, invalid)
}

// SendBirthdayGreetings personalizes message for each recipient. An empty message
// uses the birthday template of lang.
func (s *Service) SendBirthdayGreetings(ctx context.Context, recipients []Recipient, message, lang string) (BulkResult, error) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = BirthdayText(s.catalog, lang)
	}

	seen := make(map[string]struct{}, len(recipients))
	var deliveries []delivery
	var invalid []string
	for _, r := range recipients {
		to, ok := NormalizeNumber(r.Phone, s.countryCode)
		if !ok {
			invalid = append(invalid, r.Phone)
			continue
		}
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		deliveries = append(deliveries, delivery{to: to, body: Personalize(msg, r.Name)})
	}
	if len(deliveries) == 0 {
		return BulkResult{InvalidNumbers: invalid, TestMode: s.TestMode()}, ErrNoRecipients
	}
	return s.dispatch(ctx, KindBirthday, msg, deliveries, invalid)
}

type delivery struct {
	to   string
	body string
}

func (s *Service) dispatch(ctx context.Context, kind, msg string, deliveries []delivery, invalid []string) (BulkResult, error) {
	now := s.clock.Now()
	res := BulkResult{
		BatchID:        newBatchID(now),
		TotalNumbers:   len(deliveries),
		InvalidNumbers: invalid,
		TestMode:       s.TestMode(),
	}
	if res.InvalidNumbers == nil {
		res.InvalidNumbers = []string{}
	}
	log := s.logger().With(config.LogKeyBatch, res.BatchID)

	for _, d := range deliveries {
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		sendCtx, cancel := context.WithTimeout(ctx, config.SMSSendTimeout)
		_, err := s.notifier.Send(sendCtx, d.to, d.body)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			log.Warn(config.MsgSMSFailed, config.LogKeyValue, d.to, config.LogKeyError, err)
			continue
		}
		res.Sent++
	}
	res.Success = res.Sent > 0

	batch := Batch{
		ID:         res.BatchID,
		Kind:       kind,
		Message:    msg,
		Recipients: res.TotalNumbers,
		Sent:       res.Sent,
		Failed:     res.Failed,
		TestMode:   res.TestMode,
		CreatedAt:  now,
	}
	if err := s.history.Append(ctx, batch); err != nil {
		return res, err
	}

	log.Info(config.MsgSMSSent,
		config.LogKeyTestMode, res.TestMode,
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyTotal, res.TotalNumbers),
			slog.Int(config.LogKeySent, res.Sent),
			slog.Int(config.LogKeyFailed, res.Failed),
			slog.Int(config.LogKeyInvalid, len(invalid)),
		),
	)
	return res, nil
}

// History returns the newest batches first, at most limit (clamped to config.HistoryLimit).
func (s *Service) History(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 || limit > config.HistoryLimit {
		limit = config.HistoryLimit
	}
	batches, err := s.history.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if batches == nil {
		batches = []Batch{}
	}
	return batches, nil
}

// Stats sums the history. "Today" is the civil day of ref in its own zone.
func (s *Service) Stats(ctx context.Context, ref engine.Reference) (Stats, error) {
	since := time.Date(ref.Today.Year, ref.Today.Month, ref.Today.Day, 0, 0, 0, 0, ref.Instant.Location())
	return s.history.Totals(ctx, since)
}

// Templates lists the message templates in lang.
func (s *Service) Templates(lang string) []Template {
	return Templates(s.catalog, lang)
}
