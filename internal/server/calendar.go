package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
)

// cacheItem stores a rendered calendar and its metadata for HTTP caching.
type cacheItem struct {
	data         []byte
	etag         string
	lastModified string // RFC1123, as HTTP headers require
}

// calendarCache keeps the last rendering of a feed. Readers never block.
type calendarCache struct {
	cache atomic.Pointer[cacheItem]
}

// Update stores data unless it is identical to the cached rendering, in which
// case the previous item (and its Last-Modified) is kept.
func (c *calendarCache) Update(data []byte, now time.Time) *cacheItem {
	hash := sha256.Sum256(data)
	etag := fmt.Sprintf(config.FormatETag, hex.EncodeToString(hash[:]))

	if cur := c.cache.Load(); cur != nil && cur.etag == etag {
		return cur
	}

	item := &cacheItem{
		data:         data,
		etag:         etag,
		lastModified: now.UTC().Format(http.TimeFormat),
	}
	c.cache.Store(item)

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeySizeBytes, len(data),
		config.LogKeyETag, etag,
	)
	return item
}

func (s *Server) cacheFor(lang string) *calendarCache {
	c, _ := s.calendars.LoadOrStore(lang, &calendarCache{})
	return c.(*calendarCache)
}

// handleCalendar renders the birthday feed for the request's reference day and
// serves it with ETag / Last-Modified validation.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ref := referenceFrom(r.Context())
	lang := s.language(r)

	entries, err := s.deps.Records.CalendarEntries(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	builder := engine.CalendarBuilder{}
	if s.deps.Catalog != nil {
		builder.Summary = s.deps.Catalog.BirthdaySummary(lang)
	}
	// DTSTAMP is pinned to the day so the ETag only changes with the data or the date.
	daily := engine.Reference{Instant: ref.Today.Time(), Today: ref.Today}
	data, _, err := builder.Build(r.Context(), entries, daily)
	if err != nil {
		writeError(w, r, err)
		return
	}

	item := s.cacheFor(lang).Update(data, ref.Instant)
	serveCalendar(w, r, item)
}

func serveCalendar(w http.ResponseWriter, r *http.Request, item *cacheItem) {
	w.Header().Set(config.HeaderContentType, config.MimeTextCalendar)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlPrivate)
	w.Header().Set(config.HeaderETag, item.etag)
	w.Header().Set(config.HeaderLastModified, item.lastModified)

	if match := r.Header.Get(config.HeaderIfNoneMatch); match != "" {
		if match == item.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	} else if since := r.Header.Get(config.HeaderIfModifiedSince); since != "" {
		clientTime, err1 := time.Parse(http.TimeFormat, since)
		serverTime, err2 := time.Parse(http.TimeFormat, item.lastModified)
		if err1 == nil && err2 == nil && !serverTime.After(clientTime) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, bytes.NewReader(item.data)); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyError, err,
		)
	}
}
