package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/tartampluch/smart-village/internal/config"
)

// recomputeWorker refreshes the stored birthday flags on a schedule so the
// week/month listings do not go stale. It returns when ctx is done.
func (s *Server) recomputeWorker(ctx context.Context) {
	log := slog.With(config.LogKeyComponent, config.CompWorker)

	interval := s.opts.RecomputeInterval
	if interval <= config.DisabledInterval {
		log.Info(config.MsgWorkerDisabled)
		return
	}

	s.recomputeOnce(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info(config.MsgWorkerStart, config.LogKeyInterval, interval)

	for {
		select {
		case <-ctx.Done():
			log.Info(config.MsgWorkerStop)
			return
		case <-ticker.C:
			s.recomputeOnce(ctx, log)
		}
	}
}

func (s *Server) recomputeOnce(ctx context.Context, log *slog.Logger) {
	if _, err := s.deps.Records.RecomputeFlags(ctx, s.deps.Clock.Reference()); err != nil && ctx.Err() == nil {
		log.Error(config.MsgWorkerFailed, config.LogKeyError, err)
	}
}
