// Package scheduler периодически переводит просроченные pending-котировки в expired.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type quotationExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

type Scheduler struct {
	expirer  quotationExpirer
	interval time.Duration
	log      logrus.FieldLogger
}

func New(expirer quotationExpirer, interval time.Duration, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		expirer:  expirer,
		interval: interval,
		log:      log,
	}
}

// Start блокируется до отмены ctx.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("expiry sweep started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweep stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to expire stale quotations")
		return
	}
	if n > 0 {
		s.log.WithField("expired", n).Info("stale quotations expired")
	}
}
