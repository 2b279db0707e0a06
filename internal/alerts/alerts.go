// Package alerts pushes a short operator notification over Telegram when
// a campaign session reaches a terminal state. Entirely optional: a nil
// *Service is safe to call and does nothing.
package alerts

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"mailblast/internal/session"
	logx "mailblast/pkg/logx"
)

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int
}

type Service struct {
	cfg     Config
	log     logx.Logger
	queue   chan session.Session
	limiter *rate.Limiter
}

// New returns nil when alerts are disabled or not fully configured.
func New(cfg Config, log logx.Logger) *Service {
	if !cfg.Enabled || cfg.Token == "" || cfg.ChatID == 0 {
		return nil
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		queue:   make(chan session.Session, 64),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Notify enqueues a terminal session for delivery. Never blocks; when the
// queue is full the alert is dropped.
func (s *Service) Notify(sess session.Session) {
	if s == nil {
		return
	}
	select {
	case s.queue <- sess:
	default:
		s.log.Warn("alert queue full, dropping", logx.String("session", sess.ID))
	}
}

// Run delivers queued alerts until ctx is done. Intended for a supervisor
// goroutine.
func (s *Service) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	bot, err := tele.NewBot(tele.Settings{Token: s.cfg.Token})
	if err != nil {
		// Alerts are best-effort; a bad token must not take the engine down.
		s.log.Error("alert bot init failed, alerts disabled", logx.Any("err", err))
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sess := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
			text := formatAlert(sess)
			if _, err := bot.Send(tele.ChatID(s.cfg.ChatID), text); err != nil {
				s.log.Warn("alert send failed", logx.String("session", sess.ID), logx.Any("err", err))
			}
		}
	}
}

func formatAlert(s session.Session) string {
	return fmt.Sprintf("campaign %s finished\nstatus: %s\nsent: %d  failed: %d  total: %d",
		s.ID, s.Status, s.SentCount, s.FailedCount, s.TotalRecipients)
}
