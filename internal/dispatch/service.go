// Package dispatch runs campaign sessions: one background goroutine per
// session walks the recipient list at the configured pace, spends the
// shared daily quota one send at a time, and finalizes the session record.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mailblast/internal/accounts"
	"mailblast/internal/mail"
	"mailblast/internal/quota"
	"mailblast/internal/runtime/supervisor"
	"mailblast/internal/session"
	logx "mailblast/pkg/logx"
)

const defaultInterval = 72 * time.Second

// Campaign is one validated dispatch request, ready to run.
type Campaign struct {
	Account    accounts.Account
	Subject    string
	Body       string
	Recipients []string
}

// Service owns the dispatch workers. The control surface talks to it
// through Launch and the session store; everything else is internal.
type Service struct {
	store     *session.Store
	quota     *quota.Governor
	transport mail.Transport
	sup       *supervisor.Supervisor
	log       logx.Logger

	cfgMu       sync.Mutex
	interval    time.Duration
	unsubscribe string

	// onTerminal fires once per session, after the terminal status and
	// end time are committed. Used for operator alerts.
	onTerminal func(session.Session)
}

type Options struct {
	Interval       time.Duration
	UnsubscribeURL string
	OnTerminal     func(session.Session)
}

func New(store *session.Store, gov *quota.Governor, transport mail.Transport, sup *supervisor.Supervisor, log logx.Logger, opts Options) *Service {
	s := &Service{
		store:      store,
		quota:      gov,
		transport:  transport,
		sup:        sup,
		log:        log,
		onTerminal: opts.OnTerminal,
	}
	s.Apply(opts.Interval, opts.UnsubscribeURL)
	return s
}

// Apply updates the pacing interval and unsubscribe target. Sessions
// already running keep the interval they started with.
func (s *Service) Apply(interval time.Duration, unsubscribeURL string) {
	if interval <= 0 {
		interval = defaultInterval
	}
	s.cfgMu.Lock()
	s.interval = interval
	s.unsubscribe = unsubscribeURL
	s.cfgMu.Unlock()
}

// Interval returns the current pacing interval between sends.
func (s *Service) Interval() time.Duration {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.interval
}

// Launch registers a new session and starts its dispatch goroutine.
// The returned snapshot is the session as created (status "sending").
func (s *Service) Launch(c Campaign) session.Session {
	interval := s.Interval()
	now := time.Now()

	sess := s.store.Create(session.CreateParams{
		AccountID:        c.Account.ID,
		TotalRecipients:  len(c.Recipients),
		EstimatedEndTime: now.Add(time.Duration(len(c.Recipients)) * interval),
	})

	s.log.Info("session launched",
		logx.String("session", sess.ID),
		logx.String("account", c.Account.ID),
		logx.Int("recipients", len(c.Recipients)),
		logx.Duration("interval", interval))

	s.sup.Go("dispatch:"+sess.ID, func(ctx context.Context) error {
		s.run(ctx, sess.ID, c, interval)
		return nil
	})
	return sess
}

// run walks the recipient list. It is the sole writer of the session
// record until the terminal status is committed.
func (s *Service) run(ctx context.Context, id string, c Campaign, interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("dispatch panicked", logx.String("session", id), logx.Any("panic", r))
			s.finalize(id, session.StatusError, func(sess *session.Session) {
				sess.Errors = append(sess.Errors, session.SendError{
					Recipient: sess.CurrentRecipient,
					Error:     fmt.Sprintf("internal error: %v", r),
				})
			})
		}
	}()

	// Burst 1 and a full bucket at start: the first send goes out
	// immediately, every later send waits out the interval, and there is
	// no trailing delay after the last recipient.
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for i, rcpt := range c.Recipients {
		if err := limiter.Wait(ctx); err != nil {
			s.finalize(id, session.StatusCancelled, nil)
			return
		}

		snap, ok := s.store.Snapshot(id)
		if !ok {
			s.log.Warn("session vanished mid-run", logx.String("session", id))
			return
		}
		if snap.Cancelled {
			s.finalize(id, session.StatusCancelled, nil)
			return
		}

		if s.quota.TryConsume(1) == 0 {
			// The budget ran out under this session's feet. Record the
			// current recipient as failed and stop here.
			s.finalize(id, session.StatusDailyLimit, func(sess *session.Session) {
				sess.CurrentIndex = i + 1
				sess.CurrentRecipient = rcpt
				sess.FailedCount++
				sess.Errors = append(sess.Errors, session.SendError{
					Recipient: rcpt,
					Error:     "daily send limit reached",
				})
			})
			return
		}

		// Advance the cursor before the attempt so pollers see the
		// in-flight recipient.
		if err := s.store.Mutate(id, func(sess *session.Session) {
			sess.CurrentIndex = i + 1
			sess.CurrentRecipient = rcpt
		}); err != nil {
			return
		}

		msg := mail.Message{
			From:        c.Account,
			To:          rcpt,
			Subject:     c.Subject,
			Body:        c.Body,
			Unsubscribe: s.unsubscribeTarget(),
		}
		_, err := s.transport.Send(ctx, c.Account.ID, msg.Raw())

		if err != nil {
			if ctx.Err() != nil {
				s.finalize(id, session.StatusCancelled, nil)
				return
			}
			s.log.Warn("send failed",
				logx.String("session", id),
				logx.String("recipient", rcpt),
				logx.Any("err", err))

			// A first-recipient failure with nothing sent yet means the
			// account or transport is broken, not this one address.
			if i == 0 {
				s.finalize(id, session.StatusError, func(sess *session.Session) {
					sess.FailedCount++
					sess.Errors = append(sess.Errors, session.SendError{Recipient: rcpt, Error: err.Error()})
				})
				return
			}

			merr := s.store.Mutate(id, func(sess *session.Session) {
				sess.FailedCount++
				sess.Errors = append(sess.Errors, session.SendError{Recipient: rcpt, Error: err.Error()})
			})
			if merr != nil {
				return
			}
			continue
		}

		merr := s.store.Mutate(id, func(sess *session.Session) {
			sess.SentCount++
		})
		if merr != nil {
			return
		}
	}

	s.finalize(id, session.StatusCompleted, nil)
}

func (s *Service) unsubscribeTarget() string {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.unsubscribe
}

// finalize commits the terminal status exactly once and fires the
// terminal hook with the committed snapshot.
func (s *Service) finalize(id string, status session.Status, extra func(*session.Session)) {
	err := s.store.Mutate(id, func(sess *session.Session) {
		if extra != nil {
			extra(sess)
		}
		sess.Status = status
		now := time.Now()
		sess.EndTime = &now
	})
	if err != nil {
		s.log.Warn("finalize failed", logx.String("session", id), logx.Any("err", err))
		return
	}

	snap, ok := s.store.Snapshot(id)
	if !ok {
		return
	}
	s.log.Info("session finished",
		logx.String("session", id),
		logx.String("status", string(snap.Status)),
		logx.Int("sent", snap.SentCount),
		logx.Int("failed", snap.FailedCount))
	if s.onTerminal != nil {
		s.onTerminal(snap)
	}
}
