package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailblast/internal/accounts"
	logx "mailblast/pkg/logx"
)

// ErrPreflight wraps any provider health-check failure so callers can map
// it to a "pick another account or retry later" response.
var ErrPreflight = errors.New("account preflight failed")

const defaultPreflightTimeout = 10 * time.Second

// Preflight verifies an account is usable before a session is committed.
type Preflight struct {
	transport Transport
	timeout   time.Duration
	log       logx.Logger
}

func NewPreflight(transport Transport, timeout time.Duration, log logx.Logger) *Preflight {
	if timeout <= 0 {
		timeout = defaultPreflightTimeout
	}
	return &Preflight{transport: transport, timeout: timeout, log: log}
}

// Check runs one bounded health-check round-trip against the provider.
func (p *Preflight) Check(ctx context.Context, acct accounts.Account) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	if err := p.transport.HealthCheck(ctx, acct.ID); err != nil {
		p.log.Warn("preflight failed",
			logx.String("account", acct.ID),
			logx.Duration("took", time.Since(start)),
			logx.Any("err", err))
		return fmt.Errorf("%w: account %s: %v", ErrPreflight, acct.ID, err)
	}
	p.log.Debug("preflight ok", logx.String("account", acct.ID), logx.Duration("took", time.Since(start)))
	return nil
}
