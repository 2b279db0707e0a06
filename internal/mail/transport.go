package mail

import (
	"context"
	"fmt"
	"sync/atomic"

	logx "mailblast/pkg/logx"
)

// Transport is the mail-provider client boundary. Implementations are
// expected to resolve the account's credential themselves (the engine
// passes only the account id) and to honor ctx cancellation.
type Transport interface {
	// Send transmits a raw MIME message and returns the provider's id.
	Send(ctx context.Context, accountID string, raw []byte) (string, error)

	// HealthCheck performs one lightweight round-trip with the account's
	// credential. An error means the account is currently unusable.
	HealthCheck(ctx context.Context, accountID string) error
}

// LogTransport is the development transport: it writes outbound messages
// to the log instead of the wire and always reports healthy.
type LogTransport struct {
	log logx.Logger
	seq atomic.Uint64
}

func NewLogTransport(log logx.Logger) *LogTransport {
	return &LogTransport{log: log}
}

func (t *LogTransport) Send(ctx context.Context, accountID string, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := fmt.Sprintf("log-%d", t.seq.Add(1))
	t.log.Info("outbound message (log transport)",
		logx.String("account", accountID),
		logx.String("provider_id", id),
		logx.Int("bytes", len(raw)))
	return id, nil
}

func (t *LogTransport) HealthCheck(ctx context.Context, accountID string) error {
	return ctx.Err()
}
