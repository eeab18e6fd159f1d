package telegram

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Handler consumes one incoming update.
type Handler interface {
	HandleUpdate(ctx context.Context, update Update)
}

// Poller drives the getUpdates long-poll loop and feeds a Handler.
type Poller struct {
	client  *Client
	handler Handler
	timeout time.Duration
	logger  *zap.Logger

	offset int64
}

// NewPoller builds a poller around the client.
func NewPoller(client *Client, handler Handler, timeout time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{client: client, handler: handler, timeout: timeout, logger: logger}
}

// Run polls until the context is cancelled. Transient API failures back off
// and retry; the confirmed offset only advances after a successful batch.
func (p *Poller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			p.logger.Warn("get_updates_failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= p.offset {
				p.offset = update.UpdateID + 1
			}
			p.handler.HandleUpdate(ctx, update)
		}
	}
}
