package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Poller waits for a one-time code to arrive in a mailbox.
type Poller struct {
	provider  Provider
	extractor *Extractor
	interval  time.Duration
	logger    *zap.Logger
}

// NewPoller creates a Poller that checks the inbox every interval.
func NewPoller(provider Provider, extractor *Extractor, interval time.Duration, logger *zap.Logger) *Poller {
	if extractor == nil {
		extractor = defaultExtractor
	}
	return &Poller{
		provider:  provider,
		extractor: extractor,
		interval:  interval,
		logger:    logger.Named("otp_poller"),
	}
}

// Provision creates a mailbox through the underlying provider.
func (p *Poller) Provision(ctx context.Context) (*Mailbox, error) {
	return p.provider.Create(ctx)
}

// WaitForOTP polls until a code is found, timeout elapses (ErrOTPTimeout), or
// ctx is cancelled. Provider errors during a poll are logged and retried on
// the next tick.
func (p *Poller) WaitForOTP(ctx context.Context, mb *Mailbox, timeout time.Duration) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(map[string]bool)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	started := time.Now()
	for {
		code, err := p.check(waitCtx, mb, seen)
		if err == nil && code != "" {
			p.logger.Info("OTP received.", zap.String("address", mb.Address), zap.Duration("waited", time.Since(started)))
			return code, nil
		}
		if err != nil && waitCtx.Err() == nil {
			p.logger.Warn("Inbox poll failed.", zap.String("address", mb.Address), zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w after %s", ErrOTPTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// check inspects unseen messages and returns the first code found.
func (p *Poller) check(ctx context.Context, mb *Mailbox, seen map[string]bool) (string, error) {
	refs, err := p.provider.List(ctx, mb)
	if err != nil {
		return "", err
	}
	var errs []error
	for _, ref := range refs {
		if seen[ref.ID] {
			continue
		}
		msg, err := p.provider.Fetch(ctx, mb, ref.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		seen[ref.ID] = true
		if code, ok := p.extractor.Extract(msg.Subject, msg.Body); ok {
			return code, nil
		}
		p.logger.Debug("Message carried no code.", zap.String("id", ref.ID), zap.String("subject", msg.Subject))
	}
	return "", errors.Join(errs...)
}
