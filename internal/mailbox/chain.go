package mailbox

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Chain tries providers in order when creating a mailbox and routes reads to
// whichever provider created it.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain builds a Chain; order is preference order.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger.Named("mail_chain")}
}

func (c *Chain) Name() string { return "chain" }

// Create returns a mailbox from the first provider that succeeds.
func (c *Chain) Create(ctx context.Context) (*Mailbox, error) {
	var errs []error
	for _, p := range c.providers {
		mb, err := p.Create(ctx)
		if err == nil {
			return mb, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("Mail provider failed, trying next.", zap.String("provider", p.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, fmt.Errorf("%w: all providers failed: %w", ErrServiceUnavailable, errors.Join(errs...))
}

func (c *Chain) owner(mb *Mailbox) (Provider, error) {
	for _, p := range c.providers {
		if p.Name() == mb.Provider {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMailbox, mb.Provider)
}

func (c *Chain) List(ctx context.Context, mb *Mailbox) ([]MessageRef, error) {
	p, err := c.owner(mb)
	if err != nil {
		return nil, err
	}
	return p.List(ctx, mb)
}

func (c *Chain) Fetch(ctx context.Context, mb *Mailbox, id string) (*Message, error) {
	p, err := c.owner(mb)
	if err != nil {
		return nil, err
	}
	return p.Fetch(ctx, mb, id)
}
