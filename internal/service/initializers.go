package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/config"
	"github.com/xkilldash9x/registrar/internal/mailbox"
	"github.com/xkilldash9x/registrar/internal/network"
	"github.com/xkilldash9x/registrar/internal/records"
	"github.com/xkilldash9x/registrar/internal/store"
)

// InitializeSheet opens the Sheets API with the configured service account.
func InitializeSheet(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*records.Sheet, error) {
	values, err := records.NewGoogleValues(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return records.NewSheet(values, cfg, logger), nil
}

// NewMailChain builds the providers in configured order behind a fallback chain.
func NewMailChain(cfg config.MailConfig, netCfg config.NetworkConfig, logger *zap.Logger) (*mailbox.Chain, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no mail providers configured")
	}
	client, err := MailClientConfig(netCfg, logger)
	if err != nil {
		return nil, err
	}
	providers := make([]mailbox.Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch name {
		case "mailtm":
			providers = append(providers, mailbox.NewMailTM(cfg.MailTMBaseURL, client, cfg.RequestsPerSecond, logger))
		case "guerrilla":
			providers = append(providers, mailbox.NewGuerrilla(cfg.GuerrillaBaseURL, client, cfg.RequestsPerSecond, logger))
		default:
			return nil, fmt.Errorf("unsupported mail provider: %s", name)
		}
	}
	return mailbox.NewChain(logger, providers...), nil
}

// MailClientConfig derives the HTTP settings shared by the mail providers.
func MailClientConfig(netCfg config.NetworkConfig, logger *zap.Logger) (*network.ClientConfig, error) {
	client := network.NewDefaultClientConfig()
	if netCfg.Timeout > 0 {
		client.RequestTimeout = netCfg.Timeout
	}
	client.Logger = logger.Named("mail_http")
	if netCfg.Proxy != "" {
		u, err := url.Parse(netCfg.Proxy)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid network proxy %q", netCfg.Proxy)
		}
		client.ProxyURL = u
	}
	return client, nil
}

// InitializeMail returns the OTP source used by the create-account and verify-otp steps.
func InitializeMail(cfg config.MailConfig, netCfg config.NetworkConfig, logger *zap.Logger) (*mailbox.Poller, error) {
	chain, err := NewMailChain(cfg, netCfg, logger)
	if err != nil {
		return nil, err
	}
	extractor, err := mailbox.NewExtractor(cfg.OTPPatterns)
	if err != nil {
		return nil, err
	}
	return mailbox.NewPoller(chain, extractor, cfg.PollInterval, logger), nil
}

// InitializeJournal connects to PostgreSQL and prepares the outcomes table.
// The returned cleanup closes the pool.
func InitializeJournal(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Journal, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (hint: check REGISTRAR_DATABASE_URL)")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	// One record at a time; a small pool is plenty.
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	journal, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := journal.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		logger.Debug("Closing PostgreSQL connection pool.")
		pool.Close()
	}
	return journal, cleanup, nil
}
