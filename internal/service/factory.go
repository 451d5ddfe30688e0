package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/browser"
	"github.com/xkilldash9x/registrar/internal/config"
	"github.com/xkilldash9x/registrar/internal/mailbox"
	"github.com/xkilldash9x/registrar/internal/pipeline"
	"github.com/xkilldash9x/registrar/internal/records"
	"github.com/xkilldash9x/registrar/internal/registration"
	"github.com/xkilldash9x/registrar/internal/runner"
	"github.com/xkilldash9x/registrar/internal/store"
)

var _ runner.Recorder = (*store.Journal)(nil)

// ComponentFactory creates the set of components needed for a run.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation. Each opener can be
// replaced in tests.
type concreteFactory struct {
	openSheet   func(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*records.Sheet, error)
	openMail    func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*mailbox.Poller, error)
	openJournal func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Journal, func(), error)
	launcher    func(cfg config.Interface, logger *zap.Logger) runner.Launcher
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{
		openSheet: InitializeSheet,
		openMail: func(_ context.Context, cfg config.Interface, logger *zap.Logger) (*mailbox.Poller, error) {
			return InitializeMail(cfg.Mail(), cfg.Network(), logger)
		},
		openJournal: InitializeJournal,
		launcher:    BrowserLauncher,
	}
}

// BrowserLauncher starts a fresh stealth browser session per run.
func BrowserLauncher(cfg config.Interface, logger *zap.Logger) runner.Launcher {
	return func(ctx context.Context) (pipeline.Session, error) {
		s, err := browser.NewSession(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Create wires the components in dependency order. Anything opened before a
// failure is released again.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Record source
	sheet, err := f.openSheet(ctx, cfg.Sheets(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open record source: %w", err)
		return nil, initializationErr
	}
	components.Sheet = sheet
	logger.Debug("Record source initialized.", zap.String("sheet", cfg.Sheets().SheetName))

	// 2. Status sink
	if cfg.Runner().DryRun {
		components.DryRun = records.NewMemorySink()
		components.Sink = components.DryRun
		logger.Info("Dry run: outcomes are kept in memory, the sheet is not written.")
	} else {
		components.Sink = sheet
	}

	// 3. Mailbox
	mail, err := f.openMail(ctx, cfg, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize mail providers: %w", err)
		return nil, initializationErr
	}
	components.Mail = mail
	logger.Debug("Mail providers initialized.", zap.Strings("providers", cfg.Mail().Providers))

	// 4. Journal, optional
	var recorder runner.Recorder
	if cfg.Database().URL != "" && !cfg.Runner().DryRun {
		journal, cleanup, err := f.openJournal(ctx, cfg.Database(), logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize outcome journal: %w", err)
			return nil, initializationErr
		}
		components.Journal = journal
		components.closeJournal = cleanup
		recorder = journal
		logger.Debug("Outcome journal initialized.")
	}

	// 5. Registration steps
	flow, err := registration.New(cfg, mail, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to build registration flow: %w", err)
		return nil, initializationErr
	}
	components.Flow = flow

	// 6. Runner
	rc := cfg.Runner()
	r, err := runner.New(sheet, components.Sink, f.launcher(cfg, logger), flow.Pipeline(logger), logger, runner.Options{
		DelayMin: rc.DelayMin,
		DelayMax: rc.DelayMax,
		Limit:    rc.Limit,
		Recorder: recorder,
	})
	if err != nil {
		initializationErr = fmt.Errorf("failed to create runner: %w", err)
		return nil, initializationErr
	}
	components.Runner = r

	logger.Info("All run components initialized successfully.")
	return components, nil
}
