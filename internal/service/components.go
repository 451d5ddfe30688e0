package service

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/mailbox"
	"github.com/xkilldash9x/registrar/internal/records"
	"github.com/xkilldash9x/registrar/internal/registration"
	"github.com/xkilldash9x/registrar/internal/runner"
	"github.com/xkilldash9x/registrar/internal/store"
)

// Components holds everything a run needs, built from one configuration.
type Components struct {
	Sheet   *records.Sheet
	Sink    records.Sink
	Mail    *mailbox.Poller
	Journal *store.Journal
	Flow    *registration.Flow
	Runner  *runner.Runner

	// DryRun is set when writes go to memory instead of the sheet.
	DryRun *records.MemorySink

	closeJournal func()
	logger       *zap.Logger
}

// Shutdown releases what Create opened. It is safe on partially built components.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	// The browser is owned by the runner and closed when Run returns.
	if c.closeJournal != nil {
		c.closeJournal()
		c.closeJournal = nil
		logger.Debug("Journal connection pool closed.")
	}

	if c.DryRun != nil {
		logger.Info("Dry run finished; sheet left untouched.", zap.Int("suppressed_writes", c.DryRun.Writes()))
	}
	logger.Debug("All run components shut down.")
}
