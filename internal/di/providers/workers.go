package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/do/v2"

	"github.com/pixvaultapp/pixvault-server/internal/config"
	"github.com/pixvaultapp/pixvault-server/internal/inbox"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
	"github.com/pixvaultapp/pixvault-server/internal/service"
)

// shutdownTimeout bounds how long Shutdown waits for in-flight
// ingestions to drain.
const shutdownTimeout = 30 * time.Second

// InboxHandle wraps the drop-folder daemon with shutdown capability.
// A disabled inbox yields an empty handle whose Shutdown is a no-op.
type InboxHandle struct {
	daemon *inbox.Daemon
	cancel context.CancelFunc
	done   chan struct{}

	once sync.Once
	err  error
}

// Shutdown stops the daemon and waits for in-flight ingestions to
// drain. It runs once; both the container and the daemon's exit
// sequence call it.
func (h *InboxHandle) Shutdown() error {
	h.once.Do(func() { h.err = h.stop() })
	return h.err
}

func (h *InboxHandle) stop() error {
	if h.daemon == nil {
		return nil
	}
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("inbox daemon did not stop within %s", shutdownTimeout)
	}
	return h.daemon.Close()
}

// ProvideInboxDaemon provides the drop-folder daemon: watcher, journal,
// and ingestion workers. An empty inbox path disables the whole thing.
func ProvideInboxDaemon(i do.Injector) (*InboxHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Inbox.Path == "" {
		log.Info("Inbox watcher disabled, no inbox path configured")
		return &InboxHandle{}, nil
	}

	ingestService := do.MustInvoke[*service.IngestService](i)

	journal, err := inbox.OpenJournal(cfg.JournalPath())
	if err != nil {
		return nil, err
	}

	watcher, err := inbox.NewWatcher(cfg.Inbox.Path, cfg.Inbox.SettleDelay, log.Logger)
	if err != nil {
		_ = journal.Close()
		return nil, err
	}

	processor := inbox.NewProcessor(ingestService, journal, cfg.Inbox.Workers, log.Logger)
	daemon := inbox.NewDaemon(watcher, processor, journal, log.Logger)

	// Run in background until Shutdown cancels the context.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := daemon.Run(ctx); err != nil {
			log.Error("Inbox daemon error", "error", err)
		}
	}()

	log.Info("Inbox daemon started",
		"path", cfg.Inbox.Path,
		"settle_delay", cfg.Inbox.SettleDelay,
		"workers", cfg.Inbox.Workers,
	)

	return &InboxHandle{
		daemon: daemon,
		cancel: cancel,
		done:   done,
	}, nil
}
