package inbox

import (
	"context"
	"fmt"
	"log/slog"
)

// Daemon runs the inbox watch loop: watcher events feed the processor
// until the context is cancelled.
type Daemon struct {
	watcher   *Watcher
	processor *Processor
	journal   *Journal
	logger    *slog.Logger
}

// NewDaemon wires a watcher and processor around a shared journal.
func NewDaemon(watcher *Watcher, processor *Processor, journal *Journal, logger *slog.Logger) *Daemon {
	return &Daemon{
		watcher:   watcher,
		processor: processor,
		journal:   journal,
		logger:    logger.With("component", "inbox"),
	}
}

// Run starts the watcher and blocks until ctx is cancelled, then stops
// the watcher and waits for in-flight files to finish.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.watcher.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.processor.Run(ctx, d.watcher.Events())
	}()

	<-ctx.Done()

	if err := d.watcher.Stop(); err != nil {
		d.logger.Warn("failed to stop watcher", "error", err)
	}
	<-done

	d.logger.Info("inbox daemon stopped")
	return nil
}

// Close releases the journal.
func (d *Daemon) Close() error {
	return d.journal.Close()
}
