package inbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/errors"
)

// Ingester runs a file through the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, data []byte, filename string) (*domain.IngestResult, error)
}

// Processor consumes watcher events and ingests settled files. The
// journal keeps the processor from re-reading files it already handled
// on earlier runs; the pipeline's content-hash dedupe stays the
// correctness boundary for anything the journal misses.
type Processor struct {
	ingest  Ingester
	journal *Journal
	workers int
	logger  *slog.Logger
}

// NewProcessor creates a processor draining events with the given
// number of workers.
func NewProcessor(ingest Ingester, journal *Journal, workers int, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 2
	}
	return &Processor{
		ingest:  ingest,
		journal: journal,
		workers: workers,
		logger:  logger.With("component", "inbox"),
	}
}

// Run processes events until the channel closes or ctx is cancelled.
func (p *Processor) Run(ctx context.Context, events <-chan Event) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, events)
		}()
	}
	wg.Wait()
}

func (p *Processor) work(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch event.Type {
			case EventAdded:
				p.processFile(ctx, event)
			case EventRemoved:
				if err := p.journal.Forget(event.Path); err != nil {
					p.logger.Warn("failed to forget journal entry", "path", event.Path, "error", err)
				}
			}
		}
	}
}

// processFile ingests one settled file unless the journal already saw
// this exact path, size and mtime.
func (p *Processor) processFile(ctx context.Context, event Event) {
	entry, err := p.journal.Lookup(event.Path)
	if err != nil {
		p.logger.Warn("journal lookup failed", "path", event.Path, "error", err)
	} else if entry != nil && entry.Matches(event.Size, event.ModTime) {
		p.logger.Debug("skipping already processed file", "path", event.Path)
		return
	}

	data, err := os.ReadFile(event.Path)
	if err != nil {
		p.logger.Error("failed to read file", "path", event.Path, "error", err)
		return
	}

	result, err := p.ingest.Ingest(ctx, data, filepath.Base(event.Path))
	if err != nil {
		if errors.Is(err, errors.ErrInvalidImage) {
			// Not a usable PNG. Journal it so restarts do not re-read
			// it, but record no image.
			p.logger.Warn("rejected file", "path", event.Path, "error", err)
			p.record(&Entry{Path: event.Path, Size: event.Size, ModTime: event.ModTime})
			return
		}
		// Transient failures stay out of the journal so the next run
		// retries them.
		p.logger.Error("failed to ingest file", "path", event.Path, "error", err)
		return
	}

	if result.Duplicate {
		p.logger.Debug("file already ingested", "path", event.Path, "image_id", result.Image.ID)
	} else {
		p.logger.Info("ingested file", "path", event.Path, "image_id", result.Image.ID, "tags", result.TagCount)
	}

	p.record(&Entry{
		Path:    event.Path,
		Size:    event.Size,
		ModTime: event.ModTime,
		Hash:    result.Image.FileHash,
		ImageID: result.Image.ID,
		SeenAt:  time.Now().UTC(),
	})
}

func (p *Processor) record(entry *Entry) {
	if err := p.journal.Record(entry); err != nil {
		p.logger.Warn("failed to record journal entry", "path", entry.Path, "error", err)
	}
}
