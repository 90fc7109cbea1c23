package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/errors"
)

// stubIngester records calls and returns a canned result or error.
type stubIngester struct {
	mu     sync.Mutex
	calls  []string
	result *domain.IngestResult
	err    error
}

func (s *stubIngester) Ingest(_ context.Context, _ []byte, filename string) (*domain.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, filename)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &domain.IngestResult{
		Image:    &domain.Image{ID: "img-1", FileHash: "hash-1"},
		TagCount: 3,
	}, nil
}

func (s *stubIngester) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func setupTestProcessor(t *testing.T, ingest Ingester) (*Processor, *Journal, string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "pixvault-processor-test-*")
	require.NoError(t, err)

	journal, err := OpenJournal(filepath.Join(dir, "journal"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	processor := NewProcessor(ingest, journal, 1, logger)

	cleanup := func() {
		_ = journal.Close()
		_ = os.RemoveAll(dir)
	}
	return processor, journal, dir, cleanup
}

// dropFile writes a file into the inbox dir and returns its settled
// event.
func dropFile(t *testing.T, dir, name string, content []byte) Event {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)

	return Event{Type: EventAdded, Path: path, Size: info.Size(), ModTime: info.ModTime()}
}

func runEvents(processor *Processor, events ...Event) {
	ch := make(chan Event, len(events))
	for _, event := range events {
		ch <- event
	}
	close(ch)
	processor.Run(context.Background(), ch)
}

func TestProcessor_IngestsNewFile(t *testing.T) {
	stub := &stubIngester{}
	processor, journal, dir, cleanup := setupTestProcessor(t, stub)
	defer cleanup()

	event := dropFile(t, dir, "fresh.png", []byte("png data"))
	runEvents(processor, event)

	assert.Equal(t, 1, stub.callCount())
	assert.Equal(t, []string{"fresh.png"}, stub.calls)

	entry, err := journal.Lookup(event.Path)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "img-1", entry.ImageID)
	assert.Equal(t, "hash-1", entry.Hash)
	assert.True(t, entry.Matches(event.Size, event.ModTime))
}

func TestProcessor_SkipsJournaledFile(t *testing.T) {
	stub := &stubIngester{}
	processor, journal, dir, cleanup := setupTestProcessor(t, stub)
	defer cleanup()

	event := dropFile(t, dir, "seen.png", []byte("png data"))
	require.NoError(t, journal.Record(&Entry{
		Path:    event.Path,
		Size:    event.Size,
		ModTime: event.ModTime,
		ImageID: "img-old",
	}))

	runEvents(processor, event)

	assert.Equal(t, 0, stub.callCount(), "journaled file should not be re-ingested")
}

func TestProcessor_ReprocessesChangedFile(t *testing.T) {
	stub := &stubIngester{}
	processor, journal, dir, cleanup := setupTestProcessor(t, stub)
	defer cleanup()

	event := dropFile(t, dir, "changed.png", []byte("png data v2"))

	// Journal remembers the old size, so the file changed since.
	require.NoError(t, journal.Record(&Entry{
		Path:    event.Path,
		Size:    event.Size - 1,
		ModTime: event.ModTime,
		ImageID: "img-old",
	}))

	runEvents(processor, event)

	assert.Equal(t, 1, stub.callCount())
}

func TestProcessor_InvalidFileJournaled(t *testing.T) {
	stub := &stubIngester{err: errors.ErrInvalidImage}
	processor, journal, dir, cleanup := setupTestProcessor(t, stub)
	defer cleanup()

	event := dropFile(t, dir, "broken.png", []byte("not really a png"))
	runEvents(processor, event)

	assert.Equal(t, 1, stub.callCount())

	// Rejections are journaled without an image so restarts skip them.
	entry, err := journal.Lookup(event.Path)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Empty(t, entry.ImageID)
	assert.Empty(t, entry.Hash)
}

func TestProcessor_TransientErrorNotJournaled(t *testing.T) {
	stub := &stubIngester{err: fmt.Errorf("store offline")}
	processor, journal, dir, cleanup := setupTestProcessor(t, stub)
	defer cleanup()

	event := dropFile(t, dir, "retry.png", []byte("png data"))
	runEvents(processor, event)

	assert.Equal(t, 1, stub.callCount())

	// The next run should retry the file.
	entry, err := journal.Lookup(event.Path)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestProcessor_DuplicateJournaled(t *testing.T) {
	stub := &stubIngester{result: &domain.IngestResult{
		Image:     &domain.Image{ID: "img-dup", FileHash: "hash-dup"},
		Duplicate: true,
	}}
	processor, journal, dir, cleanup := setupTestProcessor(t, stub)
	defer cleanup()

	event := dropFile(t, dir, "copy.png", []byte("png data"))
	runEvents(processor, event)

	entry, err := journal.Lookup(event.Path)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "img-dup", entry.ImageID)
}

func TestProcessor_RemovedForgets(t *testing.T) {
	stub := &stubIngester{}
	processor, journal, dir, cleanup := setupTestProcessor(t, stub)
	defer cleanup()

	path := filepath.Join(dir, "deleted.png")
	require.NoError(t, journal.Record(&Entry{
		Path:    path,
		Size:    10,
		ModTime: time.Now().UTC(),
		ImageID: "img-3",
	}))

	runEvents(processor, Event{Type: EventRemoved, Path: path})

	entry, err := journal.Lookup(path)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, 0, stub.callCount())
}

func TestProcessor_ContextCancellation(t *testing.T) {
	stub := &stubIngester{}
	processor, _, _, cleanup := setupTestProcessor(t, stub)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Run must return even though the channel never closes.
	events := make(chan Event)
	processor.Run(ctx, events)

	assert.Equal(t, 0, stub.callCount())
}
