package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTarget serves a fixed item list and records what the runner did
// with it.
type fakeTarget struct {
	items          []Item
	defaultOutcome Outcome
	errs           map[string]error

	mu        sync.Mutex
	prepared  int
	processed []string
	batches   []string // afterID of every NextBatch call
}

func (f *fakeTarget) Name() string { return "fake" }

func (f *fakeTarget) Count(context.Context) (int, error) { return len(f.items), nil }

func (f *fakeTarget) Prepare(context.Context) error {
	f.prepared++
	return nil
}

func (f *fakeTarget) NextBatch(_ context.Context, afterID string, limit int) ([]Item, error) {
	f.mu.Lock()
	f.batches = append(f.batches, afterID)
	f.mu.Unlock()

	start := sort.Search(len(f.items), func(i int) bool { return f.items[i].ID > afterID })
	end := min(start+limit, len(f.items))
	return f.items[start:end], nil
}

func (f *fakeTarget) Process(_ context.Context, item Item) (Outcome, error) {
	f.mu.Lock()
	f.processed = append(f.processed, item.ID)
	f.mu.Unlock()

	if err := f.errs[item.ID]; err != nil {
		return OutcomeFailed, err
	}
	if f.defaultOutcome != "" {
		return f.defaultOutcome, nil
	}
	return OutcomeUpdated, nil
}

func fakeItems(n int) []Item {
	items := make([]Item, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("item-%03d", i)
		items = append(items, Item{ID: id, Label: id})
	}
	return items
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestRunner_ProcessesAllItems(t *testing.T) {
	target := &fakeTarget{items: fakeItems(25)}
	runner := NewRunner(Options{BatchSize: 10, Concurrency: 3, Verbose: true}, testLogger())

	summary, err := runner.Run(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, 25, summary.Total)
	assert.Equal(t, 25, summary.Counts[OutcomeUpdated])
	assert.Equal(t, "fake", summary.Target)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, target.prepared)

	assert.Len(t, target.processed, 25)

	// Keyset paging: each batch starts after the previous batch's last id,
	// and the short final batch ends the run.
	assert.Equal(t, []string{"", "item-010", "item-020"}, target.batches)
}

func TestRunner_ContinuesOnFailure(t *testing.T) {
	target := &fakeTarget{
		items: fakeItems(5),
		errs:  map[string]error{"item-003": fmt.Errorf("backend unavailable")},
	}
	runner := NewRunner(Options{BatchSize: 10, Concurrency: 2, Verbose: true}, testLogger())

	summary, err := runner.Run(context.Background(), target)
	require.NoError(t, err, "item failures should not fail the run")

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 4, summary.Counts[OutcomeUpdated])
	assert.Equal(t, 1, summary.Counts[OutcomeFailed])
}

func TestRunner_DryRunSkipsPrepare(t *testing.T) {
	target := &fakeTarget{items: fakeItems(3), defaultOutcome: OutcomePlanned}
	runner := NewRunner(Options{BatchSize: 10, DryRun: true, Verbose: true}, testLogger())

	summary, err := runner.Run(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, 0, target.prepared, "dry run must not prepare the target")
	assert.Equal(t, 3, summary.Counts[OutcomePlanned])
}

func TestRunner_EmptyTarget(t *testing.T) {
	target := &fakeTarget{}
	runner := NewRunner(Options{Verbose: true}, testLogger())

	summary, err := runner.Run(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, summary.Counts)
	assert.Equal(t, 1, target.prepared)
}

func TestRunner_InterBatchPacing(t *testing.T) {
	target := &fakeTarget{items: fakeItems(3)}
	runner := NewRunner(Options{BatchSize: 1, Concurrency: 1, Delay: 30 * time.Millisecond}, testLogger())

	start := time.Now()
	summary, err := runner.Run(context.Background(), target)
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Equal(t, 3, summary.Total)
	// Three full batches plus the terminating empty one, paced 30ms apart.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestRunner_ContextCancellation(t *testing.T) {
	target := &fakeTarget{items: fakeItems(10)}
	runner := NewRunner(Options{BatchSize: 2, Verbose: true, Delay: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := runner.Run(ctx, target)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Total)
}
