package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/morezero/wallet-bridge/pkg/dispatcher"
)

const journalLogPrefix = "db:journal"

const (
	defaultQueueSize     = 256
	defaultWriteTimeout  = 5 * time.Second
	defaultPruneInterval = time.Hour
)

// JournalStore persists journal entries. *Repository satisfies it.
type JournalStore interface {
	InsertCall(ctx context.Context, entry *CallEntry) error
	PruneCalls(ctx context.Context, cutoff time.Time) (int64, error)
}

// JournalOptions configures a JournalRecorder.
type JournalOptions struct {
	Originator   string
	QueueSize    int
	WriteTimeout time.Duration
	// Retention, when positive, prunes entries older than this once per PruneInterval.
	Retention     time.Duration
	PruneInterval time.Duration
}

// JournalRecorder writes finished calls to the journal on its own goroutine.
// RecordCall never blocks; entries are dropped when the queue is full.
type JournalRecorder struct {
	store JournalStore
	opts  JournalOptions

	queue   chan *CallEntry
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewJournalRecorder creates a JournalRecorder. Call Start before recording.
func NewJournalRecorder(store JournalStore, opts JournalOptions) *JournalRecorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = defaultPruneInterval
	}
	return &JournalRecorder{
		store: store,
		opts:  opts,
		queue: make(chan *CallEntry, opts.QueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// RecordCall implements dispatcher.Recorder.
func (j *JournalRecorder) RecordCall(rec dispatcher.CallRecord) {
	entry := &CallEntry{
		CallID:     rec.CallID,
		Operation:  rec.Operation,
		Outcome:    rec.Outcome,
		DurationMs: float64(rec.Duration) / float64(time.Millisecond),
		Originator: j.opts.Originator,
		StartedAt:  rec.StartedAt.UTC(),
	}
	if rec.Err != nil {
		msg := rec.Err.Error()
		entry.Error = &msg
	}

	select {
	case <-j.stop:
		return
	default:
	}
	select {
	case j.queue <- entry:
	default:
		if n := j.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn(fmt.Sprintf("%s - journal queue full, dropped %d entries so far", journalLogPrefix, n))
		}
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (j *JournalRecorder) Dropped() uint64 { return j.dropped.Load() }

// Start runs the writer until ctx is done or Close is called.
func (j *JournalRecorder) Start(ctx context.Context) {
	go j.run(ctx)
}

// Close stops the writer after it flushes what is already queued.
func (j *JournalRecorder) Close() {
	j.once.Do(func() { close(j.stop) })
	<-j.done
}

func (j *JournalRecorder) run(ctx context.Context) {
	defer close(j.done)

	var prune <-chan time.Time
	if j.opts.Retention > 0 {
		ticker := time.NewTicker(j.opts.PruneInterval)
		defer ticker.Stop()
		prune = ticker.C
		j.prune(ctx)
	}

	for {
		select {
		case entry := <-j.queue:
			j.write(ctx, entry)
		case <-prune:
			j.prune(ctx)
		case <-j.stop:
			j.flush(ctx)
			return
		case <-ctx.Done():
			j.flush(context.Background())
			return
		}
	}
}

func (j *JournalRecorder) flush(ctx context.Context) {
	for {
		select {
		case entry := <-j.queue:
			j.write(ctx, entry)
		default:
			return
		}
	}
}

func (j *JournalRecorder) write(ctx context.Context, entry *CallEntry) {
	wctx, cancel := context.WithTimeout(ctx, j.opts.WriteTimeout)
	defer cancel()
	if err := j.store.InsertCall(wctx, entry); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to journal %s: %v", journalLogPrefix, entry.Operation, err))
	}
}

func (j *JournalRecorder) prune(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, j.opts.WriteTimeout)
	defer cancel()
	if _, err := j.store.PruneCalls(pctx, time.Now().Add(-j.opts.Retention)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to prune journal: %v", journalLogPrefix, err))
	}
}
