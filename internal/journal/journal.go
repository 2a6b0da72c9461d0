// Package journal implements the dual-write durability layer: a SQLite
// WAL sink for queryable stats, an append-only JSONL sink for crash
// safety, a /dev/shm fallback path, and a stderr last resort — following
// the degradation chain in spec.md §4.9. An event is durable once written
// to at least one sink.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/focusd/sbh/internal/model"
)

// QueueCapacity is the bounded channel size producers send events into.
// Per spec.md §5's channel topology table, the logger's inbound queue has
// capacity 1024.
const QueueCapacity = 1024

// sqliteFailureThreshold is how many consecutive SQLite write failures
// demote the journal to JSONL-only, per spec.md §4.9 step 2.
const sqliteFailureThreshold = 50

// Journal owns the bounded event channel and the worker goroutine that
// drains it into the active sink chain.
type Journal struct {
	events chan model.ActivityEvent
	logger *zap.Logger

	dataDir   string
	jsonlPath string

	mu              sync.Mutex
	sqlite          *sqliteSink
	jsonl           *jsonlSink
	sqliteDisabled  bool
	jsonlPrimaryDisabled bool

	sqliteConsecutiveFailures int

	droppedEvents uint64
	seq           uint64

	done chan struct{}
}

// Open constructs a Journal backed by dataDir, opening both sinks. A
// failure to open SQLite or the primary JSONL path demotes the chain
// immediately rather than failing Open outright — the daemon must start
// even with a degraded durability layer.
func Open(dataDir string, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}

	j := &Journal{
		events:    make(chan model.ActivityEvent, QueueCapacity),
		logger:    logger,
		dataDir:   dataDir,
		jsonlPath: filepath.Join(dataDir, "events.jsonl"),
		done:      make(chan struct{}),
	}

	if sink, err := newSQLiteSink(dataDir); err != nil {
		logger.Warn("sqlite sink unavailable at startup", zap.Error(err))
		j.sqliteDisabled = true
	} else {
		j.sqlite = sink
	}

	if sink, err := newJSONLSink(j.jsonlPath); err != nil {
		logger.Warn("jsonl sink unavailable at startup", zap.Error(err))
		j.jsonlPrimaryDisabled = true
	} else {
		j.jsonl = sink
	}

	go j.run()
	return j, nil
}

// Emit attempts a non-blocking send of evt onto the bounded channel,
// assigning it the next sequence number. On overflow the event is dropped
// and the dropped-event counter is incremented; the caller is never
// blocked.
func (j *Journal) Emit(evt model.ActivityEvent) {
	evt.Seq = atomic.AddUint64(&j.seq, 1)
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case j.events <- evt:
	default:
		atomic.AddUint64(&j.droppedEvents, 1)
	}
}

// DroppedEvents returns the running count of events dropped on overflow.
func (j *Journal) DroppedEvents() uint64 {
	return atomic.LoadUint64(&j.droppedEvents)
}

func (j *Journal) run() {
	for {
		select {
		case evt, ok := <-j.events:
			if !ok {
				return
			}
			j.writeToChain(evt)
		case <-j.done:
			return
		}
	}
}

// writeToChain implements the degradation chain: SQLite+JSONL, then
// JSONL-only after sustained SQLite failure, then /dev/shm fallback if
// JSONL itself fails, then stderr, then a silent drop counter.
func (j *Journal) writeToChain(evt model.ActivityEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	sqliteOK := true
	if !j.sqliteDisabled && j.sqlite != nil {
		if err := j.sqlite.write(evt); err != nil {
			sqliteOK = false
			j.sqliteConsecutiveFailures++
			if j.sqliteConsecutiveFailures >= sqliteFailureThreshold {
				j.demoteSQLite()
			}
		} else {
			j.sqliteConsecutiveFailures = 0
		}
	} else {
		sqliteOK = false
	}

	jsonlOK := j.writeJSONL(evt)

	if sqliteOK || jsonlOK {
		return
	}

	if j.writeStderr(evt) {
		return
	}

	atomic.AddUint64(&j.droppedEvents, 1)
}

func (j *Journal) demoteSQLite() {
	j.sqliteDisabled = true
	if j.sqlite != nil {
		j.sqlite.close()
		j.sqlite = nil
	}
	j.logger.Warn("sqlite sink demoted after consecutive failures",
		zap.Int("threshold", sqliteFailureThreshold))
	j.emitDegraded()
}

// emitDegraded writes a LoggerDegraded marker directly to whatever JSONL
// path is still live, bypassing the channel to avoid recursion.
func (j *Journal) emitDegraded() {
	if j.jsonl == nil {
		return
	}
	j.jsonl.write(model.ActivityEvent{
		Seq:       atomic.AddUint64(&j.seq, 1),
		Timestamp: time.Now(),
		Kind:      model.EventLoggerDegraded,
	})
}

func (j *Journal) writeJSONL(evt model.ActivityEvent) bool {
	if !j.jsonlPrimaryDisabled && j.jsonl != nil {
		if err := j.jsonl.write(evt); err == nil {
			return true
		}
		j.logger.Warn("primary jsonl sink write failed, trying /dev/shm fallback")
		j.jsonlPrimaryDisabled = true
		if j.jsonl != nil {
			j.jsonl.close()
			j.jsonl = nil
		}
	}

	return j.writeShmFallback(evt)
}

func (j *Journal) writeShmFallback(evt model.ActivityEvent) bool {
	fallbackPath := filepath.Join("/dev/shm", fmt.Sprintf("sbh-events-fallback-%d.jsonl", os.Getpid()))
	sink, err := newJSONLSink(fallbackPath)
	if err != nil {
		return false
	}
	defer sink.close()
	return sink.write(evt) == nil
}

func (j *Journal) writeStderr(evt model.ActivityEvent) bool {
	_, err := fmt.Fprintf(os.Stderr, "sbh-event kind=%s seq=%d path=%q bytes=%d ts=%s\n",
		evt.Kind, evt.Seq, evt.Path, evt.Bytes, evt.Timestamp.Format(time.RFC3339))
	return err == nil
}

// Close drains remaining queued events and closes both sinks. Safe to
// call once.
func (j *Journal) Close() error {
	close(j.done)
	close(j.events)
	for evt := range j.events {
		j.writeToChain(evt)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sqlite != nil {
		j.sqlite.close()
	}
	if j.jsonl != nil {
		j.jsonl.close()
	}
	return nil
}
