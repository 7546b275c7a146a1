// Package journal appends every published coordinator event to a daily
// JSONL file.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/favtube/internal/relay"
)

const (
	fileName          = "events.jsonl"
	DefaultBufferSize = 512
	DefaultMaxSizeMB  = 25
)

var (
	ErrClosed     = errors.New("journal is closed")
	ErrBufferFull = errors.New("journal buffer full")
)

// Writer queues events and writes them on its own goroutine to
// <dir>/<YYYY-MM-DD>/events.jsonl, rotated by size within a day.
type Writer struct {
	baseDir   string
	maxSizeMB int
	now       func() time.Time

	writeCh   chan relay.Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

func NewWriter(baseDir string, bufferSize, maxSizeMB int) *Writer {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	w := &Writer{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		now:       time.Now,
		writeCh:   make(chan relay.Event, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Write queues evt without blocking. A full buffer drops the event.
func (w *Writer) Write(evt relay.Event) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.writeCh <- evt:
		return nil
	default:
		slog.Warn("journal buffer full, dropping event", "kind", evt.Kind, "video_id", evt.VideoID)
		return ErrBufferFull
	}
}

// Run journals every broker event until ctx is cancelled.
func (w *Writer) Run(ctx context.Context, broker *relay.Broker) {
	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)

	slog.Info("journal started", "dir", w.baseDir)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			_ = w.Write(evt)
		}
	}
}

// Close stops the writer and flushes what is still queued.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()

	timeout := time.After(5 * time.Second)
drain:
	for {
		select {
		case evt := <-w.writeCh:
			w.writeEvent(evt)
		case <-timeout:
			slog.Warn("journal close timeout, some events may be lost")
			break drain
		default:
			break drain
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		err := w.logger.Close()
		w.logger = nil
		return err
	}
	return nil
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case evt := <-w.writeCh:
			w.writeEvent(evt)
		case <-w.done:
			return
		}
	}
}

func (w *Writer) writeEvent(evt relay.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("journal marshal failed", "error", err, "kind", evt.Kind)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().UTC().Format("2006-01-02")
	if date != w.currentDate || w.logger == nil {
		if err := w.rotateForDate(date); err != nil {
			slog.Error("journal rotate failed", "error", err, "date", date)
			return
		}
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err)
	}
}

func (w *Writer) rotateForDate(date string) error {
	if w.logger != nil {
		if err := w.logger.Close(); err != nil {
			slog.Debug("journal close previous file failed", "error", err)
		}
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	filename := filepath.Join(dir, fileName)
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}
	w.currentDate = date
	slog.Info("journal file opened", "file", filename)
	return nil
}

// Path returns the file events for date are written to.
func (w *Writer) Path(date time.Time) string {
	return filepath.Join(w.baseDir, date.UTC().Format("2006-01-02"), fileName)
}
