package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/tululu-books/models"
	"github.com/aluiziolira/tululu-books/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.BookRecord) error
	Close() error
	Validate() error
}

// Pipeline validates book records, keeps them in arrival order and hands
// the final set to the writer on Close.
type Pipeline struct {
	writer OutputWriter

	mu      sync.Mutex // guards records/closed
	records []*models.BookRecord
	closed  bool

	metrics metrics

	closeOnce    sync.Once
	closeErr     error
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline that flushes into writer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:   writer,
		records:  make([]*models.BookRecord, 0),
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}
}

// Process appends valid records after the ones already collected.
func (p *Pipeline) Process(records ...*models.BookRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	p.appendLocked(records)
	return nil
}

// Replace discards the collected records and keeps only the given ones.
func (p *Pipeline) Replace(records ...*models.BookRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	p.metrics.addDropped(len(p.records))
	p.records = make([]*models.BookRecord, 0, len(records))
	p.appendLocked(records)
	return nil
}

// Records returns a snapshot of the collected records.
func (p *Pipeline) Records() []*models.BookRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.BookRecord, len(p.records))
	copy(out, p.records)
	return out
}

// Close writes the collected records and closes the writer. Later calls
// return the first result.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		records := make([]*models.BookRecord, len(p.records))
		copy(records, p.records)
		p.mu.Unlock()

		p.signalShutdown()

		var errs []error
		if err := p.writer.Write(records); err != nil {
			errs = append(errs, fmt.Errorf("write records: %w", err))
		}
		if err := p.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer: %w", err))
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	p.mu.Lock()
	held := int64(len(p.records))
	p.mu.Unlock()

	snapshot := p.metrics.snapshot()
	snapshot["processed_books"] = held
	return snapshot
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("records", metrics["processed_books"].(int64)),
					slog.Int64("dropped", metrics["dropped_books"].(int64)),
					slog.Int("validation_errors", len(metrics["validation_errors"].(map[string]int))),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) appendLocked(records []*models.BookRecord) {
	for _, record := range records {
		if err := parser.ValidateRecord(record); err != nil {
			slog.Warn("dropping invalid record", slog.Any("error", err))
			p.metrics.addValidation("invalid_record")
			continue
		}
		p.records = append(p.records, record)
		p.metrics.incrementAccepted()
	}
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	accepted   int64
	dropped    int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementAccepted() {
	m.mu.Lock()
	m.accepted++
	m.mu.Unlock()
}

func (m *metrics) addDropped(n int) {
	m.mu.Lock()
	m.dropped += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"accepted_books":    m.accepted,
		"dropped_books":     m.dropped,
		"validation_errors": copyValidation,
	}
}
