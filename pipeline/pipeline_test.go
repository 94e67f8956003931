package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/aluiziolira/tululu-books/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.BookRecord
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(records []*models.BookRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.BookRecord, len(records))
	copy(copyBatch, records)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) titles() []string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var out []string
	for _, batch := range mw.batches {
		for _, record := range batch {
			out = append(out, record.Title)
		}
	}
	return out
}

func record(title string) *models.BookRecord {
	return &models.BookRecord{
		Title:    title,
		Author:   "Author",
		ImgSrc:   "images/" + title + ".jpg",
		BookPath: "books/" + title + ".txt",
	}
}

func TestPipelineProcessValidation(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)

	invalid := &models.BookRecord{Title: "No Files"}
	if err := p.Process(record("A"), invalid, nil, record("B")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.titles(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("written titles = %v, want [A B]", got)
	}
	if !writer.closed {
		t.Fatalf("writer should be closed")
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] != 2 {
		t.Fatalf("invalid_record = %d, want 2", validation["invalid_record"])
	}
}

func TestPipelineProcessAccumulatesAcrossPages(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)

	if err := p.Process(record("A"), record("B")); err != nil {
		t.Fatalf("process page 2: %v", err)
	}
	if err := p.Process(record("C")); err != nil {
		t.Fatalf("process page 3: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := writer.titles()
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("titles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("titles = %v, want %v", got, want)
		}
	}
}

func TestPipelineReplaceKeepsLastPage(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)

	if err := p.Replace(record("A"), record("B")); err != nil {
		t.Fatalf("replace page 2: %v", err)
	}
	if err := p.Replace(record("C")); err != nil {
		t.Fatalf("replace page 3: %v", err)
	}

	if got := p.Records(); len(got) != 1 || got[0].Title != "C" {
		t.Fatalf("records = %v, want only C", got)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	metrics := p.GetMetrics()
	if dropped := metrics["dropped_books"].(int64); dropped != 2 {
		t.Fatalf("dropped_books = %d, want 2", dropped)
	}
	if processed := metrics["processed_books"].(int64); processed != 1 {
		t.Fatalf("processed_books = %d, want 1", processed)
	}
}

func TestPipelineClosedRejectsRecords(t *testing.T) {
	p := NewPipeline(&mockWriter{})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.Process(record("late")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
	if err := p.Replace(record("late")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("replace after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineCloseReportsWriteError(t *testing.T) {
	writeErr := errors.New("disk full")
	writer := &mockWriter{writeErr: writeErr}
	p := NewPipeline(writer)

	for i := 0; i < 3; i++ {
		if err := p.Process(record(strconv.Itoa(i))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	err := p.Close()
	if !errors.Is(err, writeErr) {
		t.Fatalf("close error = %v, want %v", err, writeErr)
	}
	if again := p.Close(); !errors.Is(again, writeErr) {
		t.Fatalf("second close = %v, want same error", again)
	}
	if !writer.closed {
		t.Fatalf("writer should be closed even after a write error")
	}
}
