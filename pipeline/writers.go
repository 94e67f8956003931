package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/tululu-books/models"
)

const listSeparator = "; "

// CSVWriter writes records to CSV. The file is created on the first
// Write or Close, so an aborted run leaves no output behind.
type CSVWriter struct {
	filename string
	file     *os.File
	writer   *csv.Writer
	mu       sync.Mutex
}

// NewCSVWriter initialises a CSV writer for filename.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &CSVWriter{filename: filename}, nil
}

func (cw *CSVWriter) openLocked() error {
	if cw.file != nil {
		return nil
	}

	f, err := os.Create(cw.filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	header := []string{"title", "author", "img_src", "book_path", "comments", "genres"}
	if err := writer.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv header: %w", err)
	}

	cw.file = f
	cw.writer = writer
	return nil
}

// Write appends records to the CSV output. Comments and genres are joined
// into single cells.
func (cw *CSVWriter) Write(records []*models.BookRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.openLocked(); err != nil {
		return err
	}
	for _, record := range records {
		row := []string{
			record.Title,
			record.Author,
			record.ImgSrc,
			record.BookPath,
			strings.Join(record.Comments, listSeparator),
			strings.Join(record.Genres, listSeparator),
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.openLocked(); err != nil {
		return err
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file exists and is not empty.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.filename)
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter collects records and writes them as one indented JSON array
// when closed. An existing file is overwritten.
type JSONWriter struct {
	filename string
	records  []*models.BookRecord
	mu       sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{
		filename: filename,
		records:  make([]*models.BookRecord, 0),
	}, nil
}

// Write buffers records for the final array.
func (jw *JSONWriter) Write(records []*models.BookRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		jw.records = append(jw.records, normalize(record))
	}
	return nil
}

// Close encodes the buffered records and writes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	f, err := os.Create(jw.filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(jw.records); err != nil {
		f.Close()
		return fmt.Errorf("encode json records: %w", err)
	}
	if err := buffer.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return f.Close()
}

// Validate ensures the JSON file has data and decodes as an array.
func (jw *JSONWriter) Validate() error {
	data, err := os.ReadFile(jw.filename)
	if err != nil {
		return fmt.Errorf("read json file: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("json file is empty")
	}
	var decoded []models.BookRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("json file is not a record array: %w", err)
	}
	return nil
}

// normalize keeps list fields as arrays in the output, never null.
func normalize(record *models.BookRecord) *models.BookRecord {
	out := *record
	if out.Comments == nil {
		out.Comments = []string{}
	}
	if out.Genres == nil {
		out.Genres = []string{}
	}
	return &out
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
