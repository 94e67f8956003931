package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/tululu-books/models"
)

func sampleRecord() *models.BookRecord {
	return &models.BookRecord{
		Title:    "Алиби",
		Author:   "Шекли Роберт",
		ImgSrc:   "images/239.jpg",
		BookPath: "books/Алиби.txt",
		Comments: []string{"Хорошо", "<b>отлично</b>"},
		Genres:   []string{"Научная фантастика"},
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "books_description.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	bare := &models.BookRecord{Title: "Bare", ImgSrc: "images/nopic.gif", BookPath: "books/Bare.txt"}
	if err := writer.Write([]*models.BookRecord{sampleRecord(), bare}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "[\n    {\n        \"title\": \"Алиби\"") {
		t.Fatalf("unexpected layout:\n%s", text)
	}
	if !strings.Contains(text, "<b>отлично</b>") {
		t.Fatalf("html and cyrillic should not be escaped:\n%s", text)
	}

	var decoded []map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("records=%d, want 2", len(decoded))
	}
	for _, key := range []string{"title", "author", "img_src", "book_path", "comments", "genres"} {
		if _, ok := decoded[0][key]; !ok {
			t.Fatalf("missing key %q", key)
		}
	}
	if comments, ok := decoded[1]["comments"].([]interface{}); !ok || len(comments) != 0 {
		t.Fatalf("comments of bare record = %#v, want []", decoded[1]["comments"])
	}
}

func TestJSONWriterEmptyRunOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "books_description.json")
	if err := os.WriteFile(path, []byte(`[{"title": "stale"}]`), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("content = %q, want []", data)
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "books.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]*models.BookRecord{sampleRecord()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "title" || records[0][5] != "genres" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][4] != "Хорошо; <b>отлично</b>" {
		t.Fatalf("comments cell = %q", records[1][4])
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "books.csv")
	jsonPath := filepath.Join(dir, "out", "books.json")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write([]*models.BookRecord{sampleRecord()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestCSVWriterCreatesFileLazily(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "books.csv")

	if _, err := NewCSVWriter(path); err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("csv file should not exist before the first write, stat err=%v", err)
	}
}

func TestNewDualWriterJSONFailureLeavesNoCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "books.csv")
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("file"), 0o644); err != nil {
		t.Fatalf("seed blocker: %v", err)
	}

	if _, err := NewDualWriter(csvPath, filepath.Join(blocker, "sub", "books.json")); err == nil {
		t.Fatalf("expected error when the JSON directory cannot be created")
	}
	if _, err := os.Stat(csvPath); !os.IsNotExist(err) {
		t.Fatalf("csv file should not exist after a failed constructor, stat err=%v", err)
	}
}
