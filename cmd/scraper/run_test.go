package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/tululu-books/config"
	"github.com/aluiziolira/tululu-books/models"
)

const (
	listingHTML = `<html><body><div id="content"><table class="d_book"><tr><td>` +
		`<div class="bookimage"><a href="/b7/"><img src="/images/7.jpg"></a></div>` +
		`</td></tr></table></div></body></html>`
	detailHTML = `<html><body><h1>Алиби &nbsp; :: &nbsp; Шекли Роберт</h1>` +
		`<span class="d_book"><b>Жанр книги:</b> <a href="/l55/">Научная фантастика</a></span>` +
		`<div class="texts"><b>Reader</b><span class="black">Хорошо</span></div></body></html>`
)

func newCatalogServer(t *testing.T, listingStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/l55/1", func(w http.ResponseWriter, r *http.Request) {
		if listingStatus != http.StatusOK {
			http.Error(w, "unavailable", listingStatus)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/b7/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(detailHTML))
	})
	mux.HandleFunc("/txt.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "7" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("Текст книги"))
	})
	mux.HandleFunc("/images/7.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xFF, 0xD8, 0xFF})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newRunConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.StartPage = 1
	cfg.EndPage = 2
	cfg.BooksDir = filepath.Join(root, "books")
	cfg.ImagesDir = filepath.Join(root, "images")
	cfg.OutputFile = filepath.Join(root, "books_description.json")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func TestRunWritesDescriptions(t *testing.T) {
	srv := newCatalogServer(t, http.StatusOK)
	cfg := newRunConfig(t, srv.URL)

	stdout := &bytes.Buffer{}
	if err := run(context.Background(), cfg, stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := strings.TrimSpace(stdout.String()); got != srv.URL+"/b7/" {
		t.Fatalf("progress output = %q, want detail URL", got)
	}

	data, err := os.ReadFile(cfg.OutputFile)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(data), "[\n    {\n        \"title\": \"Алиби\",") {
		t.Fatalf("unexpected layout:\n%s", data)
	}

	var records []models.BookRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records=%d, want 1", len(records))
	}
	record := records[0]
	if record.Author != "Шекли Роберт" {
		t.Fatalf("author=%q", record.Author)
	}
	if record.BookPath != filepath.Join(cfg.BooksDir, "Алиби.txt") {
		t.Fatalf("book_path=%q", record.BookPath)
	}
	if record.ImgSrc != filepath.Join(cfg.ImagesDir, "7.jpg") {
		t.Fatalf("img_src=%q", record.ImgSrc)
	}
	if len(record.Comments) != 1 || len(record.Genres) != 1 {
		t.Fatalf("comments=%v genres=%v", record.Comments, record.Genres)
	}

	text, err := os.ReadFile(record.BookPath)
	if err != nil {
		t.Fatalf("read book text: %v", err)
	}
	if string(text) != "Текст книги" {
		t.Fatalf("book text = %q", text)
	}
	if _, err := os.Stat(record.ImgSrc); err != nil {
		t.Fatalf("cover missing: %v", err)
	}
}

func TestRunListingFailureWritesNoOutput(t *testing.T) {
	srv := newCatalogServer(t, http.StatusInternalServerError)
	cfg := newRunConfig(t, srv.URL)

	err := run(context.Background(), cfg, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status 500 error, got %v", err)
	}

	for _, dir := range []string{cfg.BooksDir, cfg.ImagesDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory %s should exist, stat err=%v", dir, err)
		}
	}
	if _, err := os.Stat(cfg.OutputFile); !os.IsNotExist(err) {
		t.Fatalf("output file should not exist after a failed run, stat err=%v", err)
	}
}
