package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/tululu-books/storage"
)

// Downloader saves remote files into local folders.
type Downloader struct {
	fetcher *Fetcher
	metrics *Metrics
	images  *lru.Cache[string, string] // image URL -> saved path

	requests int
}

// NewDownloader builds a downloader. A positive imageCacheSize remembers
// that many saved covers so shared images are fetched once.
func NewDownloader(fetcher *Fetcher, metrics *Metrics, imageCacheSize int) (*Downloader, error) {
	d := &Downloader{
		fetcher: fetcher,
		metrics: metrics,
	}
	if imageCacheSize > 0 {
		cache, err := lru.New[string, string](imageCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create image cache: %w", err)
		}
		d.images = cache
	}
	return d, nil
}

// Save fetches rawURL and writes the body verbatim to folder under the
// sanitized name.
func (d *Downloader) Save(ctx context.Context, rawURL, name, folder string) (string, error) {
	resp, err := d.fetch(ctx, "file", rawURL)
	if err != nil {
		return "", err
	}
	return storage.WriteFile(folder, storage.SanitizeFilename(name), resp.Body)
}

// SaveText fetches a book text and stores it as folder/<title>.txt in UTF-8.
func (d *Downloader) SaveText(ctx context.Context, rawURL, title, folder string) (string, error) {
	resp, err := d.fetch(ctx, "text", rawURL)
	if err != nil {
		return "", err
	}
	text := strings.ToValidUTF8(string(resp.Body), "\uFFFD")
	return storage.WriteFile(folder, storage.SanitizeFilename(title+".txt"), []byte(text))
}

// SaveImage fetches a cover and stores the raw bytes under its remote name.
func (d *Downloader) SaveImage(ctx context.Context, rawURL, name, folder string) (string, error) {
	if d.images != nil {
		if path, ok := d.images.Get(rawURL); ok {
			d.metrics.IncImageCacheHit()
			slog.Debug("cover already saved", slog.String("url", rawURL), slog.String("path", path))
			return path, nil
		}
	}

	resp, err := d.fetch(ctx, "image", rawURL)
	if err != nil {
		return "", err
	}
	path, err := storage.WriteFile(folder, name, resp.Body)
	if err != nil {
		return "", err
	}
	if d.images != nil {
		d.images.Add(rawURL, path)
	}
	return path, nil
}

// Requests reports how many downloads went to the network.
func (d *Downloader) Requests() int {
	return d.requests
}

func (d *Downloader) fetch(ctx context.Context, kind, rawURL string) (*Response, error) {
	d.requests++
	d.metrics.IncRequest(kind)
	return d.fetcher.Fetch(ctx, rawURL)
}
