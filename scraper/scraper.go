// Package scraper walks the catalog listing pages and downloads every
// book's text and cover.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aluiziolira/tululu-books/config"
	"github.com/aluiziolira/tululu-books/models"
	"github.com/aluiziolira/tululu-books/parser"
	"github.com/aluiziolira/tululu-books/pipeline"
)

// Scraper drives the page -> book -> download pipeline, strictly in order.
type Scraper struct {
	cfg        *config.Config
	urls       *siteURLs
	fetcher    *Fetcher
	downloader *Downloader
	progress   io.Writer
	Metrics    *Metrics

	requestCount int
	pageCount    int
	errorCount   int
	errorsByType map[string]int
	skippedURLs  []string
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	urls, err := newSiteURLs(cfg)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}
	downloader, err := NewDownloader(fetcher, metrics, cfg.ImageCacheSize)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:          cfg,
		urls:         urls,
		fetcher:      fetcher,
		downloader:   downloader,
		progress:     os.Stdout,
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}, nil
}

// SetProgressOutput sets where the detail URL of each saved book is printed.
func (s *Scraper) SetProgressOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	s.progress = w
}

// Run processes pages [StartPage, EndPage) and feeds each page's records to
// p. With ReplacePerPage set, every page replaces the records of the
// previous one; otherwise records accumulate.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	for page := s.cfg.StartPage; page < s.cfg.EndPage; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := s.scrapePage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		if s.cfg.ReplacePerPage {
			err = p.Replace(records...)
		} else {
			err = p.Process(records...)
		}
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		s.pageCount++
		s.Metrics.IncPages()
		slog.Debug("page done", slog.Int("page", page), slog.Int("books", len(records)))
	}

	collected := p.Records()
	return &models.ScraperResult{
		Records:      collected,
		StartTime:    start,
		EndTime:      time.Now(),
		TotalCount:   len(collected),
		ErrorCount:   s.errorCount,
		SkippedURLs:  append([]string(nil), s.skippedURLs...),
		ErrorsByType: s.snapshotErrors(),
		RequestCount: s.requestCount + s.downloader.Requests(),
		PageCount:    s.pageCount,
	}, nil
}

func (s *Scraper) scrapePage(ctx context.Context, page int) ([]*models.BookRecord, error) {
	pageURL := s.urls.page(page)
	resp, err := s.fetch(ctx, "listing", pageURL)
	if err != nil {
		return nil, err
	}

	entries, err := parser.ParseListing(resp.Body)
	if err != nil {
		return nil, s.fail(fmt.Errorf("listing %s: %w", pageURL, err))
	}
	if len(entries) == 0 {
		slog.Warn("listing page has no books", slog.Int("page", page), slog.String("url", pageURL))
	}

	records := make([]*models.BookRecord, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, detailURL, err := s.scrapeBook(ctx, entry)
		if err != nil {
			if s.cfg.SkipBrokenBooks && !errors.Is(err, context.Canceled) {
				slog.Warn("skipping book",
					slog.String("href", entry.DetailHref),
					slog.String("category", errorTypeLabel(err)),
					slog.Any("error", err),
				)
				s.skippedURLs = append(s.skippedURLs, detailURL)
				continue
			}
			return nil, err
		}

		records = append(records, record)
		s.Metrics.IncBooks()
		fmt.Fprintln(s.progress, detailURL)
	}
	return records, nil
}

// scrapeBook returns the record and the detail page URL it came from.
func (s *Scraper) scrapeBook(ctx context.Context, entry models.BookListingEntry) (*models.BookRecord, string, error) {
	detailURL, err := s.urls.detail(entry.DetailHref)
	if err != nil {
		return nil, entry.DetailHref, s.fail(err)
	}

	resp, err := s.fetch(ctx, "detail", detailURL)
	if err != nil {
		return nil, detailURL, err
	}

	page, err := parser.ParseBookPage(resp.Body)
	if err != nil {
		return nil, detailURL, s.fail(fmt.Errorf("book page %s: %w", detailURL, err))
	}

	bookID, err := parser.BookID(entry.DetailHref)
	if err != nil {
		return nil, detailURL, s.fail(err)
	}

	bookPath, err := s.downloader.SaveText(ctx, s.urls.text(bookID), page.Title, s.cfg.BooksDir)
	if err != nil {
		return nil, detailURL, s.fail(fmt.Errorf("save text of %s: %w", detailURL, err))
	}

	if entry.ImageSrc == "" {
		return nil, detailURL, s.fail(fmt.Errorf("%w: no cover image for %s", parser.ErrMalformedPage, detailURL))
	}
	imageURL, err := s.urls.image(entry.ImageSrc)
	if err != nil {
		return nil, detailURL, s.fail(err)
	}

	name, err := imageName(entry.ImageSrc)
	if err != nil {
		return nil, detailURL, s.fail(err)
	}
	imgSrc, err := s.downloader.SaveImage(ctx, imageURL, name, s.cfg.ImagesDir)
	if err != nil {
		return nil, detailURL, s.fail(fmt.Errorf("save cover of %s: %w", detailURL, err))
	}

	return &models.BookRecord{
		Title:    page.Title,
		Author:   page.Author,
		ImgSrc:   imgSrc,
		BookPath: bookPath,
		Comments: page.Comments,
		Genres:   page.Genres,
	}, detailURL, nil
}

func (s *Scraper) fetch(ctx context.Context, kind, rawURL string) (*Response, error) {
	s.requestCount++
	s.Metrics.IncRequest(kind)
	resp, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, s.fail(err)
	}
	return resp, nil
}

// fail records err in the counters and returns it unchanged.
func (s *Scraper) fail(err error) error {
	category := errorTypeLabel(err)
	s.errorCount++
	s.errorsByType[category]++
	s.Metrics.IncError(category)
	slog.Error("scrape error", slog.String("category", category), slog.Any("error", err))
	return err
}

func (s *Scraper) snapshotErrors() map[string]int {
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
