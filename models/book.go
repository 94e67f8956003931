// Package models defines data structures for the scraper.
package models

import "time"

// BookListingEntry is one book tile found on a catalog listing page.
type BookListingEntry struct {
	DetailHref string
	ImageSrc   string
}

// BookRecord is the metadata persisted for a fully downloaded book.
type BookRecord struct {
	Title    string   `csv:"title" json:"title"`
	Author   string   `csv:"author" json:"author"`
	ImgSrc   string   `csv:"img_src" json:"img_src"`
	BookPath string   `csv:"book_path" json:"book_path"`
	Comments []string `csv:"comments" json:"comments"`
	Genres   []string `csv:"genres" json:"genres"`
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	Records      []*BookRecord
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	ErrorCount   int
	SkippedURLs  []string
	ErrorsByType map[string]int
	RequestCount int
	PageCount    int
}
