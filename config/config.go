package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL          string
	ListingPath      string
	TextDownloadPath string
	StartPage        int
	EndPage          int
	BooksDir         string
	ImagesDir        string
	OutputFile       string
	OutputFormat     string // csv, json, or dual
	Timeout          time.Duration
	UserAgent        string
	RespectRobotsTxt bool
	ReplacePerPage   bool // keep only the last page's records
	SkipBrokenBooks  bool
	ImageCacheSize   int
	MetricsAddr      string
	Verbose          bool
}

// DefaultConfig returns the defaults for the tululu.org science fiction catalog.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://tululu.org",
		ListingPath:      "/l55/",
		TextDownloadPath: "/txt.php",
		StartPage:        0,
		EndPage:          702,
		BooksDir:         "books",
		ImagesDir:        "images",
		OutputFile:       "books_description.json",
		OutputFormat:     "json",
		Timeout:          30 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		ReplacePerPage:   false,
		SkipBrokenBooks:  false,
		ImageCacheSize:   256,
		MetricsAddr:      "",
		Verbose:          false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if !strings.HasPrefix(c.ListingPath, "/") {
		return fmt.Errorf("listing path must start with /")
	}
	if !strings.HasPrefix(c.TextDownloadPath, "/") {
		return fmt.Errorf("text download path must start with /")
	}
	if c.StartPage == 0 {
		return fmt.Errorf("start page is required")
	}
	if c.EndPage < c.StartPage {
		return fmt.Errorf("end page (%d) cannot be before start page (%d)", c.EndPage, c.StartPage)
	}
	if c.BooksDir == "" {
		return fmt.Errorf("books directory cannot be empty")
	}
	if c.ImagesDir == "" {
		return fmt.Errorf("images directory cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ImageCacheSize < 0 {
		return fmt.Errorf("image cache size cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
