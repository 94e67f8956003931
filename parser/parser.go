// Package parser extracts catalog data from tululu.org markup.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/tululu-books/models"
)

const titleSeparator = "::"

// ErrMalformedPage reports a detail page that breaks the expected layout.
var ErrMalformedPage = errors.New("malformed book page")

// BookPage holds the fields scraped from a book detail page.
type BookPage struct {
	Title    string
	Author   string
	Comments []string
	Genres   []string
}

// NewDocument parses raw markup into a goquery document.
func NewDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ParseListing returns the book tiles of a listing page in page order.
func ParseListing(body []byte) ([]models.BookListingEntry, error) {
	doc, err := NewDocument(body)
	if err != nil {
		return nil, err
	}
	return ExtractBookEntries(doc), nil
}

// ExtractBookEntries selects every book tile on a listing page. Tiles
// without a detail link are skipped.
func ExtractBookEntries(doc *goquery.Document) []models.BookListingEntry {
	entries := make([]models.BookListingEntry, 0)
	doc.Find(".bookimage").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find("a[href]").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		src := s.Find("img[src]").First().AttrOr("src", "")
		entries = append(entries, models.BookListingEntry{
			DetailHref: strings.TrimSpace(href),
			ImageSrc:   strings.TrimSpace(src),
		})
	})
	return entries
}

// ParseBookPage extracts title, author, comments and genres from a
// detail page.
func ParseBookPage(body []byte) (*BookPage, error) {
	doc, err := NewDocument(body)
	if err != nil {
		return nil, err
	}

	title, author, err := ExtractTitleAndAuthor(doc)
	if err != nil {
		return nil, err
	}

	return &BookPage{
		Title:    title,
		Author:   author,
		Comments: ExtractComments(doc),
		Genres:   ExtractGenres(doc),
	}, nil
}

// ExtractTitleAndAuthor splits the page heading "Title :: Author".
func ExtractTitleAndAuthor(doc *goquery.Document) (string, string, error) {
	heading := doc.Find("h1").First()
	if heading.Length() == 0 {
		return "", "", fmt.Errorf("%w: no h1 heading", ErrMalformedPage)
	}

	parts := strings.Split(heading.Text(), titleSeparator)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: heading %q has no %q separator", ErrMalformedPage, strings.TrimSpace(heading.Text()), titleSeparator)
	}

	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// ExtractComments returns the text of every reader comment.
func ExtractComments(doc *goquery.Document) []string {
	return selectTexts(doc, ".texts span")
}

// ExtractGenres returns the genre link labels.
func ExtractGenres(doc *goquery.Document) []string {
	return selectTexts(doc, "span.d_book a")
}

func selectTexts(doc *goquery.Document, selector string) []string {
	texts := make([]string, 0)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, s.Text())
	})
	return texts
}

// BookID derives the numeric id from a detail link such as "/b239/".
func BookID(detailHref string) (string, error) {
	id := strings.Trim(strings.TrimSpace(detailHref), "/b")
	if id == "" {
		return "", fmt.Errorf("%w: no book id in link %q", ErrMalformedPage, detailHref)
	}
	return id, nil
}

// ValidateRecord ensures a record points at both saved files.
func ValidateRecord(r *models.BookRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.BookPath) == "" {
		return fmt.Errorf("record missing book path for %q", r.Title)
	}
	if strings.TrimSpace(r.ImgSrc) == "" {
		return fmt.Errorf("record missing image path for %q", r.Title)
	}
	return nil
}
