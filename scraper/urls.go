package scraper

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/aluiziolira/tululu-books/config"
	"github.com/aluiziolira/tululu-books/parser"
)

type siteURLs struct {
	base     *url.URL
	listing  *url.URL
	download *url.URL
}

func newSiteURLs(cfg *config.Config) (*siteURLs, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	listing, err := url.Parse(cfg.ListingPath)
	if err != nil {
		return nil, fmt.Errorf("parse listing path: %w", err)
	}
	download, err := url.Parse(cfg.TextDownloadPath)
	if err != nil {
		return nil, fmt.Errorf("parse text download path: %w", err)
	}
	return &siteURLs{
		base:     base,
		listing:  base.ResolveReference(listing),
		download: base.ResolveReference(download),
	}, nil
}

// page returns the listing URL for a page number, e.g. /l55/5.
func (u *siteURLs) page(n int) string {
	return u.listing.ResolveReference(&url.URL{Path: strconv.Itoa(n)}).String()
}

// detail resolves a tile link such as "/b239/" to an absolute URL ending
// in a slash.
func (u *siteURLs) detail(href string) (string, error) {
	ref, err := url.Parse(strings.Trim(href, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("parse detail link %q: %w", href, err)
	}
	return u.base.ResolveReference(ref).String(), nil
}

func (u *siteURLs) image(src string) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(src, "/"))
	if err != nil {
		return "", fmt.Errorf("parse image link %q: %w", src, err)
	}
	return u.base.ResolveReference(ref).String(), nil
}

func (u *siteURLs) text(bookID string) string {
	target := *u.download
	target.RawQuery = url.Values{"id": {bookID}}.Encode()
	return target.String()
}

// imageName is the remote basename of a cover link, "/images/239.jpg" -> "239.jpg".
// A link without a file component is malformed.
func imageName(src string) (string, error) {
	p := src
	if parsed, err := url.Parse(src); err == nil {
		p = parsed.Path
	}
	if p == "" || strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("%w: cover link %q has no file name", parser.ErrMalformedPage, src)
	}
	name := path.Base(p)
	if name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("%w: cover link %q has no file name", parser.ErrMalformedPage, src)
	}
	return name, nil
}
