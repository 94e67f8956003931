package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/tululu-books/config"
)

const (
	ctxStart    = "start"
	ctxResponse = "response"
)

// Response is a fetched document.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher issues one synchronous GET at a time through a colly collector.
// Redirects are surfaced as errors instead of being followed.
type Fetcher struct {
	collector *colly.Collector
	metrics   *Metrics
	host      string
}

// ErrForeignHost is returned for URLs outside the catalog site.
var ErrForeignHost = errors.New("host outside the catalog site")

// NewFetcher builds a fetcher restricted to the configured site.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	// The host is checked in Fetch rather than with colly.AllowedDomains,
	// which rejects an off-site redirect before its status is known.
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(0),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	collector.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	f := &Fetcher{
		collector: collector,
		metrics:   metrics,
		host:      parsed.Hostname(),
	}
	f.configureHandlers()
	return f, nil
}

// WithTransport swaps the HTTP transport used by the collector.
func (f *Fetcher) WithTransport(transport http.RoundTripper) {
	f.collector.WithTransport(transport)
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
	})

	f.collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
		r.Ctx.Put(ctxResponse, r)
	})
}

// Fetch performs a GET of rawURL. Any non-2xx status, including redirects,
// returns a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if !strings.EqualFold(target.Hostname(), f.host) {
		return nil, &FetchError{URL: rawURL, Err: ErrForeignHost}
	}

	reqCtx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	resp, ok := reqCtx.GetAny(ctxResponse).(*colly.Response)
	if !ok {
		return nil, &FetchError{URL: rawURL, Err: errors.New("request produced no response")}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	header := http.Header{}
	if resp.Headers != nil {
		header = resp.Headers.Clone()
	}
	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       resp.Body,
	}, nil
}
