// Package pressbooks talks to the REST API of a Pressbooks network and its books.
package pressbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bookproxy/internal/errs"
	"bookproxy/internal/metrics"
)

const (
	pathBooks   = "/wp-json/pressbooks/v2/books"
	pathToc     = "/wp-json/pressbooks/v2/toc"
	pathChapter = "/wp-json/pressbooks/v2/chapters/"

	headerTotalPages = "X-WP-TotalPages"
	userAgent        = "bookproxy/1.0"

	// upstream JSON documents are small, anything larger is a broken upstream
	maxBodyBytes = 32 << 20
)

// MaxPages bounds the page count a catalogue listing may declare.
const MaxPages = 1000

type Client struct {
	http    *http.Client
	logger  *slog.Logger
	base    *url.URL
	perPage int
}

// NewClient creates a client for the network rooted at baseURL.
// A nil httpClient means http.DefaultClient.
func NewClient(httpClient *http.Client, baseURL string, perPage int, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute http(s): %q", baseURL)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if perPage < 1 {
		perPage = 10
	}

	return &Client{
		http:    httpClient,
		logger:  logger,
		base:    base,
		perPage: perPage,
	}, nil
}

// BaseDomain is the hostname of the network, used to recognise its books.
func (c *Client) BaseDomain() string {
	return strings.ToLower(c.base.Hostname())
}

// BooksPage fetches one page (1-based) of the network catalogue listing
// together with the total page count the upstream declares.
func (c *Client) BooksPage(ctx context.Context, page int) ([]Book, int, error) {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + pathBooks
	u.RawQuery = url.Values{
		"per_page": {strconv.Itoa(c.perPage)},
		"page":     {strconv.Itoa(page)},
	}.Encode()

	var books []Book
	header, err := c.getJson(ctx, &u, "catalogue", fmt.Sprintf("catalogue page %d", page), &books)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			e.Page = page
		}

		return nil, 0, fmt.Errorf("fetching catalogue page %d: %w", page, err)
	}

	total, err := totalPages(header)
	if err != nil {
		c.logger.Warn("Rejecting catalogue page count: " + err.Error())

		e := errs.UpstreamFailure(fmt.Sprintf("catalogue page %d", page), err)
		e.Page = page
		return nil, 0, fmt.Errorf("fetching catalogue page %d: %w", page, e)
	}

	return books, total, nil
}

// Toc fetches the table of contents of the book at bookURL.
func (c *Client) Toc(ctx context.Context, bookURL *url.URL) (*Toc, error) {
	var toc Toc
	_, err := c.getJson(ctx, bookEndpoint(bookURL, pathToc), "book", "book host", &toc)
	if err != nil {
		return nil, fmt.Errorf("fetching toc: %w", err)
	}

	return &toc, nil
}

// Chapter fetches a single chapter of the book at bookURL.
func (c *Client) Chapter(ctx context.Context, bookURL *url.URL, id int) (*Chapter, error) {
	var ch Chapter
	_, err := c.getJson(ctx, bookEndpoint(bookURL, pathChapter+strconv.Itoa(id)), "book", "book host", &ch)
	if err != nil {
		return nil, fmt.Errorf("fetching chapter %d: %w", id, err)
	}

	return &ch, nil
}

func (c *Client) getJson(ctx context.Context, u *url.URL, metric, target string, dst any) (http.Header, error) {
	c.logger.Debug("Fetching " + u.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	res, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(metric, "error").Inc()
		c.logger.Warn("Failed to fetch " + u.String() + ": " + err.Error())
		return nil, errs.UpstreamFailure(target, err)
	}
	defer res.Body.Close()

	metrics.UpstreamRequests.WithLabelValues(metric, strconv.Itoa(res.StatusCode)).Inc()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		c.logger.Warn("Unexpected status from "+u.String(), slog.Int("status", res.StatusCode))
		return nil, errs.UpstreamStatus(target, res.StatusCode)
	}

	err = json.NewDecoder(io.LimitReader(res.Body, maxBodyBytes)).Decode(dst)
	if err != nil {
		return nil, errs.UpstreamFailure(target, fmt.Errorf("decoding response: %w", err))
	}

	return res.Header, nil
}

func bookEndpoint(bookURL *url.URL, path string) *url.URL {
	u := *bookURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	return &u
}

// totalPages reads the declared page count, 1 when missing or unparseable.
func totalPages(h http.Header) (int, error) {
	v := strings.TrimSpace(h.Get(headerTotalPages))

	n, err := strconv.Atoi(v)
	switch {
	case errors.Is(err, strconv.ErrRange), err == nil && n > MaxPages:
		return 0, fmt.Errorf("%s %q exceeds %d", headerTotalPages, v, MaxPages)
	case err != nil, n < 1:
		return 1, nil
	}

	return n, nil
}
