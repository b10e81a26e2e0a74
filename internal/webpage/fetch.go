// Package webpage fetches arbitrary external pages and extracts their readable text.
package webpage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	goreadability "github.com/go-shiori/go-readability"

	"bookproxy/internal/errs"
	"bookproxy/internal/extract"
	"bookproxy/internal/metrics"
	"bookproxy/internal/types"
)

const (
	DefaultTimeout  = 12 * time.Second
	DefaultMaxBytes = 5 << 20

	maxRedirects = 5
	minTextChars = 20
	userAgent    = "Mozilla/5.0 (compatible; bookproxy/1.0)"
)

var (
	regTitle = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

	allowedContentTypes = []string{"text/html", "text/plain", "application/xhtml"}
)

type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger

	isBlocked func(host string) bool
}

func NewFetcher(timeout time.Duration, maxBytes int64, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	f := &Fetcher{
		timeout:   timeout,
		maxBytes:  maxBytes,
		logger:    logger,
		isBlocked: IsBlockedHost,
	}

	f.client = &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: f.checkRedirect,
	}

	return f
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errs.UpstreamFailure("page", fmt.Errorf("stopped after %d redirects", maxRedirects))
	}

	if f.isBlocked(req.URL.Hostname()) {
		return errs.BlockedHost(req.URL.Hostname())
	}

	return nil
}

// IsBlockedHost reports whether host is a loopback or private-network name.
// It looks at the name only and does not resolve it.
func IsBlockedHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	if strings.HasPrefix(host, "localhost") ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(host, "10.") ||
		strings.HasPrefix(host, "192.168.") {
		return true
	}

	if rest, ok := strings.CutPrefix(host, "172."); ok {
		octet, _, _ := strings.Cut(rest, ".")
		n, err := strconv.Atoi(octet)
		return err == nil && n >= 16 && n <= 31
	}

	return false
}

// FetchURL downloads rawURL and returns its title and plain text.
// With readerMode set, the main article is isolated before text extraction.
func (f *Fetcher) FetchURL(ctx context.Context, rawURL string, readerMode bool) (*types.ExternalPageExtract, error) {
	u, err := f.validate(rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errs.Validation("url is not valid")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	res, err := f.client.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("page", "error").Inc()
		return nil, f.transportError(ctx, u, err)
	}
	defer res.Body.Close()

	metrics.UpstreamRequests.WithLabelValues("page", strconv.Itoa(res.StatusCode)).Inc()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, errs.UpstreamStatus("page", res.StatusCode)
	}

	contentType := res.Header.Get("Content-Type")
	if !allowedContentType(contentType) {
		return nil, errs.UnsupportedContent(contentType)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, f.maxBytes))
	if err != nil {
		return nil, f.transportError(ctx, u, err)
	}

	if int64(len(body)) == f.maxBytes {
		f.logger.DebugContext(ctx, "Page body truncated", slog.String("url", u.String()), slog.Int64("max_bytes", f.maxBytes))
	}

	finalURL := res.Request.URL
	doc := string(body)

	title := pageTitle(doc)

	if readerMode && !strings.Contains(strings.ToLower(contentType), "text/plain") {
		article, err := goreadability.FromReader(bytes.NewReader(body), finalURL)
		switch {
		case err != nil:
			f.logger.DebugContext(ctx, "Reader mode failed, using full document: "+err.Error(), slog.String("url", finalURL.String()))
		case strings.TrimSpace(article.Content) == "":
			f.logger.DebugContext(ctx, "Reader mode found no article, using full document", slog.String("url", finalURL.String()))
		default:
			doc = article.Content
			if title == "" {
				title = strings.TrimSpace(article.Title)
			}
		}
	}

	if title == "" {
		title = u.Hostname()
	}

	text := extract.Text(doc)
	if utf8.RuneCountInString(text) < minTextChars {
		return nil, errs.NoContent()
	}

	return &types.ExternalPageExtract{
		Url:       finalURL.String(),
		Title:     title,
		Text:      text,
		WordCount: extract.WordCount(text),
	}, nil
}

func (f *Fetcher) validate(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errs.Validation("url is required")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.Validation("url is not valid")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errs.Validation("url must use http or https")
	}

	if u.Hostname() == "" {
		return nil, errs.Validation("url has no host")
	}

	if f.isBlocked(u.Hostname()) {
		return nil, errs.BlockedHost(u.Hostname())
	}

	return u, nil
}

func (f *Fetcher) transportError(ctx context.Context, u *url.URL, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}

	var ne net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.As(err, &ne) && ne.Timeout() {
		f.logger.InfoContext(ctx, "Page fetch timed out", slog.String("url", u.String()))
		return errs.Timeout(err)
	}

	return errs.UpstreamFailure("page", err)
}

func allowedContentType(ct string) bool {
	ct = strings.ToLower(ct)
	for _, allowed := range allowedContentTypes {
		if strings.Contains(ct, allowed) {
			return true
		}
	}

	return false
}

func pageTitle(doc string) string {
	m := regTitle.FindStringSubmatch(doc)
	if m == nil {
		return ""
	}

	return extract.Title(m[1])
}
