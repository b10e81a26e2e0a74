// Package content serves the table of contents and chapter text of books hosted on the network.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"bookproxy/internal/errs"
	"bookproxy/internal/extract"
	"bookproxy/internal/pressbooks"
	"bookproxy/internal/types"
)

const (
	statusPublish = "publish"

	UntitledPlaceholder = "Untitled"
)

// Upstream is the per-book part of the Pressbooks API.
type Upstream interface {
	Toc(ctx context.Context, bookURL *url.URL) (*pressbooks.Toc, error)
	Chapter(ctx context.Context, bookURL *url.URL, id int) (*pressbooks.Chapter, error)
}

type Retriever struct {
	upstream   Upstream
	baseDomain string
	logger     *slog.Logger
}

// NewRetriever creates a retriever that only talks to baseDomain and its direct subdomains.
func NewRetriever(upstream Upstream, baseDomain string, logger *slog.Logger) *Retriever {
	return &Retriever{
		upstream:   upstream,
		baseDomain: strings.ToLower(strings.TrimSuffix(baseDomain, ".")),
		logger:     logger,
	}
}

// ValidateBookURL parses raw and checks that it points to a trusted book host.
func (r *Retriever) ValidateBookURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errs.Validation("bookUrl is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errs.Validation("bookUrl is not a valid URL")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errs.Validation("bookUrl must use http or https")
	}

	if !r.trustedHost(u.Hostname()) {
		return nil, errs.Validation("bookUrl host is not a trusted book host: %s", u.Hostname())
	}

	return u, nil
}

// trustedHost accepts the base domain itself or a single label directly under it.
func (r *Retriever) trustedHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || r.baseDomain == "" {
		return false
	}

	if host == r.baseDomain {
		return true
	}

	label, ok := strings.CutSuffix(host, "."+r.baseDomain)
	return ok && label != "" && !strings.Contains(label, ".")
}

// GetToc returns the published parts and chapters of the book at bookURL.
func (r *Retriever) GetToc(ctx context.Context, bookURL string) ([]types.TocPart, error) {
	u, err := r.ValidateBookURL(bookURL)
	if err != nil {
		return nil, err
	}

	toc, err := r.upstream.Toc(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("getting toc: %w", err)
	}

	parts := make([]types.TocPart, 0, len(toc.Parts))
	for _, p := range toc.Parts {
		var chapters []types.TocChapter
		for _, ch := range p.Chapters {
			if ch.Status != statusPublish || !ch.HasPostContent {
				continue
			}

			chapters = append(chapters, types.TocChapter{
				Id:        ch.Id,
				Title:     ch.Title,
				Slug:      ch.Slug,
				Link:      ch.Link,
				WordCount: int(ch.WordCount),
			})
		}

		if len(chapters) == 0 {
			continue
		}

		parts = append(parts, types.TocPart{Id: p.Id, Title: p.Title, Chapters: chapters})
	}

	r.logger.DebugContext(ctx, "Toc reshaped", slog.String("book", u.String()),
		slog.Int("parts_upstream", len(toc.Parts)), slog.Int("parts", len(parts)))

	return parts, nil
}

// GetChapter returns the plain text of one chapter. chapterId must be a positive integer.
func (r *Retriever) GetChapter(ctx context.Context, bookURL, chapterId string) (*types.ChapterContent, error) {
	u, err := r.ValidateBookURL(bookURL)
	if err != nil {
		return nil, err
	}

	chapterId = strings.TrimSpace(chapterId)
	if chapterId == "" {
		return nil, errs.Validation("chapterId is required")
	}

	id, err := strconv.Atoi(chapterId)
	if err != nil || id < 1 {
		return nil, errs.Validation("chapterId must be a positive integer")
	}

	ch, err := r.upstream.Chapter(ctx, u, id)
	if err != nil {
		return nil, fmt.Errorf("getting chapter: %w", err)
	}

	title := extract.Title(ch.Title.Rendered)
	if title == "" {
		title = UntitledPlaceholder
	}

	text := extract.Text(ch.Content.Rendered)

	return &types.ChapterContent{
		Id:        id,
		Title:     title,
		Link:      ch.Link,
		WordCount: extract.WordCount(text),
		Text:      text,
	}, nil
}
