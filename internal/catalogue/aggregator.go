// Package catalogue builds the cleaned, sorted view of the network's book listing.
package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"bookproxy/internal/errs"
	"bookproxy/internal/metrics"
	"bookproxy/internal/pressbooks"
	"bookproxy/internal/types"
)

const (
	DefaultConcurrency  = 8
	UntitledPlaceholder = "Untitled"
)

// Source is the paginated upstream listing.
type Source interface {
	BooksPage(ctx context.Context, page int) ([]pressbooks.Book, int, error)
	BaseDomain() string
}

type Aggregator struct {
	source      Source
	cache       *Cache
	concurrency int
	logger      *slog.Logger

	refresh singleflight.Group
}

func NewAggregator(source Source, cache *Cache, concurrency int, logger *slog.Logger) *Aggregator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	return &Aggregator{
		source:      source,
		cache:       cache,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ListBooks returns the catalogue sorted by title. Unless includeAll is set, junk is
// filtered out and the result is served from and stored in the cache.
//
// Concurrent filtered misses share one upstream aggregation, which keeps running
// when the caller that started it goes away.
func (a *Aggregator) ListBooks(ctx context.Context, includeAll bool) ([]types.CatalogueEntry, error) {
	if includeAll {
		return a.aggregate(ctx, true)
	}

	if entries, ok := a.cache.Get(); ok {
		metrics.CatalogueCache.WithLabelValues("hit").Inc()
		return entries, nil
	}
	metrics.CatalogueCache.WithLabelValues("miss").Inc()

	detached := context.WithoutCancel(ctx)
	ch := a.refresh.DoChan("filtered", func() (any, error) {
		// a flight that just finished may have filled it
		if entries, ok := a.cache.Get(); ok {
			return entries, nil
		}

		entries, err := a.aggregate(detached, false)
		if err != nil {
			return nil, err
		}

		a.cache.Set(entries)
		return entries, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.([]types.CatalogueEntry), nil
	}
}

func (a *Aggregator) aggregate(ctx context.Context, includeAll bool) ([]types.CatalogueEntry, error) {
	start := time.Now()

	books, pages, err := a.fetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}

	baseDomain := a.source.BaseDomain()
	entries := make([]types.CatalogueEntry, 0, len(books))
	for i := range books {
		if !includeAll && IsJunk(&books[i], baseDomain) {
			continue
		}

		entries = append(entries, toEntry(&books[i]))
	}

	sortByTitle(entries)

	a.logger.Info("Catalogue aggregated",
		slog.Int("pages", pages),
		slog.Int("records", len(books)),
		slog.Int("entries", len(entries)),
		slog.Bool("include_all", includeAll),
		slog.Duration("took", time.Since(start)))

	return entries, nil
}

// fetchAll reads page 1 to learn the page count, then the remaining pages concurrently.
// An empty page marks the end of data: pages after it are neither started nor kept.
// Records come back in page order. The second result is the number of pages kept.
func (a *Aggregator) fetchAll(ctx context.Context) ([]pressbooks.Book, int, error) {
	first, total, err := a.source.BooksPage(ctx, 1)
	if err != nil {
		return nil, 0, err
	}
	metrics.CataloguePages.Inc()

	if len(first) == 0 {
		return nil, 1, nil
	}

	if total <= 1 {
		return first, 1, nil
	}

	if total > pressbooks.MaxPages {
		e := errs.UpstreamFailure("catalogue page 1", fmt.Errorf("declared %d pages, at most %d allowed", total, pressbooks.MaxPages))
		e.Page = 1
		return nil, 0, e
	}

	pages := make([][]pressbooks.Book, total+1)
	pages[1] = first
	failed := make([]error, total+1)

	// pages >= stopAt are past the end of data
	var stopAt atomic.Int64
	stopAt.Store(int64(total) + 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for p := 2; p <= total; p++ {
		if int64(p) > stopAt.Load() {
			break
		}

		p := p
		g.Go(func() error {
			if int64(p) > stopAt.Load() {
				return nil
			}

			books, _, err := a.source.BooksPage(gctx, p)
			if err != nil {
				// past an empty page the result no longer needs it
				if int64(p) > stopAt.Load() {
					return nil
				}

				failed[p] = err
				return err
			}
			metrics.CataloguePages.Inc()

			if len(books) == 0 {
				a.logger.Warn(fmt.Sprintf("Catalogue page %d of %d is empty, treating as end of data", p, total))
				lowerTo(&stopAt, int64(p))
				return nil
			}

			pages[p] = books
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if err = keptPageError(failed, stopAt.Load(), err); err != nil {
			return nil, 0, err
		}
	}

	last := int(stopAt.Load()) - 1
	if last > total {
		last = total
	}

	var books []pressbooks.Book
	for p := 1; p <= last; p++ {
		books = append(books, pages[p]...)
	}

	return books, last, nil
}

// keptPageError picks the failure of the lowest page before stopAt. Failures of pages
// past an empty one are dropped. Cancelled fetches are inconclusive, so first is kept for them.
func keptPageError(failed []error, stopAt int64, first error) error {
	cancelled := false
	for p := 2; p < len(failed) && int64(p) < stopAt; p++ {
		switch {
		case failed[p] == nil:
		case errors.Is(failed[p], context.Canceled):
			cancelled = true
		default:
			return failed[p]
		}
	}

	if cancelled {
		return first
	}

	return nil
}

func lowerTo(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n >= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

func toEntry(b *pressbooks.Book) types.CatalogueEntry {
	title := strings.TrimSpace(b.Metadata.Name)
	if title == "" {
		title = UntitledPlaceholder
	}

	license := strings.TrimSpace(b.Metadata.License.Code)
	if license == "" {
		license = strings.TrimSpace(b.Metadata.License.Name)
	}

	return types.CatalogueEntry{
		Id:          string(b.Id),
		Title:       title,
		Link:        strings.TrimSuffix(b.Link, "/"),
		Author:      joinNames(b.Metadata.Author),
		License:     license,
		Subject:     joinNames(b.Metadata.About),
		InCatalog:   b.InOfficialCatalogue(),
		WordCount:   int(b.Metadata.WordCount),
		LastUpdated: b.Metadata.DateModified,
	}
}

func joinNames(ns []pressbooks.Named) string {
	names := make([]string, 0, len(ns))
	for _, n := range ns {
		if name := strings.TrimSpace(n.Name); name != "" {
			names = append(names, name)
		}
	}

	return strings.Join(names, ", ")
}

// sortByTitle orders entries by English collation, keeping discovery order for ties.
func sortByTitle(entries []types.CatalogueEntry) {
	c := collate.New(language.English)

	sort.SliceStable(entries, func(i, j int) bool {
		return c.CompareString(entries[i].Title, entries[j].Title) < 0
	})
}
