// Package opds renders the catalogue as an OPDS 1 acquisition feed.
package opds

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/opds-community/libopds2-go/opds1"

	"bookproxy/internal/types"
)

const (
	FeedId = "urn:bookproxy:catalogue"

	linkTypeAcquisition = "application/atom+xml;profile=opds-catalog;kind=acquisition"
	linkTypeHtml        = "text/html"
	linkRelSelf         = "self"
	linkRelStart        = "start"
	linkRelAlternate    = "alternate"
	linkRelOpenAccess   = "http://opds-spec.org/acquisition/open-access"

	entryIdTemplate = "urn:bookproxy:book:%s"
)

type atomFeed struct {
	XMLName xml.Name `xml:"http://www.w3.org/2005/Atom feed"`
	Updated string   `xml:"updated"`
	opds1.Feed
}

// CatalogueFeed renders entries as an Atom document. self is the feed's own URL.
func CatalogueFeed(entries []types.CatalogueEntry, self string, now time.Time) ([]byte, error) {
	feed := atomFeed{
		Updated: now.UTC().Format(time.RFC3339),
		Feed: opds1.Feed{
			ID:    FeedId,
			Title: "Catalogue",
			Links: []opds1.Link{
				{Rel: linkRelSelf, Href: self, TypeLink: linkTypeAcquisition},
				{Rel: linkRelStart, Href: self, TypeLink: linkTypeAcquisition},
			},
			Entries: make([]opds1.Entry, 0, len(entries)),
		},
	}

	for _, e := range entries {
		feed.Entries = append(feed.Entries, toEntry(e))
	}

	bs, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling opds feed: %w", err)
	}

	return append([]byte(xml.Header), bs...), nil
}

func toEntry(e types.CatalogueEntry) opds1.Entry {
	entry := opds1.Entry{
		ID:    fmt.Sprintf(entryIdTemplate, e.Id),
		Title: e.Title,
		Links: []opds1.Link{
			{Rel: linkRelAlternate, Href: e.Link, TypeLink: linkTypeHtml},
			{Rel: linkRelOpenAccess, Href: e.Link, TypeLink: linkTypeHtml},
		},
	}

	for _, name := range splitNames(e.Author) {
		entry.Author = append(entry.Author, opds1.Author{Name: name})
	}

	for _, subject := range splitNames(e.Subject) {
		entry.Category = append(entry.Category, opds1.Category{Term: subject})
	}

	var summary []string
	if e.License != "" {
		summary = append(summary, "License: "+e.License)
	}
	if e.WordCount > 0 {
		summary = append(summary, fmt.Sprintf("%d words", e.WordCount))
	}
	if e.LastUpdated != "" {
		summary = append(summary, "Updated "+e.LastUpdated)
	}
	entry.Content.Content = strings.Join(summary, ". ")

	return entry
}

func splitNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	return names
}
