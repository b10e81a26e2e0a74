package content

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookproxy/internal/errs"
	"bookproxy/internal/pressbooks"
	"bookproxy/internal/types"
)

type fakeUpstream struct {
	toc     *pressbooks.Toc
	chapter *pressbooks.Chapter
	err     error

	calls   int
	lastURL *url.URL
	lastId  int
}

func (f *fakeUpstream) Toc(_ context.Context, bookURL *url.URL) (*pressbooks.Toc, error) {
	f.calls++
	f.lastURL = bookURL
	return f.toc, f.err
}

func (f *fakeUpstream) Chapter(_ context.Context, bookURL *url.URL, id int) (*pressbooks.Chapter, error) {
	f.calls++
	f.lastURL = bookURL
	f.lastId = id
	return f.chapter, f.err
}

func newRetriever(up Upstream) *Retriever {
	return NewRetriever(up, "pressbooks.tru.ca", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidateBookURL(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{"https://pressbooks.tru.ca/biology", true},
		{"http://pressbooks.tru.ca", true},
		{"https://PRESSBOOKS.tru.ca/x", true},
		{"https://open.pressbooks.tru.ca/x", true},
		{"", false},
		{"   ", false},
		{"::not a url", false},
		{"ftp://pressbooks.tru.ca/x", false},
		{"pressbooks.tru.ca/biology", false},
		{"https://evil.com", false},
		{"https://pressbooks.tru.ca.evil.com", false},
		{"https://evilpressbooks.tru.ca", false},
		{"https://a.b.pressbooks.tru.ca", false},
		{"https://tru.ca", false},
	}

	r := newRetriever(&fakeUpstream{})
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := r.ValidateBookURL(tt.raw)
			if tt.ok {
				assert.NoError(t, err)
				return
			}

			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
			assert.Equal(t, http.StatusBadRequest, errs.Status(err))
		})
	}
}

func TestUntrustedHostMakesNoCall(t *testing.T) {
	up := &fakeUpstream{}
	r := newRetriever(up)

	for _, raw := range []string{"https://evil.com", "https://pressbooks.tru.ca.evil.com"} {
		_, err := r.GetToc(context.Background(), raw)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))

		_, err = r.GetChapter(context.Background(), raw, "1")
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	}

	assert.Zero(t, up.calls)
}

func TestGetToc(t *testing.T) {
	up := &fakeUpstream{toc: &pressbooks.Toc{Parts: []pressbooks.TocPart{
		{Id: 1, Title: "Front", Chapters: []pressbooks.TocChapter{
			{Id: 10, Title: "Draft", Status: "draft", HasPostContent: true},
			{Id: 11, Title: "Empty", Status: "publish", HasPostContent: false},
		}},
		{Id: 2, Title: "Main", Chapters: []pressbooks.TocChapter{
			{Id: 20, Title: "Intro", Slug: "intro", Link: "https://pressbooks.tru.ca/bio/chapter/intro", Status: "publish", HasPostContent: true, WordCount: 300},
			{Id: 21, Title: "Private", Status: "private", HasPostContent: true},
			{Id: 22, Title: "Cells", Slug: "cells", Status: "publish", HasPostContent: true},
		}},
		{Id: 3, Title: "No chapters"},
	}}}

	parts, err := newRetriever(up).GetToc(context.Background(), "https://pressbooks.tru.ca/bio")
	require.NoError(t, err)
	assert.Equal(t, []types.TocPart{{
		Id:    2,
		Title: "Main",
		Chapters: []types.TocChapter{
			{Id: 20, Title: "Intro", Slug: "intro", Link: "https://pressbooks.tru.ca/bio/chapter/intro", WordCount: 300},
			{Id: 22, Title: "Cells", Slug: "cells"},
		},
	}}, parts)
	assert.Equal(t, "/bio", up.lastURL.Path)
}

func TestGetTocUpstreamError(t *testing.T) {
	up := &fakeUpstream{err: errs.UpstreamStatus("book host", http.StatusNotFound)}

	_, err := newRetriever(up).GetToc(context.Background(), "https://pressbooks.tru.ca/bio")
	assert.Equal(t, http.StatusBadGateway, errs.Status(err))
	assert.Equal(t, "book host returned status 404", errs.Message(err))
}

func TestGetChapter(t *testing.T) {
	up := &fakeUpstream{chapter: &pressbooks.Chapter{
		Id:      5,
		Link:    "https://pressbooks.tru.ca/bio/chapter/one",
		Title:   pressbooks.Rendered{Rendered: "Ch. 1"},
		Content: pressbooks.Rendered{Rendered: "<p>Hello &amp; welcome</p>"},
	}}

	ch, err := newRetriever(up).GetChapter(context.Background(), "https://pressbooks.tru.ca/bio", "5")
	require.NoError(t, err)
	assert.Equal(t, &types.ChapterContent{
		Id:        5,
		Title:     "Ch. 1",
		Link:      "https://pressbooks.tru.ca/bio/chapter/one",
		WordCount: 3,
		Text:      "Hello & welcome",
	}, ch)
	assert.Equal(t, 5, up.lastId)
}

func TestGetChapterMissingFields(t *testing.T) {
	up := &fakeUpstream{chapter: &pressbooks.Chapter{Id: 9}}

	ch, err := newRetriever(up).GetChapter(context.Background(), "https://pressbooks.tru.ca/bio", "9")
	require.NoError(t, err)
	assert.Equal(t, UntitledPlaceholder, ch.Title)
	assert.Empty(t, ch.Text)
	assert.Zero(t, ch.WordCount)
}

func TestGetChapterStripsTitleTags(t *testing.T) {
	up := &fakeUpstream{chapter: &pressbooks.Chapter{Title: pressbooks.Rendered{Rendered: "<em>Cells</em> &amp; Tissues"}}}

	ch, err := newRetriever(up).GetChapter(context.Background(), "https://pressbooks.tru.ca/bio", "2")
	require.NoError(t, err)
	assert.Equal(t, "Cells & Tissues", ch.Title)
}

func TestGetChapterInvalidId(t *testing.T) {
	up := &fakeUpstream{}
	r := newRetriever(up)

	for _, id := range []string{"", "abc", "0", "-3", "1.5"} {
		_, err := r.GetChapter(context.Background(), "https://pressbooks.tru.ca/bio", id)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err), "chapterId %q", id)
	}

	assert.Zero(t, up.calls)
}

func TestGetChapterTransportError(t *testing.T) {
	up := &fakeUpstream{err: errs.UpstreamFailure("book host", errors.New("connection reset"))}

	_, err := newRetriever(up).GetChapter(context.Background(), "https://pressbooks.tru.ca/bio", "1")
	assert.Equal(t, http.StatusBadGateway, errs.Status(err))
	assert.Equal(t, "book host request failed: connection reset", errs.Message(err))
}
