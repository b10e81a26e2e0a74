package pressbooks

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ID is an opaque upstream identifier, sent either as a JSON number or a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	*id = ID(b)
	return nil
}

// Count is a non-negative integer that upstream sometimes sends as a string.
// Anything unparseable decodes to 0.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		*c = 0
		return nil
	}

	*c = Count(n)
	return nil
}

type Named struct {
	Name string `json:"name"`
}

// License is either an object with code and name or a bare string.
type License struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (l *License) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = License{Name: s}
		return nil
	}

	if len(b) == 0 || b[0] != '{' {
		*l = License{}
		return nil
	}

	type plain License
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}

	*l = License(p)
	return nil
}

type Metadata struct {
	Name         string  `json:"name"`
	Author       []Named `json:"author"`
	License      License `json:"license"`
	About        []Named `json:"about"`
	InCatalog    bool    `json:"inCatalog"`
	WordCount    Count   `json:"wordCount"`
	DateModified string  `json:"dateModified"`
}

// Book is one raw record of the network catalogue listing.
type Book struct {
	Id        ID       `json:"id"`
	Link      string   `json:"link"`
	InCatalog bool     `json:"inCatalog"`
	Metadata  Metadata `json:"metadata"`
}

// InOfficialCatalogue reports the curated always-include flag, wherever upstream put it.
func (b *Book) InOfficialCatalogue() bool {
	return b.InCatalog || b.Metadata.InCatalog
}

type TocChapter struct {
	Id             int    `json:"id"`
	Title          string `json:"title"`
	Slug           string `json:"slug"`
	Link           string `json:"link"`
	Status         string `json:"status"`
	HasPostContent bool   `json:"has_post_content"`
	WordCount      Count  `json:"word_count"`
}

type TocPart struct {
	Id       int          `json:"id"`
	Title    string       `json:"title"`
	Link     string       `json:"link"`
	Chapters []TocChapter `json:"chapters"`
}

type Toc struct {
	Parts []TocPart `json:"parts"`
}

type Rendered struct {
	Rendered string `json:"rendered"`
}

type Chapter struct {
	Id      int      `json:"id"`
	Link    string   `json:"link"`
	Title   Rendered `json:"title"`
	Content Rendered `json:"content"`
}
