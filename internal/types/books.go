package types

// CatalogueEntry is one publication of the upstream network, as served to the tools.
type CatalogueEntry struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Author      string `json:"author"`
	License     string `json:"license"`
	Subject     string `json:"subject"`
	InCatalog   bool   `json:"inCatalog"`
	WordCount   int    `json:"wordCount"`
	LastUpdated string `json:"lastUpdated"`
}

type TocChapter struct {
	Id        int    `json:"id"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Link      string `json:"link"`
	WordCount int    `json:"wordCount"`
}

type TocPart struct {
	Id       int          `json:"id"`
	Title    string       `json:"title"`
	Chapters []TocChapter `json:"chapters"`
}

type ChapterContent struct {
	Id        int    `json:"id"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	WordCount int    `json:"wordCount"`
	Text      string `json:"text"`
}

type ExternalPageExtract struct {
	Url       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	WordCount int    `json:"wordCount"`
}
