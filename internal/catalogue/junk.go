package catalogue

import (
	"strings"

	"bookproxy/internal/pressbooks"
)

var (
	junkSlugKeywords = []string{
		"sandbox", "sample", "test", "demo", "h5p", "hypothesis", "import", "workshop",
		"template", "training", "trial", "temp", "-dev", "devsite", "dev2",
	}
	junkTitleKeywords = []string{
		"sandbox", "sample", "testbook", "test book", "demo book", "workshop", "template",
		"dev site", "dev 2",
	}
)

// IsJunk reports whether b looks like a sandbox, test or training book rather than
// a real publication. Books flagged for the official catalogue are never junk.
func IsJunk(b *pressbooks.Book, baseDomain string) bool {
	if b.InOfficialCatalogue() {
		return false
	}

	slug := strings.ToLower(b.Link)
	slug = strings.TrimPrefix(slug, "https://")
	slug = strings.TrimPrefix(slug, "http://")
	if baseDomain != "" {
		slug = strings.ReplaceAll(slug, strings.ToLower(baseDomain), "")
	}

	if containsAny(slug, junkSlugKeywords) {
		return true
	}

	return containsAny(strings.ToLower(b.Metadata.Name), junkTitleKeywords)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}

	return false
}
