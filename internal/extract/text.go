// Package extract turns upstream HTML into plain text.
//
// The conversion is regexp based and order sensitive: block tags become newlines
// before the remaining tags are stripped, and entities are decoded only after all tags are gone.
package extract

import (
	"regexp"
	"strings"
)

var (
	regScript   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	regStyle    = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	regBlockTag = regexp.MustCompile(`(?i)</?(?:p|div|h[1-6]|li|blockquote|tr|br)\b[^>]*>`)
	regAnyTag   = regexp.MustCompile(`<[^>]*>`)
	regNewlines = regexp.MustCompile(`\n{3,}`)
	regSpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// Only these entities are decoded, anything else is kept verbatim.
var entities = strings.NewReplacer(
	"&amp;", "&", "&#38;", "&",
	"&lt;", "<", "&#60;", "<",
	"&gt;", ">", "&#62;", ">",
	"&quot;", `"`, "&#34;", `"`,
	"&#39;", "'", "&#039;", "'",
	"&nbsp;", " ", "&#160;", " ",
	"&ndash;", "–", "&#8211;", "–",
	"&mdash;", "—", "&#8212;", "—",
	"&lsquo;", "‘", "&#8216;", "‘",
	"&rsquo;", "’", "&#8217;", "’",
	"&ldquo;", "“", "&#8220;", "“",
	"&rdquo;", "”", "&#8221;", "”",
)

var titleEntities = strings.NewReplacer(
	"&amp;", "&",
	"&ndash;", "–", "&#8211;", "–",
)

// Text converts raw HTML into normalized plain text.
func Text(html string) string {
	s := regScript.ReplaceAllString(html, "")
	s = regStyle.ReplaceAllString(s, "")
	s = regBlockTag.ReplaceAllString(s, "\n")
	s = regAnyTag.ReplaceAllString(s, "")
	s = entities.Replace(s)
	s = regNewlines.ReplaceAllString(s, "\n\n")
	s = regSpaces.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// Title strips every tag from a rendered title and decodes only ampersands and en dashes.
func Title(html string) string {
	s := regAnyTag.ReplaceAllString(html, "")
	s = titleEntities.Replace(s)

	return strings.TrimSpace(s)
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}
