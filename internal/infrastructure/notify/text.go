// Package notify delivers poll notifications.
package notify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText extracts the visible text of an HTML fragment and collapses
// runs of whitespace. Input that fails to parse is returned trimmed.
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
