package crawl

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks parses an HTML document and returns the raw href values of
// its anchors. Empty hrefs and pure fragments are dropped; everything else
// is returned untouched for the normalizer to judge. Duplicates are kept so
// the frontier can account for them.
func ExtractLinks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		links = append(links, href)
	})
	return links, nil
}

// looksLikeHTML reports whether a response is worth parsing for links. An
// empty content type is given the benefit of the doubt.
func looksLikeHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
