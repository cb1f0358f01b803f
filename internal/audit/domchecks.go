package audit

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Check categories; each maps to one score bucket.
const (
	CategoryAccessibility = "accessibility"
	CategorySEO           = "seo"
	CategoryBestPractices = "best-practices"
)

// RunChecks inspects the rendered HTML and returns the outcome of every
// DOM check plus the document's element count. Passing checks are included
// so the full report records what was examined, not only what failed.
func RunChecks(html []byte) ([]Check, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, 0, fmt.Errorf("parse document: %w", err)
	}

	checks := []Check{
		checkImageAlt(doc),
		checkHTMLLang(doc),
		checkLinkText(doc),
		checkControlLabels(doc),
		checkDocumentTitle(doc),
		checkMetaDescription(doc),
		checkHeadline(doc),
		checkCanonical(doc),
		checkViewport(doc),
		checkDeprecatedElements(doc),
		checkNoopener(doc),
	}
	return checks, doc.Find("*").Length(), nil
}

func checkImageAlt(doc *goquery.Document) Check {
	missing := 0
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			missing++
		}
	})
	return Check{
		ID:       "image-alt",
		Title:    "Images have alternative text",
		Category: CategoryAccessibility,
		Passed:   missing == 0,
		Count:    missing,
	}
}

func checkHTMLLang(doc *goquery.Document) Check {
	lang, _ := doc.Find("html").First().Attr("lang")
	return Check{
		ID:       "html-lang",
		Title:    "Document has a lang attribute",
		Category: CategoryAccessibility,
		Passed:   strings.TrimSpace(lang) != "",
	}
}

func checkLinkText(doc *goquery.Document) Check {
	empty := 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) != "" {
			return
		}
		if label, ok := s.Attr("aria-label"); ok && strings.TrimSpace(label) != "" {
			return
		}
		if s.Find("img[alt]").Length() > 0 {
			return
		}
		empty++
	})
	return Check{
		ID:       "link-text",
		Title:    "Links have discernible text",
		Category: CategoryAccessibility,
		Passed:   empty == 0,
		Count:    empty,
	}
}

func checkControlLabels(doc *goquery.Document) Check {
	labeled := make(map[string]struct{})
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("for"); ok {
			labeled[id] = struct{}{}
		}
	})

	unlabeled := 0
	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		switch strings.ToLower(typ) {
		case "hidden", "submit", "button", "reset", "image":
			return
		}
		if label, ok := s.Attr("aria-label"); ok && strings.TrimSpace(label) != "" {
			return
		}
		if id, ok := s.Attr("id"); ok {
			if _, found := labeled[id]; found {
				return
			}
		}
		if s.ParentsFiltered("label").Length() > 0 {
			return
		}
		unlabeled++
	})
	return Check{
		ID:       "control-labels",
		Title:    "Form controls have associated labels",
		Category: CategoryAccessibility,
		Passed:   unlabeled == 0,
		Count:    unlabeled,
	}
}

func checkDocumentTitle(doc *goquery.Document) Check {
	title := strings.TrimSpace(doc.Find("head title").First().Text())
	return Check{
		ID:       "document-title",
		Title:    "Document has a title element",
		Category: CategorySEO,
		Passed:   title != "",
		Detail:   title,
	}
}

func checkMetaDescription(doc *goquery.Document) Check {
	content, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	return Check{
		ID:       "meta-description",
		Title:    "Document has a meta description",
		Category: CategorySEO,
		Passed:   strings.TrimSpace(content) != "",
	}
}

func checkHeadline(doc *goquery.Document) Check {
	count := doc.Find("h1").Length()
	return Check{
		ID:       "headline",
		Title:    "Page has a top-level heading",
		Category: CategorySEO,
		Passed:   count > 0,
		Count:    count,
	}
}

func checkCanonical(doc *goquery.Document) Check {
	href, _ := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	return Check{
		ID:       "canonical",
		Title:    "Document declares a canonical URL",
		Category: CategorySEO,
		Passed:   strings.TrimSpace(href) != "",
	}
}

func checkViewport(doc *goquery.Document) Check {
	content, _ := doc.Find(`meta[name="viewport"]`).First().Attr("content")
	return Check{
		ID:       "viewport",
		Title:    "Document has a viewport meta tag",
		Category: CategoryBestPractices,
		Passed:   strings.TrimSpace(content) != "",
	}
}

func checkDeprecatedElements(doc *goquery.Document) Check {
	count := doc.Find("marquee, font, center, blink").Length()
	return Check{
		ID:       "deprecated-elements",
		Title:    "Avoids deprecated HTML elements",
		Category: CategoryBestPractices,
		Passed:   count == 0,
		Count:    count,
	}
}

func checkNoopener(doc *goquery.Document) Check {
	unsafe := 0
	doc.Find(`a[target="_blank"]`).Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		rel = strings.ToLower(rel)
		if !strings.Contains(rel, "noopener") && !strings.Contains(rel, "noreferrer") {
			unsafe++
		}
	})
	return Check{
		ID:       "rel-noopener",
		Title:    "External links opened in new tabs use rel=noopener",
		Category: CategoryBestPractices,
		Passed:   unsafe == 0,
		Count:    unsafe,
	}
}
