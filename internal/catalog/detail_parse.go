package catalog

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/lepinkainen/qidianmeta/internal/book"
	qerrors "github.com/lepinkainen/qidianmeta/internal/errors"
	"github.com/lepinkainen/qidianmeta/internal/identifier"
)

// Selectors are listed newest layout first; the og:novel meta tags are the most stable.
var (
	titleSelectors  = []string{`meta[property="og:novel:book_name"]`, "h1#bookName", "em#bookName"}
	authorSelectors = []string{`meta[property="og:novel:author"]`, "a.writer-name", "a.writer"}
	introSelectors  = []string{"#book-intro-detail", "div.book-intro"}
	tagSelectors    = []string{`meta[property="og:novel:category"]`, "p.all-label a", "p.tag a.red"}
)

var publishDateLayouts = []string{time.DateOnly, time.DateTime, "2006-01-02 15:04"}

// ParseDetail parses a book detail page into a Record. Fields the page does not
// carry stay nil. A page without a title is a MalformedResponseError.
// CoverURL is left for the caller since it does not come from the page.
func ParseDetail(nativeID string, raw []byte) (*book.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, qerrors.NewMalformedResponseError("detail", err.Error())
	}

	title := firstValue(doc, titleSelectors)
	if title == "" {
		return nil, qerrors.NewMalformedResponseError("detail", fmt.Sprintf("no book title on page for %s", nativeID))
	}

	rec := &book.Record{
		NativeID:  nativeID,
		Title:     title,
		Authors:   []string{},
		Publisher: Publisher,
		Language:  Language,
		URL:       identifier.BookURL(nativeID),
	}

	if author := firstValue(doc, authorSelectors); author != "" {
		rec.Authors = append(rec.Authors, author)
	}

	rec.Tags = book.MergeTags(nil, allValues(doc, tagSelectors))

	if desc, err := description(doc); err != nil {
		return nil, err
	} else if desc != "" {
		rec.Description = &desc
	}

	if score, ok, err := rating(doc); err != nil {
		return nil, err
	} else if ok {
		rec.Rating = &score
	}

	if published, ok := publishDate(doc); ok {
		rec.PublishDate = &published
	}

	return rec, nil
}

// selectionValue is the content attribute for meta tags and the text otherwise.
func selectionValue(s *goquery.Selection) string {
	if goquery.NodeName(s) == "meta" {
		return strings.TrimSpace(s.AttrOr("content", ""))
	}
	return strings.TrimSpace(s.Text())
}

func firstValue(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if v := selectionValue(doc.Find(sel).First()); v != "" {
			return v
		}
	}
	return ""
}

func allValues(doc *goquery.Document, selectors []string) []string {
	var values []string
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if v := selectionValue(s); v != "" {
				values = append(values, v)
			}
		})
	}
	return values
}

// description keeps the intro block as HTML. The og:description text is the fallback.
func description(doc *goquery.Document) (string, error) {
	for _, sel := range introSelectors {
		intro := doc.Find(sel).First()
		if intro.Length() == 0 || strings.TrimSpace(intro.Text()) == "" {
			continue
		}
		html, err := goquery.OuterHtml(intro)
		if err != nil {
			return "", qerrors.NewMalformedResponseError("detail", "rendering intro: "+err.Error())
		}
		return strings.TrimSpace(html), nil
	}
	return selectionValue(doc.Find(`meta[property="og:description"]`).First()), nil
}

// rating reads the 10-point score split over #score1 (integer part) and
// #score2 (tenths) and maps it onto 0-5.
func rating(doc *goquery.Document) (float64, bool, error) {
	whole := strings.TrimSpace(doc.Find("#score1").First().Text())
	if whole == "" {
		return 0, false, nil
	}

	text := whole
	if frac := strings.TrimSpace(doc.Find("#score2").First().Text()); frac != "" {
		text += "." + frac
	}

	score, err := strconv.ParseFloat(text, 64)
	if err != nil || score < 0 || score > 10 {
		return 0, false, qerrors.NewMalformedResponseError("detail", fmt.Sprintf("bad score %q", text))
	}
	return score / 2, true, nil
}

func publishDate(doc *goquery.Document) (time.Time, bool) {
	value := selectionValue(doc.Find(`meta[itemprop="datePublished"]`).First())
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range publishDateLayouts {
		if t, err := time.ParseInLocation(layout, value, chinaTime); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// chinaTime is the catalog's fixed UTC+8 zone.
var chinaTime = time.FixedZone("CST", 8*60*60)
