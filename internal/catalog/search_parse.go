package catalog

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lepinkainen/qidianmeta/internal/book"
	qerrors "github.com/lepinkainen/qidianmeta/internal/errors"
	"github.com/lepinkainen/qidianmeta/internal/identifier"
)

const (
	searchItemSelector = "li.res-book-item"
	// searchPageMarker is present on every search result page, with or without hits.
	searchPageMarker = "#result-list, .no-result, .search-result-empty"

	titleSuffix = "在线阅读"
)

// ParseSearch extracts the candidates of a search result page in catalog order.
// A recognised page without hits yields an empty slice; anything else that
// does not look like a result page is a MalformedResponseError.
func ParseSearch(raw []byte) ([]book.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, qerrors.NewMalformedResponseError("search", err.Error())
	}

	items := doc.Find(searchItemSelector)
	if items.Length() == 0 {
		if doc.Find(searchPageMarker).Length() > 0 {
			return []book.Candidate{}, nil
		}
		return nil, qerrors.NewMalformedResponseError("search", "no result list on page")
	}

	candidates := make([]book.Candidate, 0, items.Length())
	var parseErr error
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		c, err := parseSearchItem(i, item)
		if err != nil {
			parseErr = err
			return false
		}
		candidates = append(candidates, c)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return candidates, nil
}

func parseSearchItem(rank int, item *goquery.Selection) (book.Candidate, error) {
	bid := strings.TrimSpace(item.AttrOr("data-bid", ""))
	if bid == "" {
		return book.Candidate{}, qerrors.NewMalformedResponseError("search", fmt.Sprintf("result %d has no data-bid", rank))
	}
	if err := identifier.Validate(bid); err != nil {
		return book.Candidate{}, qerrors.NewMalformedResponseError("search", fmt.Sprintf("result %d: %v", rank, err))
	}

	link := item.Find("h3.book-info-title a").First()
	title := link.AttrOr("title", "")
	if strings.TrimSpace(title) == "" {
		title = link.Text()
	}
	title = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(title), titleSuffix))
	if title == "" {
		return book.Candidate{}, qerrors.NewMalformedResponseError("search", fmt.Sprintf("result %d (%s) has no title", rank, bid))
	}

	var authors []string
	item.Find("p.author a.name").Each(func(_ int, a *goquery.Selection) {
		if name := strings.TrimSpace(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	return book.Candidate{
		NativeID:     bid,
		Title:        title,
		Authors:      authors,
		ThumbnailURL: imageSource(item.Find(".book-img-box img").First()),
		SearchRank:   rank,
	}, nil
}

// imageSource returns the absolute image URL of img, preferring lazy-load attributes.
func imageSource(img *goquery.Selection) string {
	for _, attr := range []string{"data-src", "src"} {
		if src := strings.TrimSpace(img.AttrOr(attr, "")); src != "" {
			return absoluteURL(src)
		}
	}
	return ""
}

func absoluteURL(src string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}
