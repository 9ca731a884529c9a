package catalog

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/lepinkainen/qidianmeta/internal/query"
)

// SearchURL returns the search page URL for keyword.
func (c *Client) SearchURL(keyword string) string {
	return c.baseURL + "/so/" + url.PathEscape(keyword) + ".html"
}

// Search runs a keyword search and returns the raw result page.
// Search results are not cached.
func (c *Client) Search(ctx context.Context, lookup query.SearchLookup) ([]byte, error) {
	keyword := lookup.Keyword()
	target := c.SearchURL(keyword)
	slog.Debug("searching catalog", "keyword", keyword, "url", target)

	return c.fetch(ctx, endpoint{name: "search", url: target})
}
