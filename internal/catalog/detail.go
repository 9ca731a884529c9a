package catalog

import (
	"context"
	"log/slog"
	"slices"

	"github.com/lepinkainen/qidianmeta/internal/book"
	qerrors "github.com/lepinkainen/qidianmeta/internal/errors"
	"github.com/lepinkainen/qidianmeta/internal/identifier"
	"golang.org/x/sync/singleflight"
)

// DetailURL returns the detail page URL for nativeID.
func (c *Client) DetailURL(nativeID string) string {
	return c.baseURL + "/book/" + nativeID + "/"
}

// FetchDetail fetches and parses the detail page of nativeID.
// Concurrent calls for the same id share one request.
func (c *Client) FetchDetail(ctx context.Context, nativeID string) (*book.Record, error) {
	if err := identifier.Validate(nativeID); err != nil {
		return nil, err
	}

	// The shared fetch outlives any one caller; requestTimeout bounds each attempt.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.details.DoChan(nativeID, func() (any, error) {
		raw, err := c.fetch(flightCtx, endpoint{
			name:     "detail",
			url:      c.DetailURL(nativeID),
			notFound: func() error { return qerrors.NewNotFoundError(nativeID) },
		})
		if err != nil {
			return nil, err
		}

		rec, err := ParseDetail(nativeID, raw)
		if err != nil {
			return nil, err
		}

		coverURL := c.CoverURL(nativeID)
		rec.CoverURL = &coverURL
		return rec, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, qerrors.NewCatalogUnavailableError(c.DetailURL(nativeID), 0, 0, ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}
	v, shared := res.Val, res.Shared
	if shared {
		slog.Debug("shared in-flight detail fetch", "native_id", nativeID)
	}

	return cloneRecord(v.(*book.Record)), nil
}

// DownloadCover fetches the image bytes at coverURL.
func (c *Client) DownloadCover(ctx context.Context, coverURL string) ([]byte, error) {
	return c.fetch(ctx, endpoint{name: "cover", url: coverURL, doer: c.coverClient})
}

// cloneRecord copies rec so callers sharing a flight never alias each other's slices.
func cloneRecord(rec *book.Record) *book.Record {
	out := *rec
	out.Authors = slices.Clone(rec.Authors)
	out.Tags = slices.Clone(rec.Tags)
	return &out
}
