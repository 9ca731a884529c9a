package cmd

import (
	"context"
	"fmt"

	qerrors "github.com/lepinkainen/qidianmeta/internal/errors"
	"github.com/lepinkainen/qidianmeta/internal/identifier"
)

// CacheCmd represents the cache command and its subcommands
type CacheCmd struct {
	Clear CacheClearCmd `cmd:"" help:"Remove every cached cover"`
	Show  CacheShowCmd  `cmd:"" help:"Show the cached cover entry of one book"`
	List  CacheListCmd  `cmd:"" help:"List cached cover entries"`
}

// CacheClearCmd represents the cache clear command
type CacheClearCmd struct{}

// CacheShowCmd represents the cache show command
type CacheShowCmd struct {
	ID     string `arg:"" help:"Catalog id: qidian:<id>, a book page URL or a bare id"`
	Format string `short:"o" help:"Output format" enum:"yaml,json" default:"yaml"`
}

// CacheListCmd represents the cache list command
type CacheListCmd struct {
	Format string `short:"o" help:"Output format" enum:"yaml,json" default:"yaml"`
}

func (c *CacheClearCmd) Run(app *App) error {
	covers, err := app.coverCache(nil)
	if err != nil {
		return err
	}

	removed, err := covers.Clear(context.Background())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.Out, "removed %d cached cover(s) from %s\n", removed, covers.Dir())
	return err
}

func (c *CacheShowCmd) Run(app *App) error {
	id, err := identifier.Parse(c.ID)
	if err != nil {
		return err
	}

	covers, err := app.coverCache(nil)
	if err != nil {
		return err
	}

	asset, found, err := covers.Lookup(id)
	if err != nil {
		return err
	}
	if !found {
		return qerrors.NewNotFoundError(id)
	}
	return writeReport(app.Out, c.Format, newCoverReport(asset))
}

func (c *CacheListCmd) Run(app *App) error {
	covers, err := app.coverCache(nil)
	if err != nil {
		return err
	}

	entries, err := covers.Entries()
	if err != nil {
		return err
	}

	out := make([]coverReport, 0, len(entries))
	for _, e := range entries {
		out = append(out, coverReport{
			NativeID:    e.NativeID,
			ContentHash: e.ContentHash,
			SourceURL:   e.SourceURL,
			Size:        e.Size,
			FetchedAt:   e.FetchedAt,
		})
	}
	return writeReport(app.Out, c.Format, out)
}
