package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/lepinkainen/qidianmeta/internal/identifier"
	"github.com/lepinkainen/qidianmeta/internal/query"
	"github.com/lepinkainen/qidianmeta/internal/resolver"
	"github.com/lepinkainen/qidianmeta/internal/tui"
)

// errResolutionFailed marks a Failed outcome so the process exits non-zero.
var errResolutionFailed = errors.New("resolution failed")

// ResolveCmd represents the resolve command
type ResolveCmd struct {
	Title         string   `short:"t" help:"Book title as the library knows it"`
	Author        []string `short:"a" help:"Author name (repeatable)"`
	ID            string   `help:"Catalog id: qidian:<id>, a book page URL or a bare id"`
	Format        string   `short:"o" help:"Output format" enum:"yaml,json" default:"yaml"`
	Interactive   bool     `short:"i" help:"Pick from ambiguous matches in a terminal UI"`
	CoverOut      string   `help:"Write the cover image to this path (format from extension)" type:"path"`
	CoverMaxWidth int      `help:"Scale the written cover down to this width (0 keeps the original)" default:"0"`
}

func (r *ResolveCmd) Run(app *App) error {
	q := query.Query{Title: r.Title, Authors: r.Author}
	if r.ID != "" {
		id, err := identifier.Parse(r.ID)
		if err != nil {
			return err
		}
		q.NativeID = id
	}

	engine, err := app.engine()
	if err != nil {
		return err
	}

	ctx := context.Background()
	outcome := engine.Resolve(ctx, q)

	if amb, ok := outcome.(resolver.Ambiguous); ok && r.Interactive {
		outcome, err = r.choose(ctx, engine, q, amb)
		if err != nil {
			return err
		}
	}

	if resolved, ok := outcome.(resolver.Resolved); ok && r.CoverOut != "" && resolved.Cover != nil {
		if err := writeCover(r.CoverOut, resolved.Cover.Bytes, r.CoverMaxWidth); err != nil {
			return err
		}
		slog.Info("cover written", "path", r.CoverOut)
	}

	if err := writeReport(app.Out, r.Format, newReport(outcome)); err != nil {
		return err
	}

	if failed, ok := outcome.(resolver.Failed); ok {
		return fmt.Errorf("%w: %s: %w", errResolutionFailed, failed.Kind, failed.Err)
	}
	return nil
}

// choose lets the user pick a candidate and resolves it by id, the second
// phase of a search that could not decide on its own.
func (r *ResolveCmd) choose(ctx context.Context, engine *resolver.Engine, q query.Query, amb resolver.Ambiguous) (resolver.Outcome, error) {
	result, err := selectCandidate(fmt.Sprintf("Select a match for %q", q.Title), amb.Candidates)
	if err != nil {
		return nil, fmt.Errorf("selecting candidate: %w", err)
	}
	if result.Action != tui.ActionSelected || result.Selection == nil {
		slog.Info("selection skipped", "title", q.Title)
		return amb, nil
	}

	q.NativeID = result.Selection.NativeID
	return engine.Resolve(ctx, q), nil
}

// writeCover saves data to path, scaled down to maxWidth when it is wider.
func writeCover(path string, data []byte, maxWidth int) error {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding cover: %w", err)
	}

	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cover directory: %w", err)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("saving cover to %s: %w", path, err)
	}
	return nil
}
