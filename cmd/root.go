package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/lepinkainen/qidianmeta/internal/book"
	"github.com/lepinkainen/qidianmeta/internal/browser"
	"github.com/lepinkainen/qidianmeta/internal/catalog"
	"github.com/lepinkainen/qidianmeta/internal/config"
	"github.com/lepinkainen/qidianmeta/internal/cover"
	"github.com/lepinkainen/qidianmeta/internal/match"
	"github.com/lepinkainen/qidianmeta/internal/ratelimit"
	"github.com/lepinkainen/qidianmeta/internal/resolver"
	"github.com/lepinkainen/qidianmeta/internal/tui"
	"github.com/spf13/viper"
)

var (
	selectCandidate = tui.Select
	newBrowserDoer  = func(opts browser.Options) pageDoer { return browser.New(opts) }
	logOutput       io.Writer = os.Stderr
)

// pageDoer is the browser transport as seen by the commands.
type pageDoer interface {
	catalog.HTTPDoer
	Close()
}

// CLI represents the complete command structure for the qidianmeta application
type CLI struct {
	Config   string `help:"Path to config file (defaults to ./config.yaml when present)" type:"path"`
	Verbose  bool   `short:"v" help:"Enable debug logging"`
	CacheDir string `help:"Cover cache directory (overrides cache.dir)" type:"path"`
	Browser  bool   `help:"Fetch catalog pages through headless Chrome"`

	Resolve ResolveCmd `cmd:"" help:"Resolve metadata and cover for one book"`
	Cache   CacheCmd   `cmd:"" help:"Inspect or clear the cover cache"`
}

// App is what the commands run against: the loaded configuration and the output stream.
type App struct {
	Config config.Config
	Out    io.Writer

	closers []func()
}

// Execute runs the Kong-based CLI
func Execute() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newParser(cli *CLI, out io.Writer, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("qidianmeta"),
		kong.Description("Resolve e-book metadata and covers from Qidian."),
		kong.UsageOnError(),
		kong.Writers(out, os.Stderr),
	}, options...)
	return kong.New(cli, options...)
}

func run(args []string, out io.Writer) error {
	var cli CLI
	parser, err := newParser(&cli, out)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	initLogging(cli.Verbose)

	app, err := newApp(&cli, out)
	if err != nil {
		return err
	}
	defer app.Close()

	return kctx.Run(app)
}

func newApp(cli *CLI, out io.Writer) (*App, error) {
	v := viper.New()
	if err := config.Init(v, cli.Config); err != nil {
		return nil, err
	}
	applyFlags(v, cli)

	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &App{Config: cfg, Out: out}, nil
}

// applyFlags lets global flags override file and environment settings.
func applyFlags(v *viper.Viper, cli *CLI) {
	if cli.CacheDir != "" {
		v.Set("cache.dir", cli.CacheDir)
	}
	if cli.Browser {
		v.Set("catalog.browser", true)
	}
}

// Close releases everything the commands opened.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// catalogClient builds the catalog client. All commands of one process share its limiter.
func (a *App) catalogClient() *catalog.Client {
	cc := a.Config.Catalog
	opts := []catalog.Option{
		catalog.WithBaseURL(cc.BaseURL),
		catalog.WithCoverBaseURL(cc.CoverBaseURL),
		catalog.WithMaxRetries(cc.MaxRetries),
		catalog.WithRequestTimeout(cc.RequestTimeout),
		catalog.WithRateLimiter(ratelimit.NewInterval("qidian", cc.RateLimitInterval)),
		catalog.WithUserAgent(cc.UserAgent),
	}

	if cc.Browser {
		doer := newBrowserDoer(browser.Options{Headless: cc.Headless, UserAgent: cc.UserAgent})
		a.onClose(doer.Close)
		opts = append(opts,
			catalog.WithHTTPClient(doer),
			catalog.WithCoverHTTPClient(&http.Client{}),
		)
		slog.Debug("using browser transport for catalog pages", "headless", cc.Headless)
	}

	return catalog.NewClient(opts...)
}

func (a *App) coverCache(downloader cover.Downloader) (*cover.Cache, error) {
	covers, err := cover.New(a.Config.Cache.Dir, downloader)
	if err != nil {
		return nil, fmt.Errorf("opening cover cache: %w", err)
	}
	a.onClose(func() {
		if err := covers.Close(); err != nil {
			slog.Warn("closing cover cache", "error", err)
		}
	})
	return covers, nil
}

func (a *App) engine() (*resolver.Engine, error) {
	client := a.catalogClient()

	covers, err := a.coverCache(client)
	if err != nil {
		return nil, err
	}

	scorerCfg, err := a.Config.ScorerConfig()
	if err != nil {
		return nil, err
	}
	scorer, err := match.NewScorer(scorerCfg)
	if err != nil {
		return nil, err
	}

	return resolver.New(client,
		resolver.WithCovers(covers),
		resolver.WithScorer(scorer),
		resolver.WithAssembler(book.NewAssembler(a.Config.Precedence())),
		resolver.WithLimit(a.Config.Match.MaxResults),
		resolver.WithFallbackCoverURL(client.LegacyCoverURL),
	)
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	// Human-readable output on stderr; stdout carries the command output
	handler := humanlog.NewHandler(logOutput, &humanlog.Options{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}
