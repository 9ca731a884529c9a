package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/disintegration/imaging"
	"github.com/lepinkainen/qidianmeta/internal/book"
	"github.com/lepinkainen/qidianmeta/internal/browser"
	"github.com/lepinkainen/qidianmeta/internal/testutil"
	"github.com/lepinkainen/qidianmeta/internal/tui"
	"gopkg.in/yaml.v3"
)

type cmdEnv struct {
	env    *testutil.TestEnv
	fc     *testutil.FakeCatalog
	config string
}

func newCmdEnv(t *testing.T) *cmdEnv {
	t.Helper()

	orig := logOutput
	logOutput = io.Discard
	t.Cleanup(func() { logOutput = orig })

	env := testutil.NewTestEnv(t)
	fc := testutil.NewFakeCatalog(t)

	var cfg strings.Builder
	fmt.Fprintf(&cfg, "catalog:\n  base_url: %s\n  cover_base_url: %s\n", fc.URL(), fc.CoverBaseURL())
	cfg.WriteString("  rate_limit_interval: 1ns\n  max_retries: 0\n")
	fmt.Fprintf(&cfg, "cache:\n  dir: %s\n", env.Path("cache"))
	env.WriteFile("config.yaml", []byte(cfg.String()))

	return &cmdEnv{env: env, fc: fc, config: env.Path("config.yaml")}
}

func (c *cmdEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(append([]string{"--config", c.config}, args...), &out)
	return out.String(), err
}

func decodeReport(t *testing.T, out string) report {
	t.Helper()
	var r report
	assert.NoError(t, json.Unmarshal([]byte(out), &r))
	return r
}

func TestResolveByTitleJSON(t *testing.T) {
	c := newCmdEnv(t)
	c.fc.AddBook(testutil.FakeBook{ID: "1001569853", Title: "一世之尊", Authors: []string{"爱潜水的乌贼"}, Score: "9.0"})

	out, err := c.run(t, "resolve", "--title", "一世之尊", "--author", "爱潜水的乌贼", "--format", "json")
	assert.NoError(t, err)

	r := decodeReport(t, out)
	assert.Equal(t, "resolved", r.Status)
	assert.Equal(t, "qidian:1001569853", r.Host.Identifier)
	assert.Equal(t, "起点中文网", r.Host.Publisher)
	assert.Equal(t, "https://www.qidian.com/book/1001569853/", r.Host.Identifiers["url"])
	assert.NotZero(t, r.Cover)
	assert.Equal(t, c.fc.CoverBaseURL()+"/1001569853", r.Cover.SourceURL)
	assert.False(t, r.Partial)
	assert.NotZero(t, r.Match)
}

func TestResolveByIDYAML(t *testing.T) {
	c := newCmdEnv(t)
	c.fc.AddBook(testutil.FakeBook{ID: "1025325277", Title: "我们生活在南京", Authors: []string{"天瑞说符"}})

	out, err := c.run(t, "resolve", "--id", "https://www.qidian.com/book/1025325277/")
	assert.NoError(t, err)

	var r struct {
		Status string           `yaml:"status"`
		Host   *book.HostRecord `yaml:"host"`
	}
	assert.NoError(t, yaml.Unmarshal([]byte(out), &r))
	assert.Equal(t, "resolved", r.Status)
	assert.Equal(t, "我们生活在南京", r.Host.Title)
	assert.Equal(t, 0, c.fc.SearchRequests())
}

func TestResolveFailureExitsWithError(t *testing.T) {
	c := newCmdEnv(t)

	out, err := c.run(t, "resolve", "--id", "999", "-o", "json")
	assert.IsError(t, err, errResolutionFailed)

	r := decodeReport(t, out)
	assert.Equal(t, "failed", r.Status)
	assert.Equal(t, "not_found", r.ErrorKind)
}

func TestResolveBadIdentifier(t *testing.T) {
	c := newCmdEnv(t)

	_, err := c.run(t, "resolve", "--id", "goodreads:123")
	assert.Error(t, err)
}

func TestResolveNoConfidentMatchIsNotAnError(t *testing.T) {
	c := newCmdEnv(t)
	c.fc.SetSearchResults()

	out, err := c.run(t, "resolve", "--title", "Zzzz Unknown", "-o", "json")
	assert.NoError(t, err)
	assert.Equal(t, "no_confident_match", decodeReport(t, out).Status)
}

func addTwins(c *cmdEnv) {
	c.fc.AddBook(testutil.FakeBook{ID: "100", Title: "一世之尊", Authors: []string{"爱潜水的乌贼"}})
	c.fc.AddBook(testutil.FakeBook{ID: "200", Title: "一世之尊", Authors: []string{"爱潜水的乌贼"}})
}

func TestResolveAmbiguousWithoutInteraction(t *testing.T) {
	c := newCmdEnv(t)
	addTwins(c)

	out, err := c.run(t, "resolve", "--title", "一世之尊", "-o", "json")
	assert.NoError(t, err)

	r := decodeReport(t, out)
	assert.Equal(t, "ambiguous", r.Status)
	assert.Equal(t, 2, len(r.Candidates))
}

func TestResolveInteractiveSelection(t *testing.T) {
	c := newCmdEnv(t)
	addTwins(c)

	orig := selectCandidate
	t.Cleanup(func() { selectCandidate = orig })
	var offered []book.ScoredCandidate
	selectCandidate = func(_ string, candidates []book.ScoredCandidate) (tui.SelectionResult, error) {
		offered = candidates
		chosen := candidates[1]
		return tui.SelectionResult{Action: tui.ActionSelected, Selection: &chosen}, nil
	}

	out, err := c.run(t, "resolve", "--title", "一世之尊", "-i", "-o", "json")
	assert.NoError(t, err)

	assert.Equal(t, 2, len(offered))
	r := decodeReport(t, out)
	assert.Equal(t, "resolved", r.Status)
	assert.Equal(t, "qidian:200", r.Host.Identifier)
	assert.Equal(t, 1, c.fc.SearchRequests())
}

func TestResolveInteractiveSkip(t *testing.T) {
	c := newCmdEnv(t)
	addTwins(c)

	orig := selectCandidate
	t.Cleanup(func() { selectCandidate = orig })
	selectCandidate = func(string, []book.ScoredCandidate) (tui.SelectionResult, error) {
		return tui.SelectionResult{Action: tui.ActionSkipped}, nil
	}

	out, err := c.run(t, "resolve", "--title", "一世之尊", "-i", "-o", "json")
	assert.NoError(t, err)
	assert.Equal(t, "ambiguous", decodeReport(t, out).Status)
}

func TestResolveWritesResizedCover(t *testing.T) {
	c := newCmdEnv(t)
	c.fc.AddBook(testutil.FakeBook{ID: "100", Title: "书", Cover: testutil.PNG(3)})

	_, err := c.run(t, "resolve", "--id", "100", "--cover-out", c.env.Path("out", "cover.png"), "--cover-max-width", "2")
	assert.NoError(t, err)

	img, err := imaging.Open(c.env.Path("out", "cover.png"))
	assert.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestResolvePartialWhenCoverFails(t *testing.T) {
	c := newCmdEnv(t)
	c.fc.AddBook(testutil.FakeBook{ID: "100", Title: "书"})
	c.fc.SetCoverStatus("/covers/100", http.StatusBadGateway)
	c.fc.SetCoverStatus("/covers/100/", http.StatusBadGateway)

	out, err := c.run(t, "resolve", "--id", "100", "-o", "json", "--cover-out", c.env.Path("cover.png"))
	assert.NoError(t, err)

	r := decodeReport(t, out)
	assert.Equal(t, "resolved", r.Status)
	assert.True(t, r.Partial)
	assert.NotEqual(t, "", r.CoverError)
	assert.False(t, c.env.FileExists("cover.png"))
}

type fakeBrowser struct {
	requests int
	closed   bool
}

func (f *fakeBrowser) Do(req *http.Request) (*http.Response, error) {
	f.requests++
	return http.DefaultClient.Do(req)
}

func (f *fakeBrowser) Close() { f.closed = true }

func TestResolveThroughBrowserTransport(t *testing.T) {
	c := newCmdEnv(t)
	c.fc.AddBook(testutil.FakeBook{ID: "100", Title: "书"})

	fake := &fakeBrowser{}
	var gotOpts browser.Options
	orig := newBrowserDoer
	t.Cleanup(func() { newBrowserDoer = orig })
	newBrowserDoer = func(opts browser.Options) pageDoer {
		gotOpts = opts
		return fake
	}

	out, err := c.run(t, "--browser", "resolve", "--id", "100", "-o", "json")
	assert.NoError(t, err)

	assert.Equal(t, "resolved", decodeReport(t, out).Status)
	assert.Equal(t, 1, fake.requests, "only the detail page goes through the browser")
	assert.True(t, fake.closed)
	assert.True(t, gotOpts.Headless)
	assert.Equal(t, 1, c.fc.Requests("/covers/100"))
}

func TestCacheShowListClear(t *testing.T) {
	c := newCmdEnv(t)
	c.fc.AddBook(testutil.FakeBook{ID: "100", Title: "书"})

	_, err := c.run(t, "resolve", "--id", "100")
	assert.NoError(t, err)

	out, err := c.run(t, "cache", "show", "qidian:100", "-o", "json")
	assert.NoError(t, err)
	var entry coverReport
	assert.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "100", entry.NativeID)
	assert.Equal(t, int64(len(c.fc.CoverBytes("100"))), entry.Size)

	out, err = c.run(t, "cache", "list", "-o", "json")
	assert.NoError(t, err)
	var entries []coverReport
	assert.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Equal(t, 1, len(entries))

	out, err = c.run(t, "cache", "clear")
	assert.NoError(t, err)
	assert.Contains(t, out, "removed 1 cached cover(s)")

	_, err = c.run(t, "cache", "show", "100")
	assert.Error(t, err)
}
