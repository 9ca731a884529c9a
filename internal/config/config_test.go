package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Match.MinScore)
	assert.Equal(t, 5, cfg.Match.MaxResults)
	assert.Equal(t, 0.7, cfg.Match.TitleWeight)
	assert.Equal(t, 0.3, cfg.Match.AuthorWeight)
	assert.Equal(t, 0.02, cfg.Match.AmbiguityEpsilon)
	assert.Equal(t, "cjk", cfg.Match.Script)

	assert.Equal(t, 30*time.Second, cfg.Catalog.RequestTimeout)
	assert.Equal(t, 3, cfg.Catalog.MaxRetries)
	assert.Equal(t, time.Second, cfg.Catalog.RateLimitInterval)
	assert.Equal(t, "https://www.qidian.com", cfg.Catalog.BaseURL)
	assert.False(t, cfg.Catalog.Browser)

	assert.Equal(t, "./cache", cfg.Cache.Dir)

	assert.True(t, cfg.Assemble.OverwriteTitleAuthor)
	assert.Equal(t, "qidian", cfg.Assemble.IdentifierScheme)
	assert.True(t, cfg.Assemble.RecordURL)
}

func TestInitReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
match:
  min_score: 0.9
  title_weight: 0.6
  author_weight: 0.4
catalog:
  request_timeout: 5s
  rate_limit_interval: 250ms
cache:
  dir: /tmp/covers
`), 0o644))

	v := viper.New()
	require.NoError(t, Init(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Match.MinScore)
	assert.Equal(t, 0.6, cfg.Match.TitleWeight)
	assert.Equal(t, 5*time.Second, cfg.Catalog.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Catalog.RateLimitInterval)
	assert.Equal(t, "/tmp/covers", cfg.Cache.Dir)
	assert.Equal(t, 5, cfg.Match.MaxResults, "unset keys keep defaults")
}

func TestInitMissingDefaultFileIsFine(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, Init(viper.New(), ""))
}

func TestInitMissingExplicitFileFails(t *testing.T) {
	err := Init(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("QIDIANMETA_MATCH_MAX_RESULTS", "9")
	t.Setenv("QIDIANMETA_CACHE_DIR", "/var/cache/qidian")

	v := viper.New()
	require.NoError(t, Init(v, writeEmptyConfig(t)))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Match.MaxResults)
	assert.Equal(t, "/var/cache/qidian", cfg.Cache.Dir)
}

func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	return path
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{"weights sum", "match.title_weight", 0.5, "must be 1"},
		{"weight range", "match.author_weight", 1.5, "within [0,1]"},
		{"min score", "match.min_score", -0.1, "match.min_score"},
		{"max results", "match.max_results", 0, "match.max_results"},
		{"single max result", "match.max_results", 1, "at least 2"},
		{"epsilon", "match.ambiguity_epsilon", -1, "ambiguity_epsilon"},
		{"script", "match.script", "klingon", "match.script"},
		{"timeout", "catalog.request_timeout", "0s", "request_timeout"},
		{"interval", "catalog.rate_limit_interval", "-1s", "rate_limit_interval"},
		{"retries", "catalog.max_retries", -1, "max_retries"},
		{"cache dir", "cache.dir", " ", "cache.dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.val)

			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	v := newViper(t)
	v.Set("match.max_results", 0)
	v.Set("catalog.max_retries", -2)

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_results")
	assert.Contains(t, err.Error(), "max_retries")
}

func TestScorerConfigAndPrecedence(t *testing.T) {
	v := newViper(t)
	v.Set("match.script", "latin")
	v.Set("assemble.overwrite_title_author", false)
	v.Set("assemble.identifier_scheme", "qd")
	cfg, err := Load(v)
	require.NoError(t, err)

	sc, err := cfg.ScorerConfig()
	require.NoError(t, err)
	assert.Equal(t, "example title", sc.Normalizer.Normalize("Example  Title!"))
	assert.Equal(t, 0.02, sc.Epsilon)
	assert.Equal(t, 5, sc.MaxResults)

	p := cfg.Precedence()
	assert.False(t, p.OverwriteTitleAuthor)
	assert.Equal(t, "qd", p.IdentifierScheme)
	assert.True(t, p.RecordURL)
}
