package testutil

import (
	"testing"

	"github.com/lepinkainen/qidianmeta/internal/config"
	"github.com/spf13/viper"
)

// NewViper returns a fresh viper instance holding the defaults plus overrides.
func NewViper(t *testing.T, overrides map[string]any) *viper.Viper {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	for key, value := range overrides {
		v.Set(key, value)
	}
	return v
}

// CatalogOverrides points the catalog at fc, caches under env and removes the
// request spacing so tests run fast.
func CatalogOverrides(fc *FakeCatalog, env *TestEnv) map[string]any {
	return map[string]any{
		"catalog.base_url":            fc.URL(),
		"catalog.cover_base_url":      fc.CoverBaseURL(),
		"catalog.rate_limit_interval": "1ns",
		"catalog.max_retries":         0,
		"cache.dir":                   env.Path("cache"),
	}
}
