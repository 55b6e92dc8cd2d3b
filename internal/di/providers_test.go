package di

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	internalrepo "FinSense/internal/repository"
	"FinSense/pkg/cache"
	"FinSense/pkg/config"
	applogger "FinSense/pkg/logger"
)

func TestBarFeeds_TrainingReadsUncachedSource(t *testing.T) {
	cfg := config.Default()
	cfg.Feed.CacheTTL = time.Minute
	l := applogger.Nop()

	mc := cache.NewMemoryCache()
	defer func() { _ = mc.Close() }()

	src := ProvideSourceBarFeed(cfg, nil, l)
	assert.IsType(t, &internalrepo.HTTPBarFeed{}, src)

	served := ProvideBarFeed(cfg, src, mc, l)
	assert.IsType(t, &internalrepo.CachedBarFeed{}, served)
}

func TestBarFeeds_ZeroTTLSkipsCache(t *testing.T) {
	cfg := config.Default()
	cfg.Feed.CacheTTL = 0
	l := applogger.Nop()

	src := ProvideSourceBarFeed(cfg, nil, l)
	served := ProvideBarFeed(cfg, src, nil, l)
	assert.Same(t, src, served)
}
