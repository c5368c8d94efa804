package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ontime.transitperf.org/internal/appconf"
)

func TestBuildApplication(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	cfg := appconf.Config{
		Env:            appconf.Test,
		InputDir:       t.TempDir(),
		OutputDir:      t.TempDir(),
		FeedCacheDir:   t.TempDir(),
		FeedIndexURL:   "http://example.invalid/index.csv",
		CurrentFeedURL: "http://example.invalid/current.zip",
		Location:       loc,
		Workers:        2,
	}

	application := BuildApplication(cfg)
	assert.NotNil(t, application.Logger)
	assert.NotNil(t, application.Metrics)
	assert.NotNil(t, application.Resolver)
	assert.NotNil(t, application.Clock)
	assert.Equal(t, cfg, application.Config)
}
