package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"github.com/visingers/visingers-sync/internal/utils"
	"github.com/visingers/visingers-sync/pkg/censor"
	"github.com/visingers/visingers-sync/pkg/platforms/github"
	"github.com/visingers/visingers-sync/pkg/polling"
	"github.com/visingers/visingers-sync/pkg/storage"
)

// dbPath returns the configured database location.
func dbPath() (string, error) {
	p := viper.GetString("db.path")
	if storage.IsPostgresDSN(p) {
		return p, nil
	}
	abs, err := utils.GetAbsDBPath(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func githubToken() string {
	if t := viper.GetString("github.token"); t != "" {
		return t
	}
	return os.Getenv("GITHUB_TOKEN")
}

// newPassConfig builds the pass configuration from viper.
func newPassConfig(db *storage.DB) (polling.Config, error) {
	token := githubToken()
	if token == "" {
		utils.Log.Warn("No GitHub token configured (github.token or GITHUB_TOKEN); tree queries will be rejected.")
	}

	cen := censor.Default()
	if words := viper.GetStringSlice("censor.words"); len(words) > 0 {
		cen = censor.New(words...)
	}

	concurrency := viper.GetInt("sync.concurrency")
	if concurrency < 1 {
		return polling.Config{}, fmt.Errorf("sync.concurrency must be at least 1, got %d", concurrency)
	}

	return polling.Config{
		Hub: github.NewClient(token,
			github.WithBaseURLs(viper.GetString("github.api-url"), viper.GetString("github.graphql-url")),
			github.WithRetryMax(viper.GetInt("github.retry-max")),
			github.WithRetryWait(viper.GetDuration("github.retry-wait-min"), viper.GetDuration("github.retry-wait-max")),
		),
		Store:       db,
		Topic:       viper.GetString("github.topic"),
		Censor:      cen,
		Concurrency: concurrency,
		WipeGuard:   viper.GetInt("sync.wipe-guard"),
		Log:         utils.Log,
	}, nil
}

func syncInterval() (time.Duration, error) {
	d := viper.GetDuration("sync.interval")
	if d <= 0 {
		return 0, fmt.Errorf("sync.interval must be positive, got %q", viper.GetString("sync.interval"))
	}
	return d, nil
}
