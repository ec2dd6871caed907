package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/harunnryd/coachviz/internal/config"
	"github.com/harunnryd/coachviz/internal/formatter"
	"github.com/harunnryd/coachviz/internal/health"
	"github.com/harunnryd/coachviz/internal/template"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newTemplateStore() *template.Store {
	return template.NewStore(cfg.Templates.Root)
}

// newHealthTracker builds a tracker over the configured cache. The returned
// func releases the Redis connection, if any.
func newHealthTracker(c *config.Config) (*health.Tracker, func(), error) {
	timings, err := c.Timings()
	if err != nil {
		return nil, nil, err
	}

	var cache health.Cache
	closeFn := func() {}

	switch c.Health.Cache {
	case config.HealthCacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.Health.RedisAddr,
			Password: c.Health.RedisPassword,
			DB:       c.Health.RedisDB,
		})
		cache = health.NewRedisCache(client, c.Health.KeyPrefix)
		closeFn = func() {
			if err := client.Close(); err != nil {
				slog.Debug("Redis close failed", "error", err)
			}
		}
	default:
		cache = health.NewMemoryCache()
	}

	tracker := health.NewTracker(cache, c.Providers.Registry, health.WithTTL(timings.HealthTTL))
	return tracker, closeFn, nil
}

func outputFormatter(cmd *cobra.Command) (formatter.Formatter, error) {
	raw, _ := cmd.Flags().GetString("output")
	format, err := formatter.ParseOutputFormat(raw)
	if err != nil {
		return nil, err
	}
	return formatter.New(format)
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", string(formatter.OutputFormatTable), "Output format (table|json|yaml)")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
