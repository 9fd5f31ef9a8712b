// Package cli implements the dppd-portal command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	portal "github.com/dppd-rp/portal"
)

type rootOptions struct {
	configPath string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "dppd-portal",
		Short: "Session and permission backend for the DPPD portal",
		Long: `dppd-portal serves the portal's login, session and role administration API.

Configuration is read from an optional YAML file and then from environment
variables (REDIS_URL, ADMIN_USERNAME, ADMIN_PASSWORD_HASH, DISCORD_*, PORT).
The session signing secret is always read from SESSION_SECRET.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCommand(opts),
		newHashPasswordCommand(),
		newRolesCommand(opts),
		newLoadtestCommand(),
	)
	return cmd
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *rootOptions) loadConfig() (portal.Config, error) {
	return portal.LoadConfig(o.configPath)
}

func newLogger(cfg portal.LogConfig, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

func buildEngine(cfg portal.Config, rdb redis.UniversalClient, logger *slog.Logger) (*portal.Engine, error) {
	return portal.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger).
		Build()
}
