package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jo-hoe/refshelf/internal/backend/database"
	"github.com/jo-hoe/refshelf/internal/core"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigPath string
}

func defaultConfigPath() string {
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cwd, "config.yaml")
}

func newRootCommand() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "refctl",
		Short: "Manage refshelf users and entries from the command line",
		Long: `refctl talks directly to the document store configured for the refshelf
server. Writes are announced on the configured change notifier so open
dashboards pick them up.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("failed to load .env file", "error", err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&o.ConfigPath, "config", defaultConfigPath(),
		"Path to the refshelf configuration file.")

	addUser(cmd, o)
	addEntries(cmd, o)
	return cmd
}

// store is the document store with whatever it needs to be closed.
type store struct {
	database.DatabaseService
	notifier database.ChangeNotifier
	redis    *redis.Client
}

func (s *store) Close() error {
	err := s.DatabaseService.Close()
	if s.notifier != nil {
		err = errors.Join(err, s.notifier.Close())
	}
	if s.redis != nil {
		err = errors.Join(err, s.redis.Close())
	}
	return err
}

func openStore(ctx context.Context, o *rootOptions) (*store, error) {
	config, err := core.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, err
	}

	s := &store{}
	if config.Notifier.Type == "redis" {
		redisOptions, err := redis.ParseURL(config.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		s.redis = redis.NewClient(redisOptions)
	}
	s.notifier, err = database.NewChangeNotifier(config.Notifier.Type, s.redis)
	if err != nil {
		if s.redis != nil {
			_ = s.redis.Close()
		}
		return nil, err
	}

	s.DatabaseService, err = database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString, config.Database.Name, s.notifier)
	if err != nil {
		_ = s.notifier.Close()
		if s.redis != nil {
			_ = s.redis.Close()
		}
		return nil, err
	}
	return s, nil
}
