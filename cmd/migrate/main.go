// Package main MongoDB 索引遷移工具
//
//	migrate up       套用所有版本
//	migrate down     回滾一個版本
//	migrate version  顯示目前版本
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/koopa0/video-engagement/internal/config"
	"github.com/koopa0/video-engagement/internal/migrations"
	"github.com/koopa0/video-engagement/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional, env overrides)")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	if err := run(*configPath, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(configPath, cmd string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stderr"})

	dbURL, err := migrations.DatabaseURL(cfg.Store.Mongo.URI, cfg.Store.Mongo.Database)
	if err != nil {
		return err
	}
	m, err := migrations.New(dbURL, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("close migrator failed", "error", err)
		}
	}()

	switch cmd {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migration applied")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty=%t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
