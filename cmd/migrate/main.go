package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AndreOrlov/cozytime-bridge/internal/config"
	"github.com/AndreOrlov/cozytime-bridge/internal/db"
	"github.com/AndreOrlov/cozytime-bridge/internal/logging"
	"github.com/AndreOrlov/cozytime-bridge/internal/migrate"
	"github.com/AndreOrlov/cozytime-bridge/internal/readings"
)

var version = "dev"
var appName = "cozytime-migrate"

const usage = `usage: %s <command>
  migrate              apply pending schema migrations
  prune <older-than>   delete readings older than a duration (e.g. 720h)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	conn, err := db.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err := run(context.Background(), conn, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		code = 1
	}
	if closeErr := db.Close(conn); closeErr != nil {
		slog.Error("db close", "err", closeErr)
	}
	os.Exit(code)
}

func run(ctx context.Context, conn *sql.DB, args []string) error {
	switch args[0] {
	case "migrate":
		if err := migrate.Run(ctx, conn); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	case "prune":
		if len(args) < 2 {
			return fmt.Errorf("missing duration")
		}
		age, err := time.ParseDuration(args[1])
		if err != nil || age <= 0 {
			return fmt.Errorf("invalid duration %q", args[1])
		}
		n, err := readings.NewRepository(conn).DeleteReadingsBefore(ctx, time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d readings\n", n)
		return nil
	default:
		return fmt.Errorf("unknown command")
	}
}
