package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/courierpay/payment-engine/internal/config"
)

const defaultMigrationsDir = "internal/db/migrations"

func main() {
	dir := flag.String("dir", defaultMigrationsDir, "directory with migration files")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(args[0], *dir, args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(command, dir string, args []string) error {
	cfg := config.LoadDatabaseFromEnv()

	db, err := sql.Open("pgx", cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect to %s/%s: %w", cfg.Host, cfg.Database, err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Run(command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

func usage() {
	fmt.Print(`Usage: migrate [-dir DIR] COMMAND

Applies the payment engine schema migrations. The database connection is
read from the DB_* environment variables (see internal/config).

Commands:
    up                   Apply all pending migrations
    up-by-one            Apply the next pending migration
    up-to VERSION        Migrate up to VERSION
    down                 Roll back the latest migration
    down-to VERSION      Roll back to VERSION
    redo                 Re-apply the latest migration
    reset                Roll back everything
    status               Print migration status
    version              Print the current schema version
    create NAME [sql|go] Create a new migration file
`)
}
