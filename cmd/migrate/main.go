// migrate applies the Postgres TTL store migrations from embedded SQL and can purge expired
// kv_entries rows; run with go run ./cmd/migrate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"studyhub/backend/internal/config"
	"studyhub/backend/internal/db"
	"studyhub/backend/internal/db/migrate"
	"studyhub/backend/internal/kv"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	purge := flag.Bool("purge-expired", false, "Delete expired kv_entries rows instead of migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; set it in the environment or .env")
		os.Exit(1)
	}

	if *purge {
		n, err := purgeExpired(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "purge:", err)
			os.Exit(1)
		}
		fmt.Printf("purged %d expired entries\n", n)
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	if v, dirty, err := migrate.Version(cfg.DatabaseURL); err == nil {
		fmt.Printf("schema version %d (dirty=%v)\n", v, dirty)
	}
}

func purgeExpired(dsn string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	conn, err := db.Open(ctx, dsn)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return kv.NewPostgresStore(conn).PurgeExpired(ctx)
}
