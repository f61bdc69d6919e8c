package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"mediagen/internal/db"
)

func main() {
	var (
		dsnFlag    string
		dryRunFlag bool
	)
	flag.StringVar(&dsnFlag, "dsn", "", "postgres connection string (fallbacks to DATABASE_URL)")
	flag.BoolVar(&dryRunFlag, "dry-run", false, "print the schema instead of applying it")
	flag.Parse()

	if dryRunFlag {
		fmt.Print(db.Schema)
		return
	}

	dsn := strings.TrimSpace(dsnFlag)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		exitWithError(errors.New("DATABASE_URL or -dsn is required"))
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open database: %w", err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		exitWithError(fmt.Errorf("failed to reach database: %w", err))
	}
	if _, err := conn.ExecContext(ctx, db.Schema); err != nil {
		exitWithError(fmt.Errorf("failed to apply schema: %w", err))
	}
	fmt.Println("schema applied")
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
