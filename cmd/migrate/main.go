package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"learnit-events/config"
	"learnit-events/pkg/database"
	"learnit-events/pkg/logger"
)

const usage = `
Learnit Events - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Apply all pending migrations
  down        Roll back all migrations (DANGEROUS)
  status      Show the applied version and the pipeline tables

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate status
`

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	command := flag.Arg(0)

	cfg := config.LoadConfig()
	l := logger.New(cfg.App.Mode)
	defer l.Sync()

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.Database, l)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db, cfg.Database.Name, l)
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	switch command {
	case "up":
		log.Println("Running migrations UP...")
		if err := m.Up(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	case "down":
		log.Println("Rolling back migrations...")
		if err := m.Down(); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Rollback completed successfully")
	case "status":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Failed to read migration version: %v", err)
		}
		log.Printf("Migration version: %d (dirty: %t)", version, dirty)
		for _, table := range database.PipelineTables {
			exists, err := database.TableExists(ctx, db, table)
			if err != nil {
				log.Printf("Error checking table %s: %v", table, err)
				continue
			}
			if !exists {
				log.Printf("Table %-20s does not exist", table)
				continue
			}
			count, _ := database.TableCount(ctx, db, table)
			log.Printf("Table %-20s exists (%d rows)", table, count)
		}
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
