package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/pixellab-dev/invigilo/internal/config"
)

const usage = `Usage: migrate <command> [arg]

Commands:
  up              apply all pending migrations
  down            roll everything back
  steps <n>       migrate n steps forward (negative for backward)
  version         print the current schema version
  force <v>       set the version without running anything (dirty recovery)

MIGRATIONS_PATH overrides the default ./migrations directory.`

func main() {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	dir := os.Getenv("MIGRATIONS_PATH")
	if dir == "" {
		dir = "migrations"
	}

	m, err := migrate.New("file://"+dir, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Migrate init: %v", err)
	}
	defer m.Close()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		return
	}

	switch cmd := os.Args[1]; cmd {
	case "up":
		report(m.Up(), "schema is up to date")
	case "down":
		report(m.Down(), "schema rolled back")
	case "steps":
		n, err := strconv.Atoi(arg("steps"))
		if err != nil {
			log.Fatalf("steps: %v", err)
		}
		report(m.Steps(n), fmt.Sprintf("moved %d step(s)", n))
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied yet")
			return
		}
		if err != nil {
			log.Fatalf("version: %v", err)
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
	case "force":
		v, err := strconv.Atoi(arg("force"))
		if err != nil {
			log.Fatalf("force: %v", err)
		}
		report(m.Force(v), fmt.Sprintf("forced to version %d", v))
	default:
		fmt.Println(usage)
	}
}

func arg(cmd string) string {
	if len(os.Args) < 3 {
		log.Fatalf("%s requires an argument", cmd)
	}
	return os.Args[2]
}

func report(err error, ok string) {
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("nothing to do")
		return
	}
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	fmt.Println(ok)
}
