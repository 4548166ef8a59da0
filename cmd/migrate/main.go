// Команда migrate применяет и откатывает встроенные миграции схемы продаж.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/storage/postgres"
)

const envPostgresDSN = "SALES_POSTGRES_DSN"

// migrator операции postgres.Store, нужные командам.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
	Migrations(ctx context.Context) ([]postgres.MigrationInfo, error)
}

type command func(ctx context.Context, m migrator, steps int, out io.Writer) error

var commands = map[string]command{
	"up": func(ctx context.Context, m migrator, steps int, out io.Writer) error {
		if err := m.MigrateUp(ctx, steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		return printStatus(ctx, m, out, "migrate up ok")
	},
	"down": func(ctx context.Context, m migrator, steps int, out io.Writer) error {
		if err := m.MigrateDown(ctx, max(steps, 1)); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		return printStatus(ctx, m, out, "migrate down ok")
	},
	"status": func(ctx context.Context, m migrator, _ int, out io.Writer) error {
		return printStatus(ctx, m, out, "migration status")
	},
	"list": func(ctx context.Context, m migrator, _ int, out io.Writer) error {
		infos, err := m.Migrations(ctx)
		if err != nil {
			return fmt.Errorf("list migrations failed: %w", err)
		}
		for _, info := range infos {
			fmt.Fprintln(out, formatMigration(info))
		}
		return nil
	},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.Getenv))
}

func run(args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	direction := fs.String("direction", "up", "migration direction: up|down|status|list")
	steps := fs.Int("steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	dsn := fs.String("dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	timeout := fs.Duration("timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cmd, err := lookup(*direction)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	target := strings.TrimSpace(*dsn)
	if target == "" {
		target = strings.TrimSpace(getenv(envPostgresDSN))
	}
	if target == "" {
		fmt.Fprintf(stderr, "%s (or -dsn) is required\n", envPostgresDSN)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := postgres.Open(ctx, target)
	if err != nil {
		fmt.Fprintf(stderr, "open postgres store: %v\n", err)
		return 1
	}
	defer store.Close()

	if err := cmd(ctx, store, *steps, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func lookup(direction string) (command, error) {
	cmd, ok := commands[strings.ToLower(strings.TrimSpace(direction))]
	if !ok {
		return nil, fmt.Errorf("unsupported direction: %s (use up|down|status|list)", direction)
	}
	return cmd, nil
}

func printStatus(ctx context.Context, m migrator, out io.Writer, prefix string) error {
	version, count, err := m.MigrationStatus(ctx)
	if err != nil {
		return errors.Join(errors.New("migration status failed"), err)
	}
	fmt.Fprintf(out, "%s: version=%d applied=%d\n", prefix, version, count)
	return nil
}

func formatMigration(info postgres.MigrationInfo) string {
	if !info.Applied {
		return fmt.Sprintf("%04d %s pending", info.Version, info.Name)
	}
	return fmt.Sprintf("%04d %s applied at %s", info.Version, info.Name, info.AppliedAt.UTC().Format(time.RFC3339))
}
