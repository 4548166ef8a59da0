package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/storage/postgres"
)

// fakeMigrator держит номер версии и пишет последовательность вызовов.
type fakeMigrator struct {
	version int64
	known   int64
	calls   []string
	err     error
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.calls = append(f.calls, "up")
	if f.err != nil {
		return f.err
	}
	if steps == 0 {
		f.version = f.known
		return nil
	}
	f.version = min(f.known, f.version+int64(steps))
	return nil
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.calls = append(f.calls, "down")
	if f.err != nil {
		return f.err
	}
	f.version = max(0, f.version-int64(steps))
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	f.calls = append(f.calls, "status")
	return f.version, int(f.version), nil
}

func (f *fakeMigrator) Migrations(context.Context) ([]postgres.MigrationInfo, error) {
	f.calls = append(f.calls, "list")
	if f.err != nil {
		return nil, f.err
	}
	infos := make([]postgres.MigrationInfo, 0, f.known)
	for v := int64(1); v <= f.known; v++ {
		infos = append(infos, postgres.MigrationInfo{Version: v, Name: "m", Applied: v <= f.version})
	}
	return infos, nil
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name      string
		direction string
		steps     int
		start     int64
		wantOut   string
		wantCalls []string
	}{
		{name: "up all", direction: "up", start: 0, wantOut: "migrate up ok: version=3 applied=3\n", wantCalls: []string{"up", "status"}},
		{name: "up one case insensitive", direction: " UP ", steps: 1, start: 1, wantOut: "migrate up ok: version=2 applied=2\n", wantCalls: []string{"up", "status"}},
		{name: "down defaults to one step", direction: "down", start: 3, wantOut: "migrate down ok: version=2 applied=2\n", wantCalls: []string{"down", "status"}},
		{name: "status", direction: "status", start: 2, wantOut: "migration status: version=2 applied=2\n", wantCalls: []string{"status"}},
		{name: "list", direction: "list", start: 1, wantOut: "0001 m applied at 0001-01-01T00:00:00Z\n0002 m pending\n0003 m pending\n", wantCalls: []string{"list"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{version: tt.start, known: 3}
			cmd, err := lookup(tt.direction)
			require.NoError(t, err)

			var out bytes.Buffer
			require.NoError(t, cmd(context.Background(), m, tt.steps, &out))
			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantCalls, m.calls)
		})
	}
}

func TestCommands_PropagateErrors(t *testing.T) {
	m := &fakeMigrator{known: 3, err: errors.New("lock timeout")}

	for _, direction := range []string{"up", "down", "list"} {
		cmd, err := lookup(direction)
		require.NoError(t, err)

		err = cmd(context.Background(), m, 0, io.Discard)
		require.Error(t, err, direction)
		assert.Contains(t, err.Error(), "lock timeout")
		assert.Contains(t, err.Error(), direction)
	}
}

func TestLookup_Unsupported(t *testing.T) {
	_, err := lookup("sideways")
	assert.ErrorContains(t, err, "unsupported direction: sideways")
}

func TestFormatMigration(t *testing.T) {
	assert.Equal(t, "0001 create_sales pending", formatMigration(postgres.MigrationInfo{Version: 1, Name: "create_sales"}))

	appliedAt := time.Date(2025, 3, 12, 13, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	assert.Equal(t, "0002 timeline applied at 2025-03-12T10:00:00Z",
		formatMigration(postgres.MigrationInfo{Version: 2, Name: "timeline", Applied: true, AppliedAt: appliedAt}))
}

func TestRun_ArgumentErrors(t *testing.T) {
	noEnv := func(string) string { return "" }

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing dsn", args: []string{"-direction=status"}, wantErr: envPostgresDSN + " (or -dsn) is required"},
		{name: "unknown direction", args: []string{"-direction=sideways", "-dsn=postgres://x"}, wantErr: "unsupported direction"},
		{name: "bad flag", args: []string{"-steps=many"}, wantErr: "invalid value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			code := run(tt.args, io.Discard, &stderr, noEnv)
			assert.Equal(t, 2, code)
			assert.Contains(t, stderr.String(), tt.wantErr)
		})
	}
}

func TestRun_AgainstPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("SALES_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("SALES_TEST_POSTGRES_DSN is not set")
	}
	env := func(key string) string {
		if key == envPostgresDSN {
			return dsn
		}
		return ""
	}

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-direction=up"}, &stdout, &stderr, env), stderr.String())
	assert.True(t, strings.HasPrefix(stdout.String(), "migrate up ok: version="), stdout.String())

	stdout.Reset()
	require.Equal(t, 0, run([]string{"-direction=list"}, &stdout, &stderr, env), stderr.String())
	assert.NotContains(t, stdout.String(), "pending")
}
