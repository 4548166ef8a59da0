package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqlFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadMigrationsFromFS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		files     fstest.MapFS
		wantErr   string
		wantNames []string
	}{
		{
			name: "sorted by version",
			files: fstest.MapFS{
				"sql/migrations/0002_more.up.sql":   sqlFile("CREATE TABLE test_b (id INT);"),
				"sql/migrations/0002_more.down.sql": sqlFile("DROP TABLE IF EXISTS test_b;"),
				"sql/migrations/0001_init.up.sql":   sqlFile("CREATE TABLE test_a (id INT);"),
				"sql/migrations/0001_init.down.sql": sqlFile("DROP TABLE IF EXISTS test_a;"),
			},
			wantNames: []string{"0001_init", "0002_more"},
		},
		{
			name:    "missing down",
			files:   fstest.MapFS{"sql/migrations/0001_init.up.sql": sqlFile("CREATE TABLE test_a (id INT);")},
			wantErr: "both up and down",
		},
		{
			name:    "bad file name",
			files:   fstest.MapFS{"sql/migrations/not_a_migration.sql": sqlFile("SELECT 1;")},
			wantErr: "not_a_migration.sql",
		},
		{
			name: "blank body",
			files: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   sqlFile("   \n"),
				"sql/migrations/0001_init.down.sql": sqlFile("DROP TABLE IF EXISTS test;"),
			},
			wantErr: "0001_init",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			migrations, err := loadMigrationsFromFS(tt.files)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			names := make([]string, 0, len(migrations))
			for _, m := range migrations {
				names = append(names, m.String())
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 embedded migrations, got %d", len(migrations))
	}
	if !strings.Contains(migrations[0].UpSQL, "sales_sale_number_key") {
		t.Fatal("sales migration must declare the unique sale_number constraint")
	}
	if !strings.Contains(migrations[0].UpSQL, "ON DELETE CASCADE") {
		t.Fatal("sale items must be removed together with their sale")
	}
}

func TestDescribeMigrations(t *testing.T) {
	t.Parallel()

	appliedAt := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	infos := describeMigrations(
		[]migration{{Version: 1, Name: "create_sales"}, {Version: 2, Name: "create_outbox_timeline"}},
		map[int64]time.Time{1: appliedAt},
	)

	if len(infos) != 2 {
		t.Fatalf("expected 2 infos, got %d", len(infos))
	}
	if !infos[0].Applied || !infos[0].AppliedAt.Equal(appliedAt) {
		t.Fatalf("unexpected first info: %+v", infos[0])
	}
	if infos[1].Applied || !infos[1].AppliedAt.IsZero() {
		t.Fatalf("unexpected second info: %+v", infos[1])
	}
}

func TestPlanUpAndDown(t *testing.T) {
	t.Parallel()

	known := []migration{
		{Version: 1, Name: "create_sales"},
		{Version: 2, Name: "create_outbox_timeline"},
		{Version: 3, Name: "create_idempotency_keys"},
	}
	applied := map[int64]time.Time{1: time.Now()}

	if got := planUp(known, applied, 0); len(got) != 2 || got[0].Version != 2 || got[1].Version != 3 {
		t.Fatalf("unexpected up plan: %+v", got)
	}
	if got := planUp(known, applied, 1); len(got) != 1 || got[0].Version != 2 {
		t.Fatalf("unexpected single-step up plan: %+v", got)
	}

	applied[2] = time.Now()
	applied[3] = time.Now()
	down, err := planDown(known, applied, 2)
	if err != nil {
		t.Fatalf("planDown failed: %v", err)
	}
	if len(down) != 2 || down[0].Version != 3 || down[1].Version != 2 {
		t.Fatalf("unexpected down plan: %+v", down)
	}

	if _, err := planDown(known, map[int64]time.Time{7: time.Now()}, 1); err == nil {
		t.Fatal("expected error for unknown applied version")
	}
}

func TestMigrationScriptAndName(t *testing.T) {
	t.Parallel()

	m := migration{Version: 3, Name: "create_idempotency_keys", UpSQL: "up", DownSQL: "down"}
	if m.String() != "0003_create_idempotency_keys" {
		t.Fatalf("unexpected name %s", m)
	}
	if m.script(migrationUp) != "up" || m.script(migrationDown) != "down" {
		t.Fatal("script must follow direction")
	}
}
