package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/angelmondragon/gearledger-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.Validate(migrate.Migrations()); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestEmbeddedMigrationsMatchSourceDir(t *testing.T) {
	embedded, err := fs.Glob(migrate.Migrations(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob source dir: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("embedded %d migrations, source dir has %d", len(embedded), len(onDisk))
	}
}

func TestValidateRejectsBrokenMigrations(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"001_init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"20260101000000_init.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"down first": {
			"20260101000000_init.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		},
		"duplicate version": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := migrate.Validate(fsys); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestInvoiceMigrationEnforcesSplit(t *testing.T) {
	content := readMigration(t, "*_create_payouts_and_invoices.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS invoices",
		"CHECK (platform_fee_cents + payee_net_cents = gross_cents)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_order_id ON invoices (order_id)",
		"WHERE payout_id IS NULL",
		"DROP TABLE IF EXISTS invoices",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationIndexesSession(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"version integer NOT NULL DEFAULT 1",
		"ux_orders_provider_session_id",
		"WHERE status = 'pending'",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEnumMigrationCoversOutboxEvents(t *testing.T) {
	content := readMigration(t, "*_create_enum_types.sql")

	for _, value := range []string{"'order_succeeded'", "'payout_hold_placed'", "'onboarding_verified'", "'payee'"} {
		if !strings.Contains(content, value) {
			t.Errorf("missing enum value %s", value)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Payout Notes!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20261001093000_add_payout_notes.sql" {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add payout notes", now); err == nil {
		t.Fatal("expected existing migration to be left alone")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := fs.Glob(migrate.Migrations(), pattern)
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := fs.ReadFile(migrate.Migrations(), matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
