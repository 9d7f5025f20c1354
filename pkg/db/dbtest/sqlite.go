// Package dbtest opens throwaway sqlite databases carrying the ledger schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	dbpkg "github.com/angelmondragon/gearledger-backend/pkg/db"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
)

// Models lists every table the ledger services touch.
func Models() []any {
	return []any{
		&models.Order{},
		&models.Invoice{},
		&models.Payout{},
		&models.ConnectedAccount{},
		&models.PayoutHold{},
		&models.LedgerEvent{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// Open returns an isolated in-memory database. A single connection serializes
// writers the way row locks would on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

// Client wraps Open in the transaction-aware db client.
func Client(t testing.TB) *dbpkg.Client {
	t.Helper()
	return dbpkg.FromConn(Open(t))
}
