package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/config"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&testModel{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	conn := newTestDB(t)
	client := FromConn(conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, countRows(t, conn))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := newTestDB(t)
	client := FromConn(conn)
	boom := errors.New("boom")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, countRows(t, conn))
}

func TestWithTxRollsBackAndRepanics(t *testing.T) {
	conn := newTestDB(t)
	client := FromConn(conn)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&testModel{Name: "half"})
			panic("kaboom")
		})
	})
	assert.EqualValues(t, 0, countRows(t, conn))
}

func TestPingAndClose(t *testing.T) {
	client := FromConn(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.Close())
	assert.Error(t, client.Ping(context.Background()))
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	assert.ErrorContains(t, err, "DSN")
}
