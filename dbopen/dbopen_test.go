package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/sktools/dbopen"
)

func pragmaInt(t *testing.T, db *sql.DB, name string) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow("PRAGMA "+name).Scan(&v))
	return v
}

func TestOpenMemory_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	assert.Equal(t, 1, pragmaInt(t, db, "foreign_keys"))
	assert.Equal(t, 1, pragmaInt(t, db, "synchronous"), "NORMAL")
	assert.Equal(t, 10_000, pragmaInt(t, db, "busy_timeout"))
}

func TestWithBusyTimeout(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithBusyTimeout(5000))
	assert.Equal(t, 5000, pragmaInt(t, db, "busy_timeout"))
}

func TestWithSchema(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`))
	_, err := db.Exec(`INSERT INTO t (v) VALUES ('x')`)
	require.NoError(t, err)
}

func TestWithSchema_Invalid(t *testing.T) {
	_, err := dbopen.Open(":memory:", dbopen.WithSchema("NOT SQL"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dbopen: exec schema")
}

func TestOpen_MkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "sk.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestRunTx_CommitAndRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE t (v TEXT)`))
	ctx := context.Background()

	require.NoError(t, dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO t VALUES ('kept')`)
		return err
	}))

	boom := errors.New("boom")
	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t VALUES ('dropped')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE t (v TEXT)`))
	res, err := dbopen.Exec(context.Background(), db, `INSERT INTO t VALUES (?)`, "a")
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(1), n)
}

func TestIsBusy(t *testing.T) {
	assert.False(t, dbopen.IsBusy(nil))
	assert.True(t, dbopen.IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, dbopen.IsBusy(errors.New("no such table")))
}
