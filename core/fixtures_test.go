package core

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

// migrationDir is resolved relative to this package.
const migrationDir = "../migrations"

// BaseFixture is a migrated in-memory sqlite database shared by the
// store-backed tests. Each test gets its own instance and tears it down.
type BaseFixture struct {
	ctx      context.Context
	db       *sql.DB
	tearDown func()
}

func NewBaseFixture(t *testing.T) *BaseFixture {
	ctx, cancel := context.WithCancel(context.Background())

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.Nil(t, err)

	goose.SetBaseFS(os.DirFS(migrationDir))
	require.Nil(t, goose.SetDialect("sqlite3"))
	require.Nil(t, goose.Up(db, "."))

	return &BaseFixture{
		ctx: ctx,
		db:  db,
		tearDown: func() {
			cancel()
			db.Close()
		},
	}
}
