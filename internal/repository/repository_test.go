package repository

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

// beginTx opens a transaction on the mock so Tx methods can be exercised.
func beginTx(t *testing.T, db *sqlx.DB, mock sqlmock.Sqlmock) *sqlx.Tx {
	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)
	return tx
}
