package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLite(t *testing.T) {
	db, err := ConnectSQL(DriverSQLite, filepath.Join(t.TempDir(), "wh.db"), 1)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestConnectSQLRejectsUnknownDriver(t *testing.T) {
	_, err := ConnectSQL("oracle", "whatever", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
