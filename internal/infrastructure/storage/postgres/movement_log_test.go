package postgres

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/movement"
)

func TestMovementLog_SnapshotCompression(t *testing.T) {
	log, err := NewMovementLog(nil)
	require.NoError(t, err)

	small := &movement.Movement{
		ID: id.New(), OrderID: id.New(), Kind: movement.KindProduction,
		QuantityPc: 10, QuantityKg: types.MustKg("2.5"),
		Snapshot: json.RawMessage(`{"available_pc":90}`),
		At:       time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
	row := log.toRow(small)
	assert.Equal(t, CompressionNone, row.CompressionAlgo)
	assert.Nil(t, row.SnapshotCompressed)

	big := *small
	big.Snapshot = json.RawMessage(`{"note":"` + string(bytes.Repeat([]byte("x"), DefaultCompressThreshold)) + `"}`)
	row = log.toRow(&big)
	assert.Equal(t, CompressionZstd, row.CompressionAlgo)
	assert.Nil(t, row.Snapshot)
	assert.Less(t, len(row.SnapshotCompressed), len(big.Snapshot))

	back, err := log.fromRow(row)
	require.NoError(t, err)
	assert.JSONEq(t, string(big.Snapshot), string(back.Snapshot))
	assert.Equal(t, big.At, back.At)
	assert.Equal(t, movement.KindProduction, back.Kind)
}

func TestMovementLog_InsertColumns(t *testing.T) {
	log, err := NewMovementLog(nil)
	require.NoError(t, err)

	row := log.toRow(&movement.Movement{ID: id.New(), OrderID: id.New(), Kind: movement.KindFinalize})
	sql, args, err := log.builder.Insert(movementsTable).SetMap(StructToMap(row)).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO mfg_movements")
	assert.Contains(t, sql, "snapshot_compressed")
	assert.Len(t, args, len(Columns[movementRow]()))
}
