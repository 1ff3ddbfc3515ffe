package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/movement"
)

const movementsTable = "mfg_movements"

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the snapshot size above which it is stored
// zstd-compressed.
const DefaultCompressThreshold = 10 * 1024

type movementRow struct {
	ID                 id.ID           `db:"id"`
	OrderID            id.ID           `db:"order_id"`
	Kind               string          `db:"kind"`
	FromStage          string          `db:"from_stage"`
	ToStage            string          `db:"to_stage"`
	Reason             string          `db:"reason"`
	QuantityPc         int64           `db:"quantity_pc"`
	QuantityKg         types.Kg        `db:"quantity_kg"`
	LotCode            string          `db:"lot_code"`
	Operator           string          `db:"operator"`
	Snapshot           json.RawMessage `db:"snapshot"`
	SnapshotCompressed []byte          `db:"snapshot_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	CreatedAt          time.Time       `db:"created_at"`
}

// MovementLog implements movement.Repository on the mfg_movements table.
type MovementLog struct {
	txManager         *TxManager
	builder           squirrel.StatementBuilderType
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ movement.Repository = (*MovementLog)(nil)

// NewMovementLog creates the movement log.
func NewMovementLog(txManager *TxManager) (*MovementLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &MovementLog{
		txManager:         txManager,
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
	}, nil
}

// Append stores m. Large snapshots are compressed.
func (l *MovementLog) Append(ctx context.Context, m *movement.Movement) error {
	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}

	row := l.toRow(m)
	sql, args, err := l.builder.Insert(movementsTable).SetMap(StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := l.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return Classify(fmt.Errorf("insert movement: %w", err))
	}
	return nil
}

// List returns the order's movements, newest first.
func (l *MovementLog) List(ctx context.Context, orderID id.ID, limit int) ([]movement.Movement, error) {
	q := l.builder.Select(Columns[movementRow]()...).
		From(movementsTable).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []movementRow
	if err := pgxscan.Select(ctx, l.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, Classify(fmt.Errorf("select movements: %w", err))
	}

	out := make([]movement.Movement, 0, len(rows))
	for _, r := range rows {
		m, err := l.fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (l *MovementLog) toRow(m *movement.Movement) movementRow {
	row := movementRow{
		ID:              m.ID,
		OrderID:         m.OrderID,
		Kind:            string(m.Kind),
		FromStage:       m.FromStage,
		ToStage:         m.ToStage,
		Reason:          m.Reason,
		QuantityPc:      m.QuantityPc,
		QuantityKg:      m.QuantityKg,
		LotCode:         m.LotCode,
		Operator:        m.Operator,
		Snapshot:        m.Snapshot,
		CompressionAlgo: CompressionNone,
		CreatedAt:       m.At,
	}
	if len(m.Snapshot) > l.compressThreshold {
		row.SnapshotCompressed = l.encoder.EncodeAll(m.Snapshot, nil)
		row.Snapshot = nil
		row.CompressionAlgo = CompressionZstd
	}
	return row
}

func (l *MovementLog) fromRow(r movementRow) (movement.Movement, error) {
	snapshot := r.Snapshot
	if r.CompressionAlgo == CompressionZstd && len(r.SnapshotCompressed) > 0 {
		raw, err := l.decoder.DecodeAll(r.SnapshotCompressed, nil)
		if err != nil {
			return movement.Movement{}, fmt.Errorf("decompress snapshot: %w", err)
		}
		snapshot = raw
	}
	return movement.Movement{
		ID:         r.ID,
		OrderID:    r.OrderID,
		Kind:       movement.Kind(r.Kind),
		FromStage:  r.FromStage,
		ToStage:    r.ToStage,
		Reason:     r.Reason,
		QuantityPc: r.QuantityPc,
		QuantityKg: r.QuantityKg,
		LotCode:    r.LotCode,
		Operator:   r.Operator,
		At:         r.CreatedAt,
		Snapshot:   snapshot,
	}, nil
}
