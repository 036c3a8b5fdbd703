// Package recorder persists the trade ledger. Each trade is two writes: an
// entry leg at order acceptance and an exit leg at close. Open records left
// behind by a crash are picked up on restart and reconciled against the
// exchange.
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/db"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

// Recorder writes trade records through the database.
type Recorder struct {
	store *db.Database
	log   *zap.Logger
}

// New builds a recorder.
func New(store *db.Database, log *zap.Logger) *Recorder {
	return &Recorder{store: store, log: log.Named("recorder")}
}

// Entry captures everything known at fill time.
type Entry struct {
	InstanceID string
	UserID     string
	Symbol     string
	Side       common.PositionSide
	Price      float64
	Size       float64
	Leverage   int
	MarginUsed float64
	Tag        string // signal context, e.g. "rsi_oversold"
	Fee        float64
}

// RecordEntry writes the entry leg and returns the trade id.
func (r *Recorder) RecordEntry(ctx context.Context, e Entry) (string, error) {
	id := uuid.NewString()
	rec := db.TradeRecord{
		ID:         id,
		InstanceID: e.InstanceID,
		UserID:     e.UserID,
		Symbol:     e.Symbol,
		Side:       string(e.Side),
		EntryPrice: e.Price,
		Size:       e.Size,
		Leverage:   e.Leverage,
		MarginUsed: e.MarginUsed,
		EntryTag:   e.Tag,
		EntryTime:  time.Now().UTC(),
		Fee:        e.Fee,
	}
	if err := r.store.CreateTradeEntry(ctx, rec); err != nil {
		return "", fmt.Errorf("record entry: %w", err)
	}
	r.log.Info("trade opened",
		zap.String("trade_id", id),
		zap.String("instance_id", e.InstanceID),
		zap.String("symbol", e.Symbol),
		zap.String("side", string(e.Side)),
		zap.Float64("entry_price", e.Price),
		zap.Float64("size", e.Size),
	)
	return id, nil
}

// RecordExit writes the exit leg onto the open record. The record becomes
// immutable afterwards; a second exit for the same id is an error.
func (r *Recorder) RecordExit(ctx context.Context, tradeID string, exitPrice, realizedPnL, exitFee float64, reason string) error {
	if err := r.store.CloseTrade(ctx, tradeID, exitPrice, realizedPnL, exitFee, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("record exit: %w", err)
	}
	r.log.Info("trade closed",
		zap.String("trade_id", tradeID),
		zap.String("reason", reason),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("realized_pnl", realizedPnL),
	)
	return nil
}

// OpenTrade returns the instance's open record, or nil when flat. Used on
// restart to resume tracking a position opened before the crash.
func (r *Recorder) OpenTrade(ctx context.Context, instanceID string) (*db.TradeRecord, error) {
	return r.store.GetOpenTrade(ctx, instanceID)
}

// CloseOrphan closes an open record whose exchange position no longer
// exists, marking it with the given reason so the ledger and exchange
// agree again.
func (r *Recorder) CloseOrphan(ctx context.Context, rec *db.TradeRecord, lastPrice float64, reason string) error {
	pnl := 0.0
	if lastPrice > 0 {
		if rec.Side == string(common.PositionShort) {
			pnl = (rec.EntryPrice - lastPrice) * rec.Size
		} else {
			pnl = (lastPrice - rec.EntryPrice) * rec.Size
		}
	}
	r.log.Warn("closing orphaned trade record",
		zap.String("trade_id", rec.ID),
		zap.String("instance_id", rec.InstanceID),
		zap.String("reason", reason),
	)
	return r.RecordExit(ctx, rec.ID, lastPrice, pnl, 0, reason)
}
