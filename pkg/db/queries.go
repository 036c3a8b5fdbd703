package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateTradeEntry writes the entry leg of a trade with status "open".
func (d *Database) CreateTradeEntry(ctx context.Context, t TradeRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, instance_id, user_id, symbol, side, entry_price, size, leverage,
			margin_used, entry_tag, entry_time, fee, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open')
	`,
		t.ID, t.InstanceID, t.UserID, t.Symbol, t.Side, t.EntryPrice, t.Size,
		t.Leverage, t.MarginUsed, t.EntryTag, t.EntryTime, t.Fee,
	)
	if err != nil {
		return fmt.Errorf("insert trade entry: %w", err)
	}
	return nil
}

// CloseTrade writes the exit leg onto an open record. Closing an already
// closed record is an error so the exit leg is written at most once.
func (d *Database) CloseTrade(ctx context.Context, id string, exitPrice, realizedPnL, fee float64, exitReason string, exitTime time.Time) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE trades
		SET exit_price = ?, exit_reason = ?, realized_pnl = ?, fee = fee + ?,
		    exit_time = ?, status = 'closed'
		WHERE id = ? AND status = 'open'
	`, exitPrice, exitReason, realizedPnL, fee, exitTime, id)
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("close trade %s: no open record", id)
	}
	return nil
}

// GetOpenTrade returns the open trade for an instance, or nil.
func (d *Database) GetOpenTrade(ctx context.Context, instanceID string) (*TradeRecord, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, instance_id, user_id, symbol, side, entry_price, size, leverage,
		       margin_used, COALESCE(entry_tag, ''), entry_time, fee, status
		FROM trades
		WHERE instance_id = ? AND status = 'open'
		ORDER BY entry_time DESC
		LIMIT 1
	`, instanceID)

	var t TradeRecord
	err := row.Scan(&t.ID, &t.InstanceID, &t.UserID, &t.Symbol, &t.Side,
		&t.EntryPrice, &t.Size, &t.Leverage, &t.MarginUsed, &t.EntryTag,
		&t.EntryTime, &t.Fee, &t.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open trade: %w", err)
	}
	return &t, nil
}

// CountOpenTrades returns the number of open trades for a user.
func (d *Database) CountOpenTrades(ctx context.Context, userID string) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE user_id = ? AND status = 'open'`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open trades: %w", err)
	}
	return n, nil
}

// SumOpenMargin returns the total margin held by a user's open trades.
func (d *Database) SumOpenMargin(ctx context.Context, userID string) (float64, error) {
	var sum float64
	err := d.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(margin_used), 0) FROM trades WHERE user_id = ? AND status = 'open'`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum open margin: %w", err)
	}
	return sum, nil
}

// AddDailyPnL accumulates a realized trade into the user's daily metrics.
func (d *Database) AddDailyPnL(ctx context.Context, userID string, day time.Time, pnl float64) error {
	date := day.UTC().Format("2006-01-02")
	loss := 0.0
	if pnl < 0 {
		loss = -pnl
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO daily_metrics (user_id, date, realized_pnl, trades, losses)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			realized_pnl = realized_pnl + ?,
			trades = trades + 1,
			losses = losses + ?
	`, userID, date, pnl, loss, pnl, loss)
	if err != nil {
		return fmt.Errorf("add daily pnl: %w", err)
	}
	return nil
}

// GetDailyPnL returns the user's realized PnL for the given UTC day.
func (d *Database) GetDailyPnL(ctx context.Context, userID string, day time.Time) (float64, error) {
	date := day.UTC().Format("2006-01-02")
	var pnl float64
	err := d.DB.QueryRowContext(ctx,
		`SELECT COALESCE(realized_pnl, 0) FROM daily_metrics WHERE user_id = ? AND date = ?`,
		userID, date,
	).Scan(&pnl)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get daily pnl: %w", err)
	}
	return pnl, nil
}

// UpsertInstance stores or updates a bot instance snapshot.
func (d *Database) UpsertInstance(ctx context.Context, row InstanceRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO bot_instances (id, user_id, symbol, strategy_code, parameters, allocation_pct, status, is_deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			strategy_code = excluded.strategy_code,
			parameters = excluded.parameters,
			allocation_pct = excluded.allocation_pct,
			status = excluded.status,
			is_deleted = excluded.is_deleted,
			updated_at = CURRENT_TIMESTAMP
	`, row.ID, row.UserID, row.Symbol, row.StrategyCode, row.Parameters,
		row.AllocationPct, row.Status, boolToInt(row.IsDeleted))
	if err != nil {
		return fmt.Errorf("upsert instance: %w", err)
	}
	return nil
}

// SetInstanceStatus updates only the status column.
func (d *Database) SetInstanceStatus(ctx context.Context, id, status string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE bot_instances SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("set instance status: %w", err)
	}
	return nil
}

// GetInstance loads an instance snapshot by id.
func (d *Database) GetInstance(ctx context.Context, id string) (*InstanceRow, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, symbol, strategy_code, COALESCE(parameters, ''),
		       allocation_pct, status, is_deleted, created_at, updated_at
		FROM bot_instances WHERE id = ?
	`, id)

	var (
		r       InstanceRow
		deleted int
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Symbol, &r.StrategyCode, &r.Parameters,
		&r.AllocationPct, &r.Status, &deleted, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	r.IsDeleted = deleted == 1
	return &r, nil
}

// ListInstancesByUser returns all non-deleted instances for a user.
func (d *Database) ListInstancesByUser(ctx context.Context, userID string) ([]InstanceRow, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, symbol, strategy_code, COALESCE(parameters, ''),
		       allocation_pct, status, is_deleted, created_at, updated_at
		FROM bot_instances WHERE user_id = ? AND is_deleted = 0
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []InstanceRow
	for rows.Next() {
		var (
			r       InstanceRow
			deleted int
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Symbol, &r.StrategyCode, &r.Parameters,
			&r.AllocationPct, &r.Status, &deleted, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.IsDeleted = deleted == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
