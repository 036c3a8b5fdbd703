package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS bot_instances (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    strategy_code TEXT NOT NULL,
    parameters TEXT,
    allocation_pct REAL NOT NULL DEFAULT 10,
    status TEXT NOT NULL DEFAULT 'stopped',
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    instance_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    entry_price REAL NOT NULL,
    size REAL NOT NULL,
    leverage INTEGER NOT NULL,
    margin_used REAL NOT NULL,
    entry_tag TEXT,
    entry_time DATETIME NOT NULL,
    exit_price REAL,
    exit_reason TEXT,
    realized_pnl REAL,
    fee REAL NOT NULL DEFAULT 0,
    exit_time DATETIME,
    status TEXT NOT NULL DEFAULT 'open',
    FOREIGN KEY(instance_id) REFERENCES bot_instances(id)
);

CREATE INDEX IF NOT EXISTS idx_trades_instance_status ON trades(instance_id, status);
CREATE INDEX IF NOT EXISTS idx_trades_user_status ON trades(user_id, status);

CREATE TABLE IF NOT EXISTS daily_metrics (
    user_id TEXT NOT NULL,
    date TEXT NOT NULL,
    realized_pnl REAL NOT NULL DEFAULT 0,
    trades INTEGER NOT NULL DEFAULT 0,
    losses REAL NOT NULL DEFAULT 0,
    PRIMARY KEY(user_id, date)
);
`

// ApplyMigrations creates or upgrades the schema.
func ApplyMigrations(d *Database) error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
