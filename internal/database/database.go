package database

import (
	"database/sql"

	"marginbot/internal/models"

	_ "github.com/go-sql-driver/mysql"
)

// DB is the optional trade journal. In-memory state stays authoritative;
// the journal only records what was placed and closed.
type DB struct {
	*sql.DB
}

func NewConnection(databaseURL string) (*DB, error) {
	db, err := sql.Open("mysql", databaseURL)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func (db *DB) SaveOrder(order *models.PlacedOrder) error {
	query := `INSERT INTO orders (order_id, client_oid, pair, side, type, size, trigger_price, reduce_only, status, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.Exec(query, order.OrderID, order.ClientOID, order.Pair, order.Side, order.Type,
		order.Size, order.TriggerPrice, order.ReduceOnly, order.Status, order.Timestamp)
	return err
}

func (db *DB) SaveTrade(trade *models.ClosedTrade) error {
	query := `INSERT INTO trades (pair, side, entry_price, exit_price, size, pnl_pct, reason, closed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.Exec(query, trade.Pair, trade.Side, trade.EntryPrice, trade.ExitPrice,
		trade.Size, trade.PnlPct, trade.Reason, trade.ClosedAt)
	return err
}
