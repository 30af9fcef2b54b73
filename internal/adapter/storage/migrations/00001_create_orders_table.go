package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upOrdersTable, downOrdersTable)
}

func upOrdersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE orders
(
    id               VARCHAR(36)  NOT NULL PRIMARY KEY,
    item_id          VARCHAR(64)  NOT NULL,
    buyer_id         VARCHAR(64)  NOT NULL,
    seller_id        VARCHAR(64)  NOT NULL,
    amount_cents     BIGINT       NOT NULL,
    currency         CHAR(3)      NOT NULL DEFAULT 'EUR',
    phase            ENUM('payment_pending', 'payment_confirmed', 'payment_failed', 'payment_refunded',
                          'shipping_pending', 'shipping_confirmed', 'shipping_delivered', 'shipping_failed',
                          'completed', 'complained', 'cancelled', 'expired') NOT NULL,
    created_at       DATETIME(6)  NOT NULL,
    phase_changed_at DATETIME(6)  NOT NULL,
    updated_at       DATETIME(6)  NOT NULL,
    INDEX idx_orders_buyer (buyer_id, created_at),
    INDEX idx_orders_seller (seller_id, created_at),
    CHECK (amount_cents > 0)
);`)
	return err
}

func downOrdersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE orders;")
	return err
}
