package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upOrderProposalsTable, downOrderProposalsTable)
}

func upOrderProposalsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE order_proposals
(
    id          VARCHAR(36)   NOT NULL PRIMARY KEY,
    item_id     VARCHAR(64)   NOT NULL,
    proposer_id VARCHAR(64)   NOT NULL,
    seller_id   VARCHAR(64)   NOT NULL,
    price_cents BIGINT        NOT NULL,
    currency    CHAR(3)       NOT NULL DEFAULT 'EUR',
    message     VARCHAR(4000) NOT NULL DEFAULT '',
    status      ENUM('pending', 'accepted', 'rejected') NOT NULL DEFAULT 'pending',
    created_at  DATETIME(6)   NOT NULL,
    decided_at  DATETIME(6)   NULL,
    INDEX idx_proposals_item (item_id),
    CHECK (price_cents > 0)
);`)
	return err
}

func downOrderProposalsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE order_proposals;")
	return err
}
