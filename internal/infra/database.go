package infra

import (
	"fmt"

	"fulfillment/internal/model"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens a GORM connection backed by pgx, installs the OpenTelemetry
// plugin so every query becomes a span, then migrates the schema.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("otelgorm: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates every table and then applies the patches
// AutoMigrate cannot express. Integration tests call it directly.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Item{},
		&model.PurchaseOrder{},
		&model.POLineItem{},
		&model.Order{},
		&model.OrderLineItem{},
		&model.Delivery{},
		&model.DeliveryLineItem{},
		&model.LedgerEntry{},
		&model.DocumentClosure{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches adds the counter CHECK constraints and the partial index
// used by candidate lookup. Each statement is guarded so re-running on an
// already-patched schema is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"po_line_items counters within original", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_po_line_items_remaining') THEN
    ALTER TABLE po_line_items ADD CONSTRAINT chk_po_line_items_remaining
      CHECK (ordered_quantity >= 0 AND waived_quantity >= 0
             AND ordered_quantity + waived_quantity <= original_quantity);
  END IF;
END $$`},
		{"order_line_items delivered within quantity", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_order_line_items_delivered') THEN
    ALTER TABLE order_line_items ADD CONSTRAINT chk_order_line_items_delivered
      CHECK (delivered_quantity >= 0 AND delivered_quantity <= quantity);
  END IF;
END $$`},
		{"candidate lookup index", `
CREATE INDEX IF NOT EXISTS idx_po_line_items_item_open
    ON po_line_items (item_id, purchase_order_id)
    WHERE ordered_quantity + waived_quantity < original_quantity`},
		{"closures by document", `
CREATE INDEX IF NOT EXISTS idx_document_closures_document
    ON document_closures (document_type, document_id, closed_at DESC)`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
