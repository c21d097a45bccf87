// Package testsupport opens throwaway sqlite databases carrying the storefront
// schema for repository and service tests.
package testsupport

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  image_url TEXT,
  stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
  min_stock INTEGER NOT NULL DEFAULT 5,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS reservations (
  token TEXT PRIMARY KEY,
  status TEXT NOT NULL DEFAULT 'held',
  order_id TEXT,
  created_at DATETIME,
  consumed_at DATETIME,
  released_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS reservation_lines (
  id TEXT PRIMARY KEY,
  token TEXT NOT NULL,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  UNIQUE (token, product_id)
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  customer_phone TEXT NOT NULL,
  customer_tax_id TEXT,
  delivery_address TEXT,
  pickup_note TEXT,
  delivery_type TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  status TEXT NOT NULL,
  reservation_token TEXT NOT NULL UNIQUE,
  payment_proof_ref TEXT,
  total_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  line_total_cents INTEGER NOT NULL,
  image_url TEXT
);`,
	`CREATE TABLE IF NOT EXISTS payment_intents (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  provider_link_id TEXT NOT NULL,
  provider_order_id TEXT NOT NULL UNIQUE,
  redirect_url TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'open',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS processed_events (
  key TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  target_status TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  audience TEXT NOT NULL,
  channel TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at DATETIME
);`,
}

// OpenDB returns a private in-memory database with the storefront tables.
// The pool is pinned to one connection so transactions serialize like a single writer.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:storefront_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// SeedProduct inserts a product with the given stock and returns it.
func SeedProduct(t testing.TB, conn *gorm.DB, stock int, priceCents int64) models.Product {
	t.Helper()
	id := uuid.New()
	product := models.Product{
		ID:         id,
		SKU:        "SKU-" + id.String()[:8],
		Name:       "Product " + id.String()[:4],
		PriceCents: priceCents,
		Stock:      stock,
		MinStock:   5,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// Stock reads the current stock for a product.
func Stock(t testing.TB, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}
